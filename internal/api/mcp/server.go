package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/GriffinCanCode/StreamOS/backend/internal/domain/pipeline"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/tracing"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const (
	ServerName    = "streamos"
	ServerVersion = "0.1.0"
)

// Options configures which tools are exposed and how calls are observed.
type Options struct {
	Mode    Mode
	Include []string
	Exclude []string
	// StatusMessages bounds the messages returned by gst_get_pipeline_status.
	StatusMessages int
	// MonitorBus starts an async bus monitor for launched pipelines.
	MonitorBus bool

	Metrics *monitoring.Metrics
	Tracer  *tracing.Tracer
	Logger  *logging.Logger
}

// Server exposes pipeline operations as MCP tools.
type Server struct {
	manager *pipeline.Manager
	catalog *Catalog
	server  *sdk.Server
	enabled []string
	opts    Options
	logger  *logging.Logger
}

type toolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// New builds a server registering only the tools enabled by opts.
func New(manager *pipeline.Manager, opts Options) *Server {
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	if opts.StatusMessages <= 0 {
		opts.StatusMessages = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		manager: manager,
		catalog: NewCatalog(),
		server: sdk.NewServer(&sdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		}, nil),
		opts:   opts,
		logger: logger.Named("mcp"),
	}

	handlers := s.handlers()
	s.enabled = s.catalog.Filter(opts.Mode, opts.Include, opts.Exclude)
	for _, name := range s.enabled {
		info, _ := s.catalog.Get(name)
		s.server.AddTool(&sdk.Tool{
			Name:        name,
			Description: info.Description,
			InputSchema: inputSchemas[name],
		}, s.wrap(name, handlers[name]))
	}

	s.logger.Info("MCP tools registered",
		zap.String("mode", string(opts.Mode)),
		zap.Strings("tools", s.enabled))
	return s
}

// Enabled returns the registered tool names, sorted.
func (s *Server) Enabled() []string {
	return append([]string(nil), s.enabled...)
}

// Serve runs the server over in/out until ctx is cancelled or the peer
// closes the stream.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return s.run(ctx, &sdk.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	})
}

func (s *Server) run(ctx context.Context, transport sdk.Transport) error {
	return s.server.Run(ctx, transport)
}

// wrap adapts a toolFunc into an SDK handler with metrics, tracing and the
// coded error convention.
func (s *Server) wrap(name string, fn toolFunc) sdk.ToolHandler {
	return func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		args := req.Params.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}

		ctx, reqID := tracing.WithRequestID(ctx, "")
		log := s.logger.ForCall(name, string(reqID))

		timer := monitoring.NewTimer(s.opts.Metrics, name)
		var text string
		call := func(ctx context.Context, span *tracing.Span) error {
			var err error
			text, err = fn(ctx, args)
			if span != nil {
				span.SetTag("tool", name)
				span.SetTag("request_id", string(reqID))
			}
			return err
		}

		var err error
		if s.opts.Tracer != nil {
			err = s.opts.Tracer.Do(ctx, name, call)
		} else {
			err = call(ctx, nil)
		}

		if err != nil {
			timer.Stop("error")
			log.Debug("Tool call failed", zap.Error(err))
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: toolError(err)}},
				IsError: true,
			}, nil
		}

		timer.Stop("success")
		log.Debug("Tool call completed")
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: text}},
		}, nil
	}
}

var errInvalidArguments = errors.New("invalid arguments")

// ErrorCode returns the code carried in a tool error prefix.
func ErrorCode(err error) string {
	if errors.Is(err, errInvalidArguments) {
		return "invalid_arguments"
	}
	return pipeline.Code(err)
}

func toolError(err error) string {
	return fmt.Sprintf("[%s] %v", ErrorCode(err), err)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
