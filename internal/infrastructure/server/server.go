package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/StreamOS/backend/internal/api/http"
	"github.com/GriffinCanCode/StreamOS/backend/internal/api/mcp"
	"github.com/GriffinCanCode/StreamOS/backend/internal/api/middleware"
	"github.com/GriffinCanCode/StreamOS/backend/internal/api/ws"
	"github.com/GriffinCanCode/StreamOS/backend/internal/domain/pipeline"
	"github.com/GriffinCanCode/StreamOS/backend/internal/engine/sim"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/StreamOS/backend/internal/shared/utils"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP and MCP surfaces and their dependencies
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	manager  *pipeline.Manager
	router   *gin.Engine
	mcp      *mcp.Server

	stdin  io.Reader
	stdout io.Writer

	closeOnce sync.Once
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithStdio sets the streams the MCP server reads and writes. Defaults to os.Stdin and os.Stdout.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *Server) { s.stdin, s.stdout = in, out }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{config: cfg, stdin: os.Stdin, stdout: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		lc := logging.DefaultConfig()
		lc.Level = cfg.Logging.Level
		lc.Development = cfg.Logging.Development
		if len(cfg.Logging.Output) > 0 {
			lc.OutputPaths = cfg.Logging.Output
		}
		logger, err := logging.New(lc)
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
		s.logger = logger
	}

	s.logger.Info("Initializing StreamOS server",
		zap.String("addr", s.Addr()),
		zap.Bool("http", cfg.Server.Enabled),
		zap.Bool("mcp", cfg.MCP.Enabled),
		zap.String("mcp_mode", cfg.MCP.Mode),
		zap.Int("max_pipelines", cfg.Pipeline.MaxPipelines),
	)

	// Metrics first, every other component records into them.
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = monitoring.NewMetrics(s.registry)

	s.tracer = tracing.New("streamos", s.logger.Logger)

	eng := sim.New(sim.Options{
		PrerollDelay:   cfg.Engine.PrerollDelay.Std(),
		BufferDuration: cfg.Engine.BufferDuration.Std(),
	})
	s.manager = pipeline.NewManager(eng, pipeline.Config{
		MaxPipelines:      cfg.Pipeline.MaxPipelines,
		HistorySize:       cfg.Pipeline.HistorySize,
		StateQueryTimeout: cfg.Pipeline.StateQueryTimeout.Std(),
		BusPollTimeout:    cfg.Pipeline.BusPollTimeout.Std(),
	}).WithMetrics(s.metrics).WithLogger(s.logger)

	if cfg.MCP.Enabled {
		mode, err := mcp.ParseMode(cfg.MCP.Mode)
		if err != nil {
			return nil, err
		}
		s.mcp = mcp.New(s.manager, mcp.Options{
			Mode:           mode,
			Include:        cfg.MCP.Tools,
			Exclude:        cfg.MCP.ExcludeTools,
			StatusMessages: cfg.Pipeline.StatusMessages,
			MonitorBus:     cfg.Pipeline.MonitorBus,
			Metrics:        s.metrics,
			Tracer:         s.tracer,
			Logger:         s.logger,
		})
		s.logger.Info("MCP tools enabled", zap.Strings("tools", s.mcp.Enabled()))
	}

	s.router = s.buildRouter()

	s.logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.BodyLimit(utils.MaxRequestBodySize))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}
	// promhttp negotiates its own compression.
	router.Use(middleware.Gzip(gzip.DefaultCompression, "/metrics"))

	apihttp.NewHandlers(s.manager, apihttp.Options{
		StatusMessages: cfg.Pipeline.StatusMessages,
		MonitorBus:     cfg.Pipeline.MonitorBus,
		Metrics:        s.metrics,
		Logger:         s.logger,
	}).Register(router)

	ws.NewHandler(s.manager, ws.Options{
		Metrics: s.metrics,
		Logger:  s.logger,
	}).Register(router)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	return router
}

// Addr is the HTTP listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
}

// Handler returns the HTTP handler with every route and middleware mounted.
func (s *Server) Handler() http.Handler { return s.router }

// Manager returns the pipeline registry.
func (s *Server) Manager() *pipeline.Manager { return s.manager }

// Run serves HTTP and MCP (each when enabled) until ctx ends, the MCP stream
// closes or a listener fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	if !s.config.Server.Enabled && s.mcp == nil {
		return errors.New("nothing to serve: both HTTP and MCP are disabled")
	}

	ln, err := s.listen()
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) listen() (net.Listener, error) {
	if !s.config.Server.Enabled {
		return nil, nil
	}
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return ln, nil
}

// serve runs the surfaces on ln (nil when HTTP is disabled).
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	defer s.Close()

	g, ctx := errgroup.WithContext(ctx)

	if ln != nil {
		httpServer := &http.Server{
			Handler:           s.router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
			if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn("HTTP shutdown did not complete", zap.Error(err))
			}
			return nil
		})
	}

	if s.mcp != nil {
		g.Go(func() error {
			s.logger.Info("Serving MCP over stdio")
			err := s.mcp.Serve(ctx, s.stdin, s.stdout)
			if ctx.Err() == nil {
				s.logger.Info("MCP stream ended", zap.NamedError("reason", err))
			}
			// The client hanging up ends the process like a signal does.
			return errStreamClosed
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errStreamClosed) {
		return err
	}
	return nil
}

var errStreamClosed = errors.New("mcp stream closed")

// Close stops every pipeline and flushes telemetry. Safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")
		s.manager.Close()
		s.tracer.Close()
		s.logger.Info("All pipelines stopped")
		_ = s.logger.Sync()
	})
}
