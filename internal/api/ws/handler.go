package ws

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/domain/pipeline"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/StreamOS/backend/internal/shared/id"
	"github.com/GriffinCanCode/StreamOS/backend/internal/shared/utils"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 250 * time.Millisecond
	minInterval     = 10 * time.Millisecond
	writeWait       = 5 * time.Second
	pongWait        = 60 * time.Second
)

// Frame types sent to the client.
const (
	FrameConnected = "connected"
	FrameMessage   = "message"
	FrameStatus    = "status"
	FramePong      = "pong"
	FrameError     = "error"
	FrameClosed    = "closed"
)

// Frame is one server-to-client message.
type Frame struct {
	Type       string            `json:"type"`
	ConnID     string            `json:"conn_id,omitempty"`
	PipelineID string            `json:"pipeline_id,omitempty"`
	Message    *pipeline.Message `json:"message,omitempty"`
	Status     *pipeline.Info    `json:"status,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

// clientFrame is what clients may send; only ping is understood.
type clientFrame struct {
	Type string `json:"type"`
}

// Options configures the stream handler.
type Options struct {
	// Interval is how often the pipeline history is polled for new records.
	Interval time.Duration
	Metrics  *monitoring.Metrics
	Logger   *logging.Logger
	// CheckOrigin overrides the upgrader's origin check; nil allows every origin.
	CheckOrigin func(r *http.Request) bool
}

// Handler streams pipeline history and status over WebSocket connections
type Handler struct {
	manager  *pipeline.Manager
	upgrader websocket.Upgrader
	interval time.Duration
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(manager *pipeline.Manager, opts Options) *Handler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.CheckOrigin == nil {
		opts.CheckOrigin = func(r *http.Request) bool { return true }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		manager:  manager,
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		interval: opts.Interval,
		metrics:  opts.Metrics,
		logger:   logger.Named("ws"),
	}
}

// Register mounts the stream route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/pipelines/:id/stream", h.HandleConnection)
}

// HandleConnection upgrades the request and streams the pipeline until it is
// removed, the client goes away or the request context ends.
//
// Query parameters: since=S resumes after history sequence S, interval=D sets
// the poll period.
func (h *Handler) HandleConnection(c *gin.Context) {
	pipelineID := c.Param("id")

	var since uint64
	if raw := c.Query("since"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer", "code": "invalid_request"})
			return
		}
		since = n
	}
	interval := h.interval
	if raw := c.Query("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < minInterval {
			c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be a duration of at least 10ms", "code": "invalid_request"})
			return
		}
		interval = d
	}

	// Reject unknown pipelines before upgrading so clients get a plain 404.
	if _, ok := h.manager.Get(pipelineID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not found: " + pipelineID, "code": "not_found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s := &stream{
		handler:    h,
		conn:       conn,
		connID:     id.NewConnID().String(),
		pipelineID: pipelineID,
		cursor:     since,
		logger:     h.logger.ForPipeline(pipelineID),
	}
	s.logger = s.logger.With(logging.ConnID(s.connID))

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	s.logger.Debug("Stream opened")
	s.run(c.Request.Context(), interval)
	s.logger.Debug("Stream closed")
}

// stream is the state of one connection. Only the run goroutine writes to conn.
type stream struct {
	handler    *Handler
	conn       *websocket.Conn
	connID     string
	pipelineID string
	cursor     uint64
	last       *pipeline.Info
	logger     *logging.Logger
}

func (s *stream) run(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pings := make(chan struct{}, 1)
	go s.readLoop(cancel, pings)

	if err := s.send(Frame{Type: FrameConnected, ConnID: s.connID, PipelineID: s.pipelineID}); err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !s.flush() {
			return
		}

		select {
		case <-ctx.Done():
			s.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case <-pings:
			if err := s.send(Frame{Type: FramePong}); err != nil {
				return
			}
		case <-ticker.C:
		}
	}
}

// flush sends new history records and a status frame when the snapshot changed.
// It returns false once the connection should end.
func (s *stream) flush() bool {
	msgs, err := s.handler.manager.Messages(s.pipelineID, s.cursor)
	if err != nil {
		s.closeWith(websocket.CloseNormalClosure, "pipeline removed")
		return false
	}
	for i := range msgs {
		if err := s.send(Frame{Type: FrameMessage, PipelineID: s.pipelineID, Message: &msgs[i]}); err != nil {
			return false
		}
		s.cursor = msgs[i].Seq
	}

	info, ok := s.handler.manager.Get(s.pipelineID)
	if !ok {
		s.closeWith(websocket.CloseNormalClosure, "pipeline removed")
		return false
	}
	if s.last == nil || changed(*s.last, info) {
		s.last = &info
		if err := s.send(Frame{Type: FrameStatus, PipelineID: s.pipelineID, Status: &info}); err != nil {
			return false
		}
	}
	return true
}

func changed(a, b pipeline.Info) bool {
	return a.State != b.State ||
		a.ErrorCount != b.ErrorCount ||
		a.WarningCount != b.WarningCount ||
		a.MessageCount != b.MessageCount ||
		a.Monitoring != b.Monitoring ||
		a.MonitorLost != b.MonitorLost ||
		!a.LastStateChange.Equal(b.LastStateChange)
}

// readLoop drains client frames. Read errors end the stream.
func (s *stream) readLoop(cancel context.CancelFunc, pings chan<- struct{}) {
	defer cancel()

	s.conn.SetReadLimit(utils.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientFrame
		if err := sonic.Unmarshal(data, &msg); err != nil {
			s.record("in", "invalid")
			continue
		}
		s.record("in", msg.Type)
		if msg.Type == "ping" {
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}
}

func (s *stream) send(f Frame) error {
	f.Timestamp = time.Now().Unix()
	data, err := sonic.Marshal(f)
	if err != nil {
		s.logger.Error("Failed to encode frame", zap.String("type", f.Type), zap.Error(err))
		return err
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	s.record("out", f.Type)
	return nil
}

// closeWith sends a final closed frame and a close control message.
func (s *stream) closeWith(code int, reason string) {
	_ = s.send(Frame{Type: FrameClosed, PipelineID: s.pipelineID, Reason: reason})
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait),
	)
}

func (s *stream) record(direction, msgType string) {
	if s.handler.metrics != nil {
		s.handler.metrics.RecordWSMessage(direction, msgType)
	}
}
