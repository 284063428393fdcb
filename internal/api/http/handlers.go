package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/domain/pipeline"
	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
)

const maxWatchTimeout = 5 * time.Minute

// Options configures handler defaults.
type Options struct {
	// StatusMessages is the default number of history records in a status response.
	StatusMessages int
	// MonitorBus starts an async bus monitor for created pipelines unless the request overrides it.
	MonitorBus bool
	// Metrics adds request and connection totals to /health when set.
	Metrics *monitoring.Metrics
	Logger  *logging.Logger
}

// Handlers contains all pipeline HTTP handlers
type Handlers struct {
	manager   *pipeline.Manager
	opts      Options
	logger    *logging.Logger
	startedAt time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(manager *pipeline.Manager, opts Options) *Handlers {
	if opts.StatusMessages <= 0 {
		opts.StatusMessages = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		manager:   manager,
		opts:      opts,
		logger:    logger.Named("http"),
		startedAt: time.Now(),
	}
}

// Register mounts the pipeline routes on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	pipelines := r.Group("/pipelines")
	pipelines.GET("", h.ListPipelines)
	pipelines.POST("", h.CreatePipeline)
	pipelines.POST("/validate", h.ValidatePipeline)
	pipelines.GET("/:id", h.GetPipeline)
	pipelines.GET("/:id/messages", h.GetMessages)
	pipelines.PUT("/:id/state", h.SetState)
	pipelines.POST("/:id/watch", h.WatchPipeline)
	pipelines.DELETE("/:id", h.DeletePipeline)
}

type createRequest struct {
	Description string `json:"description" binding:"required"`
	ID          string `json:"id"`
	AutoPlay    *bool  `json:"auto_play"`
	Monitor     *bool  `json:"monitor"`
}

type stateRequest struct {
	State string `json:"state" binding:"required"`
}

type validateRequest struct {
	Description string `json:"description" binding:"required"`
}

// Root reports service identity
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "StreamOS pipeline control",
	})
}

// Health reports registry occupancy
func (h *Handlers) Health(c *gin.Context) {
	cfg := h.manager.Config()
	resp := gin.H{
		"status":         "healthy",
		"pipelines":      h.manager.Len(),
		"max_pipelines":  cfg.MaxPipelines,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if m := h.opts.Metrics; m != nil {
		snap := m.Snapshot()
		resp["uptime_seconds"] = int64(m.Uptime().Seconds())
		resp["requests"] = snap
		resp["avg_latency_ms"] = float64(snap.AverageLatency()) / float64(time.Millisecond)
	}
	c.JSON(http.StatusOK, resp)
}

// ListPipelines lists registered pipelines; ?details=true returns full snapshots.
func (h *Handlers) ListPipelines(c *gin.Context) {
	infos := h.manager.List()
	resp := gin.H{
		"count":    len(infos),
		"capacity": h.manager.Config().MaxPipelines,
	}

	if c.Query("details") == "true" {
		resp["pipelines"] = infos
	} else {
		brief := make([]gin.H, 0, len(infos))
		for _, info := range infos {
			brief = append(brief, gin.H{"id": info.ID, "state": info.State})
		}
		resp["pipelines"] = brief
	}
	c.JSON(http.StatusOK, resp)
}

// CreatePipeline registers a pipeline and, unless auto_play is false, starts it.
func (h *Handlers) CreatePipeline(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	monitor := h.opts.MonitorBus
	if req.Monitor != nil {
		monitor = *req.Monitor
	}

	ctx := c.Request.Context()
	id, err := h.manager.Create(ctx, req.Description, pipeline.CreateOptions{ID: req.ID, Monitor: monitor})
	if err != nil {
		writeError(c, err)
		return
	}

	state := engine.StateNull
	if req.AutoPlay == nil || *req.AutoPlay {
		state, err = h.manager.SetState(ctx, id, engine.StatePlaying)
		if err != nil {
			// The pipeline stays registered so its errors can be inspected.
			c.JSON(statusFor(err), gin.H{
				"error": err.Error(),
				"code":  pipeline.Code(err),
				"id":    id,
			})
			return
		}
	}

	h.logger.Debug("Pipeline created over HTTP", logging.PipelineID(id))
	c.JSON(http.StatusCreated, gin.H{"id": id, "state": state})
}

// ValidatePipeline parses a description without registering it.
func (h *Handlers) ValidatePipeline(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	elements, err := h.manager.Validate(c.Request.Context(), req.Description)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"valid": false,
			"error": err.Error(),
			"code":  pipeline.Code(err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "elements": elements})
}

// GetPipeline returns the live status; ?messages=N bounds the history included.
func (h *Handlers) GetPipeline(c *gin.Context) {
	limit := h.opts.StatusMessages
	if raw := c.Query("messages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, errors.New("messages must be a non-negative integer"))
			return
		}
		limit = n
	}

	st, err := h.manager.Status(c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetMessages returns retained history records newer than ?since=S.
func (h *Handlers) GetMessages(c *gin.Context) {
	var since uint64
	if raw := c.Query("since"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, errors.New("since must be a non-negative integer"))
			return
		}
		since = n
	}

	msgs, err := h.manager.Messages(c.Param("id"), since)
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []pipeline.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "last_seq": lastSeq(msgs, since)})
}

// SetState requests a state transition.
func (h *Handlers) SetState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	target, err := pipeline.ParseState(req.State)
	if err != nil {
		writeError(c, err)
		return
	}

	id := c.Param("id")
	state, err := h.manager.SetState(c.Request.Context(), id, target)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "state": state})
}

// WatchPipeline starts the async bus monitor with ?mode=async, otherwise it
// watches in the request until EOS, ERROR or ?timeout (default 5s) of silence.
func (h *Handlers) WatchPipeline(c *gin.Context) {
	id := c.Param("id")

	if c.Query("mode") == "async" {
		if err := h.manager.Watch(id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": id, "monitoring": true})
		return
	}

	var timeout time.Duration
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxWatchTimeout {
			badRequest(c, errors.New("timeout must be a positive duration up to 5m"))
			return
		}
		timeout = d
	}

	before, err := h.manager.Messages(id, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	cursor := lastSeq(before, 0)

	if err := h.manager.WatchBlocking(c.Request.Context(), id, timeout); err != nil {
		writeError(c, err)
		return
	}

	msgs, err := h.manager.Messages(id, cursor)
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []pipeline.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "messages": msgs, "last_seq": lastSeq(msgs, cursor)})
}

// DeletePipeline stops and removes a pipeline; ?force=true removes it even
// when the NULL transition is rejected.
func (h *Handlers) DeletePipeline(c *gin.Context) {
	id := c.Param("id")
	force := c.Query("force") == "true"

	if err := h.manager.Stop(c.Request.Context(), id, force); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "removed": true})
}

func lastSeq(msgs []pipeline.Message, fallback uint64) uint64 {
	if len(msgs) == 0 {
		return fallback
	}
	return msgs[len(msgs)-1].Seq
}
