package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/domain/pipeline"
	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
	"github.com/GriffinCanCode/StreamOS/backend/internal/engine/sim"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T, cfg pipeline.Config) (*gin.Engine, *pipeline.Manager) {
	return setupTestRouterWith(t, cfg, Options{})
}

func setupTestRouterWith(t *testing.T, cfg pipeline.Config, opts Options) (*gin.Engine, *pipeline.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng := sim.New(sim.Options{PrerollDelay: 5 * time.Millisecond, BufferDuration: time.Millisecond})
	manager := pipeline.NewManager(eng, cfg)
	t.Cleanup(manager.Close)

	router := gin.New()
	NewHandlers(manager, opts).Register(router)
	return router, manager
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	router, _ := setupTestRouter(t, pipeline.DefaultConfig())

	w, resp := do(t, router, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])
	assert.EqualValues(t, 0, resp["pipelines"])
	assert.EqualValues(t, 10, resp["max_pipelines"])
}

func TestHealthReportsRequestTotals(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	router, _ := setupTestRouterWith(t, pipeline.DefaultConfig(), Options{Metrics: metrics})
	metrics.RecordHTTPRequest("GET", "/pipelines/:id", "404", 4*time.Millisecond, 0, 0)
	metrics.IncWSConnections()

	w, resp := do(t, router, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	totals, ok := resp["requests"].(map[string]any)
	require.True(t, ok, w.Body.String())
	assert.EqualValues(t, 1, totals["total_requests"])
	assert.EqualValues(t, 1, totals["total_errors"])
	assert.EqualValues(t, 1, totals["ws_connections"])
	assert.EqualValues(t, 4, resp["avg_latency_ms"])
}

func TestCreateAndGetPipeline(t *testing.T) {
	router, manager := setupTestRouter(t, pipeline.DefaultConfig())

	w, resp := do(t, router, "POST", "/pipelines", gin.H{"description": "videotestsrc ! fakesink", "id": "cam"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "cam", resp["id"])
	assert.Equal(t, "PLAYING", resp["state"])

	w, resp = do(t, router, "GET", "/pipelines/cam", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cam", resp["id"])
	assert.Equal(t, "videotestsrc ! fakesink", resp["description"])

	// current_state is a zero-timeout query, so it trails the preroll.
	require.Eventually(t, func() bool {
		_, resp := do(t, router, "GET", "/pipelines/cam", nil)
		return resp["current_state"] == "PLAYING"
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, manager.Len())
}

func TestCreatePipelineWithoutAutoPlay(t *testing.T) {
	router, _ := setupTestRouter(t, pipeline.DefaultConfig())

	w, resp := do(t, router, "POST", "/pipelines", gin.H{"description": "fakesrc ! fakesink", "auto_play": false})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "NULL", resp["state"])
	assert.Regexp(t, `^pipeline-`, resp["id"])
}

func TestCreatePipelineErrors(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.MaxPipelines = 1
	router, _ := setupTestRouter(t, cfg)

	w, _ := do(t, router, "POST", "/pipelines", gin.H{"description": "fakesrc ! fakesink", "id": "a", "auto_play": false})
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"missing description", gin.H{"id": "x"}, http.StatusBadRequest, "invalid_request"},
		{"unsafe id", gin.H{"description": "fakesrc ! fakesink", "id": "a/b"}, http.StatusBadRequest, "invalid_id"},
		{"duplicate id", gin.H{"description": "fakesrc ! fakesink", "id": "a"}, http.StatusConflict, "already_exists"},
		{"capacity", gin.H{"description": "fakesrc ! fakesink", "id": "b"}, http.StatusTooManyRequests, "capacity_exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, router, "POST", "/pipelines", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, resp["code"])
		})
	}
}

func TestCreatePipelineParseError(t *testing.T) {
	router, manager := setupTestRouter(t, pipeline.DefaultConfig())

	w, resp := do(t, router, "POST", "/pipelines", gin.H{"description": "nosuchelement ! fakesink"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "parse_error", resp["code"])
	assert.Zero(t, manager.Len())
}

func TestCreatePipelineStartFailureKeepsPipeline(t *testing.T) {
	router, manager := setupTestRouter(t, pipeline.DefaultConfig())

	w, resp := do(t, router, "POST", "/pipelines", gin.H{"description": "filesrc ! fakesink", "id": "nofile"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "state_change", resp["code"])
	assert.Equal(t, "nofile", resp["id"])

	_, ok := manager.Get("nofile")
	assert.True(t, ok)
}

func TestListPipelines(t *testing.T) {
	router, _ := setupTestRouter(t, pipeline.DefaultConfig())

	for _, id := range []string{"one", "two"} {
		w, _ := do(t, router, "POST", "/pipelines", gin.H{"description": "fakesrc ! fakesink", "id": id, "auto_play": false})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, resp := do(t, router, "GET", "/pipelines", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, resp["count"])
	assert.EqualValues(t, 10, resp["capacity"])

	items, ok := resp["pipelines"].([]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "NULL", first["state"])
	assert.NotContains(t, first, "description")

	w, resp = do(t, router, "GET", "/pipelines?details=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items = resp["pipelines"].([]any)
	assert.Contains(t, items[0].(map[string]any), "description")
}

func TestValidatePipeline(t *testing.T) {
	router, manager := setupTestRouter(t, pipeline.DefaultConfig())

	w, resp := do(t, router, "POST", "/pipelines/validate", gin.H{"description": "fakesrc ! identity name=x ! fakesink"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["valid"])
	assert.Equal(t, []any{"fakesrc", "identity", "fakesink"}, resp["elements"])

	w, resp = do(t, router, "POST", "/pipelines/validate", gin.H{"description": "fakesrc ! bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, resp["valid"])
	assert.Equal(t, "parse_error", resp["code"])

	assert.Zero(t, manager.Len())
}

func TestSetState(t *testing.T) {
	router, _ := setupTestRouter(t, pipeline.DefaultConfig())

	w, _ := do(t, router, "POST", "/pipelines", gin.H{"description": "fakesrc ! fakesink", "id": "p", "auto_play": false})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := do(t, router, "PUT", "/pipelines/p/state", gin.H{"state": "paused"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "PAUSED", resp["state"])

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"unknown state", "/pipelines/p/state", gin.H{"state": "RUNNING"}, http.StatusBadRequest, "invalid_state"},
		{"missing state", "/pipelines/p/state", gin.H{}, http.StatusBadRequest, "invalid_request"},
		{"unknown pipeline", "/pipelines/nope/state", gin.H{"state": "PLAYING"}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, router, "PUT", tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, resp["code"])
		})
	}
}

func TestGetPipelineMessagesQuery(t *testing.T) {
	router, _ := setupTestRouter(t, pipeline.DefaultConfig())

	w, _ := do(t, router, "GET", "/pipelines/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, router, "POST", "/pipelines", gin.H{"description": "fakesrc ! fakesink", "id": "p", "auto_play": false})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := do(t, router, "GET", "/pipelines/p?messages=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", resp["code"])

	w, resp = do(t, router, "GET", "/pipelines/p/messages?since=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", resp["code"])
}

func TestWatchBlockingUntilEndOfStream(t *testing.T) {
	router, _ := setupTestRouter(t, pipeline.DefaultConfig())

	w, _ := do(t, router, "POST", "/pipelines", gin.H{"description": "fakesrc num-buffers=5 ! fakesink", "id": "w"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := do(t, router, "POST", "/pipelines/w/watch?timeout=2s", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	msgs, ok := resp["messages"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1].(map[string]any)
	assert.Equal(t, "EOS", last["kind"])
	assert.EqualValues(t, last["seq"], resp["last_seq"])

	// The retained history is readable afterwards with a cursor.
	w, resp = do(t, router, "GET", "/pipelines/w/messages?since=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["messages"], len(msgs))

	w, resp = do(t, router, "GET", "/pipelines/w/messages?since=1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp["messages"])
	assert.EqualValues(t, 1000, resp["last_seq"])
}

func TestWatchBadTimeout(t *testing.T) {
	router, _ := setupTestRouter(t, pipeline.DefaultConfig())

	w, _ := do(t, router, "POST", "/pipelines", gin.H{"description": "fakesrc ! fakesink", "id": "p", "auto_play": false})
	require.Equal(t, http.StatusCreated, w.Code)

	for _, q := range []string{"timeout=abc", "timeout=-1s", "timeout=1h"} {
		w, resp := do(t, router, "POST", "/pipelines/p/watch?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, "invalid_request", resp["code"], q)
	}
}

func TestWatchAsyncConflict(t *testing.T) {
	router, manager := setupTestRouter(t, pipeline.DefaultConfig())

	w, _ := do(t, router, "POST", "/pipelines", gin.H{"description": "videotestsrc ! fakesink", "id": "p"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := do(t, router, "POST", "/pipelines/p/watch?mode=async", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, resp["monitoring"])

	info, ok := manager.Get("p")
	require.True(t, ok)
	assert.True(t, info.Monitoring)

	w, resp = do(t, router, "POST", "/pipelines/p/watch?mode=async", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "monitor_running", resp["code"])

	// A blocking watch follows the running monitor instead of competing for the bus.
	w, resp = do(t, router, "POST", "/pipelines/p/watch?timeout=50ms", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, resp["messages"])

	info, _ = manager.Get("p")
	assert.True(t, info.Monitoring)
}

func TestWatchBlockingWithBusMonitor(t *testing.T) {
	router, manager := setupTestRouterWith(t, pipeline.DefaultConfig(), Options{MonitorBus: true})

	w, _ := do(t, router, "POST", "/pipelines", gin.H{"description": "fakesrc num-buffers=50 ! fakesink", "id": "w", "auto_play": false})
	require.Equal(t, http.StatusCreated, w.Code)
	info, ok := manager.Get("w")
	require.True(t, ok)
	require.True(t, info.Monitoring)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = manager.SetState(context.Background(), "w", engine.StatePlaying)
	}()

	w, resp := do(t, router, "POST", "/pipelines/w/watch?timeout=2s", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	msgs, ok := resp["messages"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1].(map[string]any)
	assert.Equal(t, "EOS", last["kind"])
}

func TestDeletePipeline(t *testing.T) {
	router, manager := setupTestRouter(t, pipeline.DefaultConfig())

	w, _ := do(t, router, "POST", "/pipelines", gin.H{"description": "videotestsrc ! fakesink", "id": "p"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := do(t, router, "DELETE", "/pipelines/p", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["removed"])
	assert.Zero(t, manager.Len())

	w, resp = do(t, router, "DELETE", "/pipelines/p", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", resp["code"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{pipeline.ErrNotFound, http.StatusNotFound},
		{pipeline.ErrCapacityExceeded, http.StatusTooManyRequests},
		{pipeline.ErrParse, http.StatusBadRequest},
		{pipeline.ErrGraphType, http.StatusBadRequest},
		{pipeline.ErrInvalidState, http.StatusBadRequest},
		{pipeline.ErrInvalidID, http.StatusBadRequest},
		{pipeline.ErrAlreadyExists, http.StatusConflict},
		{pipeline.ErrMonitorRunning, http.StatusConflict},
		{&pipeline.StateChangeError{ID: "p"}, http.StatusUnprocessableEntity},
		{pipeline.ErrInitialization, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusRequestTimeout},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
