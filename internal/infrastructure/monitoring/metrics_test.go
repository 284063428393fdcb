package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestNewMetricsUsesPrivateRegistry(t *testing.T) {
	// Two collectors on separate registries must not collide.
	assert.NotPanics(t, func() {
		newTestMetrics(t)
		newTestMetrics(t)
	})
}

func TestPipelineMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetPipelinesActive(3)
	m.IncPipelinesCreated()
	m.IncPipelinesCreated()
	m.RecordCreateFailure("capacity_exceeded")
	m.RecordStateTransition("PLAYING", "async")
	m.RecordBusMessage("ERROR")
	m.RecordBusMessage("ERROR")
	m.IncBusMonitors()
	m.IncBusMonitors()
	m.DecBusMonitors()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PipelinesActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PipelinesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CreateFailures.WithLabelValues("capacity_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StateTransitions.WithLabelValues("PLAYING", "async")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BusMessages.WithLabelValues("ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BusMonitorsActive))
}

func TestUptimeIsExported(t *testing.T) {
	_, reg := newTestMetrics(t)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "streamos_uptime_seconds" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTimerRecordsToolCall(t *testing.T) {
	m, _ := newTestMetrics(t)

	timer := NewTimer(m, "gst_list_pipelines")
	timer.Stop("success")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("gst_list_pipelines", "success")))
	assert.NotPanics(t, func() { NewTimer(nil, "noop").Stop("success") })
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := newTestMetrics(t)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/pipelines/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pipelines/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/pipelines/:id", "404")))
	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.Less(t, m.Uptime(), time.Minute)
}

func TestSnapshotTotals(t *testing.T) {
	m, _ := newTestMetrics(t)
	assert.Zero(t, m.Snapshot().AverageLatency())

	m.RecordHTTPRequest("GET", "/health", "200", 10*time.Millisecond, 0, 10)
	m.RecordHTTPRequest("POST", "/pipelines", "500", 30*time.Millisecond, 10, 10)
	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.Equal(t, int64(1), snap.ActiveConnections)
	assert.Equal(t, 20*time.Millisecond, snap.AverageLatency())
}
