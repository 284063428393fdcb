package pipeline

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
	"github.com/GriffinCanCode/StreamOS/backend/internal/engine/enginetest"
	"github.com/GriffinCanCode/StreamOS/backend/internal/engine/sim"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/monitoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newSimManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	eng := sim.New(sim.Options{PrerollDelay: 5 * time.Millisecond, BufferDuration: time.Millisecond})
	m := NewManager(eng, cfg)
	t.Cleanup(m.Close)
	return m
}

func newMockManager(t *testing.T, cfg Config) (*Manager, *enginetest.MockEngine) {
	t.Helper()
	eng := enginetest.NewMockEngine(t)
	m := NewManager(eng, cfg)
	t.Cleanup(m.Close)
	return m, eng
}

// simHandle returns the simulated pipeline behind a registered id.
func simHandle(t *testing.T, m *Manager, id string) *sim.Pipeline {
	t.Helper()
	e, err := m.lookup(id)
	require.NoError(t, err)
	p, ok := e.handle.(*sim.Pipeline)
	require.True(t, ok)
	return p
}

func TestCreate(t *testing.T) {
	m := newSimManager(t, DefaultConfig())
	ctx := context.Background()

	id1, err := m.Create(ctx, "fakesrc ! fakesink", CreateOptions{})
	require.NoError(t, err)
	id2, err := m.Create(ctx, "videotestsrc ! videoconvert ! autovideosink", CreateOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Regexp(t, `^pipeline-[0-9a-f-]{36}$`, id1)

	info, ok := m.Get(id1)
	require.True(t, ok)
	assert.Equal(t, engine.StateNull, info.State)
	assert.Equal(t, "fakesrc ! fakesink", info.Description)
	assert.False(t, info.Monitoring)
	assert.Zero(t, info.ErrorCount)
	assert.Equal(t, 2, m.Len())
}

func TestCreateWithCustomID(t *testing.T) {
	m := newSimManager(t, DefaultConfig())
	ctx := context.Background()

	id, err := m.Create(ctx, "fakesrc ! fakesink", CreateOptions{ID: "camera-1"})
	require.NoError(t, err)
	assert.Equal(t, "camera-1", id)

	_, err = m.Create(ctx, "fakesrc ! fakesink", CreateOptions{ID: "camera-1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, 1, m.Len())

	_, err = m.Create(ctx, "fakesrc ! fakesink", CreateOptions{ID: "../etc"})
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.Equal(t, "invalid_id", Code(err))
	assert.Equal(t, 1, m.Len())
}

func TestCreateRejectsOversizedDescription(t *testing.T) {
	m := newSimManager(t, DefaultConfig())

	_, err := m.Create(context.Background(), "fakesrc ! "+strings.Repeat("identity ! ", 2000)+"fakesink", CreateOptions{})
	assert.ErrorIs(t, err, ErrParse)
	assert.Zero(t, m.Len())

	_, err = m.Validate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrParse)
}

func TestCreateParseError(t *testing.T) {
	m := newSimManager(t, DefaultConfig())
	ctx := context.Background()

	for _, desc := range []string{"fakesrc ! ! fakesink", "fakesrc !", "", "nosuchelement ! fakesink"} {
		_, err := m.Create(ctx, desc, CreateOptions{})
		assert.ErrorIs(t, err, ErrParse, desc)
	}
	assert.Zero(t, m.Len())
}

func TestCreateGraphType(t *testing.T) {
	m, eng := newMockManager(t, DefaultConfig())
	el := enginetest.NewMockElement(t, "fakesrc0")
	eng.On("Parse", "fakesrc").Return(el, nil)

	_, err := m.Create(context.Background(), "fakesrc", CreateOptions{})
	assert.ErrorIs(t, err, ErrGraphType)
	assert.Zero(t, m.Len())
	el.AssertCalled(t, "Close")
}

func TestCreateInitializationFailureIsReplayed(t *testing.T) {
	eng := new(enginetest.MockEngine)
	eng.On("Init").Return(errors.New("plugin registry unavailable")).Once()
	m := NewManager(eng, DefaultConfig())

	for i := 0; i < 3; i++ {
		_, err := m.Create(context.Background(), "fakesrc ! fakesink", CreateOptions{})
		assert.ErrorIs(t, err, ErrInitialization)
	}
	eng.AssertNumberOfCalls(t, "Init", 1)
	eng.AssertNotCalled(t, "Parse", mock.Anything)
}

func TestCreateHonorsContext(t *testing.T) {
	m := newSimManager(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Create(ctx, "fakesrc ! fakesink", CreateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCapacity(t *testing.T) {
	m := newSimManager(t, DefaultConfig())
	ctx := context.Background()

	var ids []string
	for i := 0; i < DefaultMaxPipelines; i++ {
		id, err := m.Create(ctx, "fakesrc ! fakesink", CreateOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err := m.Create(ctx, "fakesrc ! fakesink", CreateOptions{})
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, DefaultMaxPipelines, m.Len())

	require.NoError(t, m.Remove(ids[0]))

	_, err = m.Create(ctx, "fakesrc ! fakesink", CreateOptions{})
	assert.NoError(t, err)
	assert.Equal(t, DefaultMaxPipelines, m.Len())
}

func TestDuplicateIDReportedBeforeCapacity(t *testing.T) {
	m := newSimManager(t, Config{MaxPipelines: 1})
	ctx := context.Background()

	_, err := m.Create(ctx, "fakesrc ! fakesink", CreateOptions{ID: "only"})
	require.NoError(t, err)

	_, err = m.Create(ctx, "fakesrc ! fakesink", CreateOptions{ID: "only"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = m.Create(ctx, "fakesrc ! fakesink", CreateOptions{ID: "other"})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCapacityUnderConcurrency(t *testing.T) {
	const limit = 3
	m := newSimManager(t, Config{MaxPipelines: limit})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(context.Background(), "fakesrc ! fakesink", CreateOptions{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCapacityExceeded):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, ok)
	assert.Equal(t, 16-limit, full)
	assert.Equal(t, limit, m.Len())
}

func TestCreateRaceLoserIsReleased(t *testing.T) {
	m, eng := newMockManager(t, Config{MaxPipelines: 1})

	var entered sync.WaitGroup
	entered.Add(2)
	gate := make(chan struct{})
	pipes := []*enginetest.MockPipeline{
		enginetest.NewMockPipeline(t, "pipeline0"),
		enginetest.NewMockPipeline(t, "pipeline1"),
	}
	wait := func(mock.Arguments) {
		entered.Done()
		<-gate
	}
	eng.On("Parse", "fakesrc ! fakesink").Run(wait).Return(pipes[0], nil).Once()
	eng.On("Parse", "fakesrc ! fakesink").Run(wait).Return(pipes[1], nil).Once()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := m.Create(context.Background(), "fakesrc ! fakesink", CreateOptions{})
			errs <- err
		}()
	}
	entered.Wait()
	close(gate)

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			assert.ErrorIs(t, err, ErrCapacityExceeded)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, pipes[0].Closes()+pipes[1].Closes(), "only the losing handle is released")
}

func TestRemove(t *testing.T) {
	m := newSimManager(t, DefaultConfig())
	ctx := context.Background()

	id, err := m.Create(ctx, "fakesrc ! fakesink", CreateOptions{})
	require.NoError(t, err)
	_, err = m.SetState(ctx, id, engine.StatePlaying)
	require.NoError(t, err)
	handle := simHandle(t, m, id)

	require.NoError(t, m.Remove(id))

	_, ok := m.Get(id)
	assert.False(t, ok)
	assert.True(t, handle.Closed())
	assert.Equal(t, engine.StateNull, handle.State())

	assert.ErrorIs(t, m.Remove(id), ErrNotFound)
}

func TestRemoveDrivesMockHandleToNull(t *testing.T) {
	m, eng := newMockManager(t, DefaultConfig())
	pipe := enginetest.NewMockPipeline(t, "pipeline0")
	eng.On("Parse", "fakesrc ! fakesink").Return(pipe, nil)

	id, err := m.Create(context.Background(), "fakesrc ! fakesink", CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, m.Remove(id))

	pipe.AssertCalled(t, "SetState", engine.StateNull)
	assert.Equal(t, 1, pipe.Closes())
}

func TestUnreachableEntryIsReleased(t *testing.T) {
	pipe := enginetest.NewMockPipeline(t, "pipeline0")

	func() {
		newEntry("orphan", "fakesrc ! fakesink", pipe, 10)
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return pipe.Closes() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestList(t *testing.T) {
	m := newSimManager(t, DefaultConfig())
	ctx := context.Background()

	assert.Empty(t, m.List())

	first, err := m.Create(ctx, "fakesrc ! fakesink", CreateOptions{ID: "first"})
	require.NoError(t, err)
	_, err = m.Create(ctx, "audiotestsrc ! audioconvert ! autoaudiosink", CreateOptions{ID: "second"})
	require.NoError(t, err)

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, first, infos[0].ID)

	// Snapshots are copies.
	infos[0].Description = "changed"
	info, _ := m.Get(first)
	assert.Equal(t, "fakesrc ! fakesink", info.Description)
}

func TestClose(t *testing.T) {
	eng := sim.New(sim.Options{PrerollDelay: time.Millisecond})
	m := NewManager(eng, DefaultConfig())
	ctx := context.Background()

	var handles []*sim.Pipeline
	for i := 0; i < 3; i++ {
		id, err := m.Create(ctx, "fakesrc ! fakesink", CreateOptions{Monitor: true})
		require.NoError(t, err)
		handles = append(handles, simHandle(t, m, id))
	}

	m.Close()

	assert.Zero(t, m.Len())
	for _, h := range handles {
		assert.True(t, h.Closed())
	}
}

func TestManagerMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	m := newSimManager(t, Config{MaxPipelines: 1})
	m.WithMetrics(metrics)
	ctx := context.Background()

	id, err := m.Create(ctx, "fakesrc ! fakesink", CreateOptions{})
	require.NoError(t, err)
	_, err = m.Create(ctx, "fakesrc ! fakesink", CreateOptions{})
	require.Error(t, err)
	_, err = m.SetState(ctx, id, engine.StatePlaying)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelinesActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelinesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CreateFailures.WithLabelValues("capacity_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StateTransitions.WithLabelValues("PLAYING", "async")))

	require.NoError(t, m.Remove(id))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelinesActive))
}

func TestCode(t *testing.T) {
	assert.Equal(t, "not_found", Code(ErrNotFound))
	assert.Equal(t, "state_change", Code(&StateChangeError{ID: "p", Target: engine.StatePlaying}))
	assert.Equal(t, "parse_error", Code(errors.Join(errors.New("context"), ErrParse)))
	assert.Equal(t, "internal", Code(errors.New("boom")))
}
