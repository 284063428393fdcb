package pipeline

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
)

// Info is a point-in-time snapshot of a registered pipeline.
type Info struct {
	ID              string       `json:"id"`
	Description     string       `json:"description"`
	State           engine.State `json:"state"`
	CreatedAt       time.Time    `json:"created_at"`
	LastStateChange time.Time    `json:"last_state_change"`
	ErrorCount      uint64       `json:"error_count"`
	WarningCount    uint64       `json:"warning_count"`
	MessageCount    int          `json:"message_count"`
	Monitoring      bool         `json:"monitoring"`
	MonitorLost     bool         `json:"monitor_lost"`
}

// Status is Info plus live engine queries and recent history.
type Status struct {
	Info
	CurrentState engine.State   `json:"current_state"`
	PendingState engine.State   `json:"pending_state"`
	Position     *time.Duration `json:"position_ns,omitempty"`
	Duration     *time.Duration `json:"duration_ns,omitempty"`
	Messages     []Message      `json:"messages,omitempty"`
}

// entry owns one engine handle. mu guards the handle and metadata; the history
// carries its own lock so bus appends never wait on a state transition.
type entry struct {
	id          string
	description string
	createdAt   time.Time
	history     *History

	mu          sync.RWMutex
	handle      engine.Pipeline
	declared    engine.State
	lastChange  time.Time
	released    bool
	monitorLost bool
	// non-nil while a bus monitor runs
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}

	releaseOnce sync.Once
	cleanup     runtime.Cleanup
}

func newEntry(id, description string, handle engine.Pipeline, historySize int) *entry {
	now := time.Now()
	e := &entry{
		id:          id,
		description: description,
		createdAt:   now,
		history:     NewHistory(historySize),
		handle:      handle,
		declared:    engine.StateNull,
		lastChange:  now,
	}
	// An entry dropped without release still takes its handle down.
	e.cleanup = runtime.AddCleanup(e, func(h engine.Pipeline) { _ = h.Close() }, handle)
	return e
}

// snapshotLocked builds an Info. Must be called with mu held.
func (e *entry) snapshotLocked() Info {
	errs, warns := e.history.Counts()
	return Info{
		ID:              e.id,
		Description:     e.description,
		State:           e.declared,
		CreatedAt:       e.createdAt,
		LastStateChange: e.lastChange,
		ErrorCount:      errs,
		WarningCount:    warns,
		MessageCount:    e.history.Len(),
		Monitoring:      e.monitorDone != nil,
		MonitorLost:     e.monitorLost,
	}
}

func (e *entry) snapshot() Info {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// beginMonitor registers a monitor bound to a context derived from parent. Only one
// monitor may run per entry.
func (e *entry) beginMonitor(parent context.Context) (context.Context, chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return nil, nil, ErrNotFound
	}
	if e.monitorDone != nil {
		return nil, nil, ErrMonitorRunning
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	e.monitorCancel, e.monitorDone = cancel, done
	e.monitorLost = false
	return ctx, done, nil
}

// endMonitor clears the registration made by beginMonitor. The caller closes done afterwards.
func (e *entry) endMonitor(done chan struct{}, lost bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.monitorDone != done {
		return
	}
	e.monitorCancel()
	e.monitorCancel, e.monitorDone = nil, nil
	e.monitorLost = lost
}

// runningMonitor returns the done channel of the running monitor, or nil.
func (e *entry) runningMonitor() <-chan struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.monitorDone == nil {
		return nil
	}
	return e.monitorDone
}

// stopMonitor cancels the running monitor, if any, and waits for it to exit.
func (e *entry) stopMonitor() {
	e.mu.RLock()
	cancel, done := e.monitorCancel, e.monitorDone
	e.mu.RUnlock()

	if done == nil {
		return
	}
	cancel()
	<-done
}

// release stops the monitor, then drives the handle to NULL and frees it. Safe to call
// more than once.
func (e *entry) release() error {
	var err error
	e.releaseOnce.Do(func() {
		e.mu.Lock()
		e.released = true
		e.mu.Unlock()

		e.stopMonitor()

		e.mu.Lock()
		defer e.mu.Unlock()
		_, _ = e.handle.SetState(engine.StateNull)
		err = e.handle.Close()
		e.declared = engine.StateNull
		e.lastChange = time.Now()
		e.cleanup.Stop()
	})
	return err
}
