package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// blockingPollSlice bounds each engine poll so a blocking watch notices cancellation.
const blockingPollSlice = 100 * time.Millisecond

// Watch starts the asynchronous bus monitor for a pipeline.
func (m *Manager) Watch(id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := m.startMonitor(e); err != nil {
		return fmt.Errorf("failed to watch %s: %w", id, err)
	}
	return nil
}

func (m *Manager) startMonitor(e *entry) error {
	ctx, done, err := e.beginMonitor(context.Background())
	if err != nil {
		return err
	}

	e.mu.RLock()
	events, unsubscribe := e.handle.Events()
	e.mu.RUnlock()

	go m.monitor(ctx, e, events, unsubscribe, done)
	return nil
}

// monitor drains the event stream into the entry's history until EOS, cancellation
// or the end of the stream.
func (m *Manager) monitor(ctx context.Context, e *entry, events <-chan engine.RawEvent, unsubscribe func(), done chan struct{}) {
	var (
		lost     bool
		sawError bool
	)
	log := m.logger.ForPipeline(e.id)

	m.monitorStarted()
	defer close(done)
	defer func() { e.endMonitor(done, lost) }()
	defer m.monitorStopped()
	defer unsubscribe()

	log.Debug("Bus monitor started")
	for {
		select {
		case <-ctx.Done():
			log.Debug("Bus monitor cancelled")
			return
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() == nil && !sawError {
					lost = true
					log.Warn("Bus stream ended without end-of-stream")
				}
				return
			}
			msg, recorded := m.record(e, ev)
			if !recorded {
				continue
			}
			switch msg.Kind {
			case KindEOS:
				log.Debug("Bus monitor reached end of stream")
				return
			case KindError:
				sawError = true
			}
		}
	}
}

// WatchBlocking waits in the caller's goroutine for the pipeline's next terminal record.
// It polls the bus itself when no monitor owns it, and otherwise follows the records
// the running monitor appends to the history. It returns nil after an EOS or ERROR
// record or when pollTimeout passes without a message, and ctx.Err() when ctx ends
// first. A non-positive pollTimeout uses the configured default.
func (m *Manager) WatchBlocking(ctx context.Context, id string, pollTimeout time.Duration) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if pollTimeout <= 0 {
		pollTimeout = m.cfg.BusPollTimeout
	}

	w := &blockingWatch{
		m:           m,
		e:           e,
		pollTimeout: pollTimeout,
		deadline:    time.Now().Add(pollTimeout),
		cursor:      e.history.LastSeq(),
	}
	for {
		watchCtx, done, err := e.beginMonitor(ctx)
		if err == nil {
			return w.poll(ctx, watchCtx, done)
		}
		if !errors.Is(err, ErrMonitorRunning) {
			return fmt.Errorf("failed to watch %s: %w", id, err)
		}

		finished, err := w.follow(ctx, e.runningMonitor())
		if finished || err != nil {
			return err
		}
		// The owning monitor exited; take the bus over.
	}
}

// blockingWatch tracks one WatchBlocking call across bus ownership changes.
type blockingWatch struct {
	m           *Manager
	e           *entry
	pollTimeout time.Duration
	deadline    time.Time
	cursor      uint64 // newest record seen
}

func (w *blockingWatch) seen(msg Message) bool {
	w.cursor = msg.Seq
	w.deadline = time.Now().Add(w.pollTimeout)
	return msg.Terminal()
}

// poll owns the bus until a terminal record, silence or cancellation.
func (w *blockingWatch) poll(ctx, watchCtx context.Context, done chan struct{}) error {
	m, e := w.m, w.e
	m.monitorStarted()
	defer close(done)
	defer e.endMonitor(done, false)
	defer m.monitorStopped()

	e.mu.RLock()
	handle := e.handle
	e.mu.RUnlock()

	for {
		if watchCtx.Err() != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s was removed while watching", ErrNotFound, e.id)
		}

		wait := min(time.Until(w.deadline), blockingPollSlice)
		if wait <= 0 {
			return nil
		}
		ev, ok := handle.Pop(wait)
		if !ok {
			continue
		}
		w.deadline = time.Now().Add(w.pollTimeout)

		if msg, recorded := m.record(e, ev); recorded && w.seen(msg) {
			return nil
		}
	}
}

// follow reads the records another monitor appends. It reports finished=false once
// owner closes so the caller can claim the bus.
func (w *blockingWatch) follow(ctx context.Context, owner <-chan struct{}) (finished bool, err error) {
	if owner == nil {
		return false, nil
	}
	for {
		appended := w.e.history.Appended()
		for _, msg := range w.e.history.Since(w.cursor) {
			if w.seen(msg) {
				return true, nil
			}
		}
		if owner == nil {
			return false, nil
		}

		wait := time.Until(w.deadline)
		if wait <= 0 {
			return true, nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return true, ctx.Err()
		case <-owner:
			// Drain what the owner recorded before it left.
			owner = nil
		case <-appended:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// record classifies ev and appends it to the entry's history.
func (m *Manager) record(e *entry, ev engine.RawEvent) (Message, bool) {
	msg, ok := Classify(ev)
	if !ok {
		return Message{}, false
	}
	msg = e.history.Append(msg)

	if m.metrics != nil {
		m.metrics.RecordBusMessage(string(msg.Kind))
	}

	fields := []zap.Field{
		logging.PipelineID(e.id),
		zap.Uint64("seq", msg.Seq),
		zap.String("source", msg.Source),
	}
	switch msg.Kind {
	case KindError:
		m.logger.Error(msg.Text, fields...)
	case KindWarning:
		m.logger.Warn(msg.Text, fields...)
	default:
		m.logger.Debug(msg.Text, fields...)
	}
	return msg, true
}

func (m *Manager) monitorStarted() {
	if m.metrics != nil {
		m.metrics.IncBusMonitors()
	}
}

func (m *Manager) monitorStopped() {
	if m.metrics != nil {
		m.metrics.DecBusMonitors()
	}
}
