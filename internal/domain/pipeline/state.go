package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// ParseState converts a state name (null, ready, paused, playing) to an engine state.
func ParseState(name string) (engine.State, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "null":
		return engine.StateNull, nil
	case "ready":
		return engine.StateReady, nil
	case "paused":
		return engine.StatePaused, nil
	case "playing":
		return engine.StatePlaying, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected null, ready, paused or playing)", ErrInvalidState, name)
	}
}

// SetState requests a transition to target and returns the resulting state. A
// synchronous success is confirmed by querying the engine; an asynchronous or
// no-preroll acceptance returns target without waiting. Rejections leave the
// declared state untouched.
func (m *Manager) SetState(ctx context.Context, id string, target engine.State) (engine.State, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if target < engine.StateNull || target > engine.StatePlaying {
		return 0, fmt.Errorf("%w: %s", ErrInvalidState, target)
	}

	e, err := m.lookup(id)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	change, err := e.handle.SetState(target)
	if err != nil {
		m.recordTransition(target, "failure")
		m.logger.Warn("State change rejected",
			logging.PipelineID(id),
			logging.Target(target),
			zap.Error(err))
		return 0, &StateChangeError{ID: id, Target: target, Err: err}
	}

	e.declared = target
	e.lastChange = time.Now()
	m.recordTransition(target, change.String())
	m.logger.Info("State change requested",
		logging.PipelineID(id),
		logging.Target(target),
		zap.Stringer("result", change))

	if change != engine.ChangeSuccess {
		return target, nil
	}
	current, _ := e.handle.QueryState(m.cfg.StateQueryTimeout)
	if current == engine.StateVoidPending {
		current = target
	}
	return current, nil
}

func (m *Manager) recordTransition(target engine.State, result string) {
	if m.metrics != nil {
		m.metrics.RecordStateTransition(target.String(), result)
	}
}
