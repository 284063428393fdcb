package pipeline

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
)

var (
	ErrCapacityExceeded = errors.New("maximum number of pipelines reached")
	ErrNotFound         = errors.New("pipeline not found")
	ErrParse            = errors.New("invalid pipeline description")
	ErrGraphType        = errors.New("description does not build a top-level pipeline")
	ErrStateChange      = errors.New("state change rejected")
	ErrInitialization   = errors.New("engine initialization failed")
	ErrInvalidState     = errors.New("invalid pipeline state")
	ErrAlreadyExists    = errors.New("pipeline id already in use")
	ErrMonitorRunning   = errors.New("bus monitor already running")
	ErrInvalidID        = errors.New("invalid pipeline id")
)

// StateChangeError reports a transition the engine rejected.
type StateChangeError struct {
	ID     string
	Target engine.State
	Err    error
}

func (e *StateChangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to set pipeline %s to %s: %v", e.ID, e.Target, e.Err)
	}
	return fmt.Sprintf("failed to set pipeline %s to %s", e.ID, e.Target)
}

func (e *StateChangeError) Is(target error) bool { return target == ErrStateChange }

func (e *StateChangeError) Unwrap() error { return e.Err }

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrNotFound, "not_found"},
	{ErrParse, "parse_error"},
	{ErrGraphType, "graph_type"},
	{ErrStateChange, "state_change"},
	{ErrInitialization, "initialization"},
	{ErrInvalidState, "invalid_state"},
	{ErrAlreadyExists, "already_exists"},
	{ErrMonitorRunning, "monitor_running"},
	{ErrInvalidID, "invalid_id"},
}

// Code returns a stable machine-readable code for a domain error, or "internal".
func Code(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
