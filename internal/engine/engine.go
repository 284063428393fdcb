package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStateChangeFailure is returned by Pipeline.SetState when the engine rejects a transition.
	ErrStateChangeFailure = errors.New("state change failed")
)

// State is an engine-level pipeline state.
type State int

const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

// String returns the engine's canonical name for the state.
func (s State) String() string {
	switch s {
	case StateVoidPending:
		return "VOID_PENDING"
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a canonical state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateVoidPending; st <= StatePlaying; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// StateChange describes how the engine accepted a transition request.
type StateChange int

const (
	// ChangeSuccess means the pipeline reached the target before SetState returned.
	ChangeSuccess StateChange = iota
	// ChangeAsync means the transition continues in the background.
	ChangeAsync
	// ChangeNoPreroll means the pipeline has live sources that cannot preroll.
	ChangeNoPreroll
)

func (c StateChange) String() string {
	switch c {
	case ChangeSuccess:
		return "success"
	case ChangeAsync:
		return "async"
	case ChangeNoPreroll:
		return "no_preroll"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// EventKind tags a RawEvent.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventEOS
	EventError
	EventWarning
	EventInfo
	EventStateChanged
	EventBuffering
	EventTag
	EventStreamStatus
	EventApplication
	EventElement
	EventDurationChanged
	EventLatency
	EventAsyncDone
	EventNewClock
)

var eventKindNames = map[EventKind]string{
	EventUnknown:         "unknown",
	EventEOS:             "eos",
	EventError:           "error",
	EventWarning:         "warning",
	EventInfo:            "info",
	EventStateChanged:    "state-changed",
	EventBuffering:       "buffering",
	EventTag:             "tag",
	EventStreamStatus:    "stream-status",
	EventApplication:     "application",
	EventElement:         "element",
	EventDurationChanged: "duration-changed",
	EventLatency:         "latency",
	EventAsyncDone:       "async-done",
	EventNewClock:        "new-clock",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Source identifies the object that posted an event.
type Source struct {
	// Path is the object's hierarchical path, e.g. "/GstPipeline:pipeline0/GstFakeSink:fakesink0".
	Path string
	// IsPipeline reports whether the source is the top-level pipeline itself.
	IsPipeline bool
}

// RawEvent is one message taken from a pipeline's bus. Only the fields relevant to Kind are set.
type RawEvent struct {
	Kind      EventKind
	Source    *Source
	Timestamp time.Time

	// Error and Warning
	Error string
	Debug string

	// StateChanged
	Old     State
	New     State
	Pending State

	// Buffering
	Percent int

	// Tag
	Tags map[string]string

	// StreamStatus
	Status string

	// Application and Element
	Name string
}

// SourcePath returns the source path or "" when the event has no source.
func (e RawEvent) SourcePath() string {
	if e.Source == nil {
		return ""
	}
	return e.Source.Path
}

// Engine turns textual graph descriptions into runnable objects.
type Engine interface {
	// Init performs process-wide engine start-up. Callers guard it with a once-initializer.
	Init() error
	// Parse builds an element graph from a launch description.
	Parse(description string) (Element, error)
}

// Element is any object built by Parse.
type Element interface {
	Name() string
	// Close forces the element to NULL and releases engine resources. It is idempotent.
	Close() error
}

// Pipeline is a top-level runnable graph.
type Pipeline interface {
	Element

	SetState(target State) (StateChange, error)
	// QueryState waits up to timeout for a pending transition and returns the current and pending states.
	QueryState(timeout time.Duration) (current, pending State)
	QueryPosition() (time.Duration, bool)
	QueryDuration() (time.Duration, bool)

	// Events subscribes to the bus. The channel is closed when the bus shuts down or the returned
	// stop function is called.
	Events() (<-chan RawEvent, func())
	// Pop waits up to timeout for the next bus message.
	Pop(timeout time.Duration) (RawEvent, bool)
}
