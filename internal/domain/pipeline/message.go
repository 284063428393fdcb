package pipeline

import "time"

// Kind is the normalized category of a recorded bus message.
type Kind string

const (
	KindEOS             Kind = "EOS"
	KindError           Kind = "ERROR"
	KindWarning         Kind = "WARNING"
	KindStateChanged    Kind = "STATE_CHANGED"
	KindBuffering       Kind = "BUFFERING"
	KindTag             Kind = "TAG"
	KindStreamStatus    Kind = "STREAM_STATUS"
	KindApplication     Kind = "APPLICATION"
	KindElement         Kind = "ELEMENT"
	KindDurationChanged Kind = "DURATION_CHANGED"
	KindLatency         Kind = "LATENCY"
)

// Message is one immutable history record.
type Message struct {
	// Seq is assigned by History on append, starting at 1 for each pipeline.
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"message"`
	Source    string    `json:"source,omitempty"`
}

// Terminal reports whether the record ends a blocking watch.
func (m Message) Terminal() bool {
	return m.Kind == KindEOS || m.Kind == KindError
}
