// Package id generates the sortable identifiers used for requests, traces
// and stream connections.
//
// IDs are ULIDs with a short type prefix (req_*, trace_*, span_*, conn_*) so
// they sort by creation time and read clearly in logs. Pipeline identifiers
// are UUID based and live with the pipeline registry.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies an API request or tool call
type RequestID string

// TraceID identifies a request flow across spans
type TraceID string

// SpanID identifies one traced operation
type SpanID string

// ConnID identifies a streaming client connection
type ConnID string

const (
	RequestPrefix = "req"
	TracePrefix   = "trace"
	SpanPrefix    = "span"
	ConnPrefix    = "conn"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var defaultGenerator = sync.OnceValue(NewGenerator)

// Default returns the shared generator
func Default() *Generator {
	return defaultGenerator()
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// ordering inside a millisecond.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix returns prefix_ULID.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

func NewRequestID() RequestID { return RequestID(Default().GenerateWithPrefix(RequestPrefix)) }
func NewTraceID() TraceID     { return TraceID(Default().GenerateWithPrefix(TracePrefix)) }
func NewSpanID() SpanID       { return SpanID(Default().GenerateWithPrefix(SpanPrefix)) }
func NewConnID() ConnID       { return ConnID(Default().GenerateWithPrefix(ConnPrefix)) }

func (id RequestID) String() string { return string(id) }
func (id TraceID) String() string   { return string(id) }
func (id SpanID) String() string    { return string(id) }
func (id ConnID) String() string    { return string(id) }

// IsValid reports whether s is a ULID, with or without a type prefix.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Parse parses a ULID, stripping a type prefix if present.
func Parse(s string) (ulid.ULID, error) {
	if _, rest, ok := strings.Cut(s, "_"); ok {
		s = rest
	}
	return ulid.Parse(s)
}
