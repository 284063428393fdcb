package sim

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
)

// Options tunes the simulated timing.
type Options struct {
	// PrerollDelay is how long sinks take to preroll on READY->PAUSED.
	PrerollDelay time.Duration
	// BufferDuration is the stream time covered by one buffer of a num-buffers source.
	BufferDuration time.Duration
}

// DefaultOptions returns the timing used by the service.
func DefaultOptions() Options {
	return Options{
		PrerollDelay:   50 * time.Millisecond,
		BufferDuration: 10 * time.Millisecond,
	}
}

// Engine is an in-process execution engine with launch-syntax parsing.
type Engine struct {
	opts      Options
	pipelines atomic.Int64
}

var _ engine.Engine = (*Engine)(nil)

// New creates a simulated engine.
func New(opts Options) *Engine {
	if opts.PrerollDelay < 0 {
		opts.PrerollDelay = 0
	}
	if opts.BufferDuration <= 0 {
		opts.BufferDuration = DefaultOptions().BufferDuration
	}
	return &Engine{opts: opts}
}

// Init has nothing to start for the simulated engine.
func (e *Engine) Init() error { return nil }

// Parse builds a Pipeline for linked descriptions and a bare Element for a single element.
func (e *Engine) Parse(description string) (engine.Element, error) {
	specs, err := parseDescription(description)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", description, err)
	}

	if len(specs) == 1 {
		spec := specs[0]
		name := spec.name
		if name == "" {
			name = spec.factory.name + "0"
		}
		return &Element{el: &element{spec: spec, name: name, path: "/" + spec.factory.typeName + ":" + name}}, nil
	}

	name := fmt.Sprintf("pipeline%d", e.pipelines.Add(1)-1)
	p, err := newPipeline(name, e.opts, specs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", description, err)
	}
	return p, nil
}
