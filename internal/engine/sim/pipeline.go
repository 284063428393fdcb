package sim

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
)

// element is one node of a simulated graph.
type element struct {
	spec elementSpec
	name string
	path string
}

func (e *element) source() *engine.Source {
	return &engine.Source{Path: e.path}
}

// numBuffers returns the configured buffer count, or -1 for unbounded.
func (e *element) numBuffers() int {
	v, ok := e.spec.properties["num-buffers"]
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func (e *element) isLive() bool {
	if e.spec.factory.live {
		return true
	}
	live, _ := strconv.ParseBool(e.spec.properties["is-live"])
	return live
}

// Element is a bare element built from a description that contains no links.
type Element struct {
	el     *element
	closed atomic.Bool
}

func (e *Element) Name() string { return e.el.name }

// Factory returns the factory the element was built from.
func (e *Element) Factory() string { return e.el.spec.factory.name }

func (e *Element) Close() error {
	e.closed.Store(true)
	return nil
}

// Pipeline is a simulated top-level pipeline.
type Pipeline struct {
	name     string
	opts     Options
	elements []*element
	bus      *bus
	self     engine.Source

	mu           sync.Mutex
	current      engine.State
	pending      engine.State
	settled      chan struct{}
	gen          uint64
	streamGen    uint64
	preroll      *time.Timer
	eos          *time.Timer
	position     time.Duration
	playingSince time.Time
	closed       bool
}

func newPipeline(name string, opts Options, specs []elementSpec) (*Pipeline, error) {
	p := &Pipeline{
		name:    name,
		opts:    opts,
		bus:     newBus(),
		self:    engine.Source{Path: "/GstPipeline:" + name, IsPipeline: true},
		current: engine.StateNull,
		pending: engine.StateVoidPending,
		settled: make(chan struct{}),
	}

	counters := make(map[string]int)
	used := make(map[string]bool)
	for _, spec := range specs {
		elName := spec.name
		if elName == "" {
			elName = fmt.Sprintf("%s%d", spec.factory.name, counters[spec.factory.name])
			counters[spec.factory.name]++
		}
		if used[elName] {
			return nil, fmt.Errorf("element name %q is already in use in %s", elName, name)
		}
		used[elName] = true

		p.elements = append(p.elements, &element{
			spec: spec,
			name: elName,
			path: fmt.Sprintf("%s/%s:%s", p.self.Path, spec.factory.typeName, elName),
		})
	}
	return p, nil
}

func (p *Pipeline) Name() string { return p.name }

// Post puts an application-supplied message on the bus. A message without a source is attributed
// to the pipeline.
func (p *Pipeline) Post(ev engine.RawEvent) {
	if ev.Source == nil {
		src := p.self
		ev.Source = &src
	}
	p.bus.post(ev)
}

// SetState requests a transition to target.
func (p *Pipeline) SetState(target engine.State) (engine.StateChange, error) {
	if target < engine.StateNull || target > engine.StatePlaying {
		return 0, fmt.Errorf("%w: invalid target %s", engine.ErrStateChangeFailure, target)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, fmt.Errorf("%w: %s is closed", engine.ErrStateChangeFailure, p.name)
	}
	if p.pending == engine.StateVoidPending && p.current == target {
		return engine.ChangeSuccess, nil
	}

	// A new request supersedes any preroll still in flight.
	p.gen++
	if p.preroll != nil {
		p.preroll.Stop()
		p.preroll = nil
	}
	p.pending = engine.StateVoidPending

	if target < p.current {
		for p.current > target {
			p.step(p.current - 1)
		}
		p.notifySettled()
		return engine.ChangeSuccess, nil
	}

	result := engine.ChangeSuccess
	for p.current < target {
		next := p.current + 1
		if next == engine.StatePaused {
			if err := p.checkResources(); err != nil {
				p.notifySettled()
				return 0, err
			}
			switch {
			case p.hasLiveSource():
				result = engine.ChangeNoPreroll
			case p.hasSink():
				p.pending = target
				gen := p.gen
				p.preroll = time.AfterFunc(p.opts.PrerollDelay, func() { p.completePreroll(gen, target) })
				return engine.ChangeAsync, nil
			}
		}
		p.step(next)
	}
	p.notifySettled()
	return result, nil
}

// completePreroll finishes an asynchronous READY->PAUSED(->PLAYING) transition.
func (p *Pipeline) completePreroll(gen uint64, target engine.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || gen != p.gen {
		return
	}
	for p.current < target {
		p.step(p.current + 1)
	}
	p.pending = engine.StateVoidPending
	p.preroll = nil
	src := p.self
	p.bus.post(engine.RawEvent{Kind: engine.EventAsyncDone, Source: &src})
	p.notifySettled()
}

// step moves the pipeline one state up or down and posts the matching messages.
// Must be called with mu held.
func (p *Pipeline) step(next engine.State) {
	prev := p.current

	switch {
	case prev == engine.StatePlaying && next == engine.StatePaused:
		p.position += time.Since(p.playingSince)
		p.streamGen++
		if p.eos != nil {
			p.eos.Stop()
			p.eos = nil
		}
	case prev == engine.StatePaused && next == engine.StateReady:
		p.position = 0
		for _, el := range p.sources() {
			p.bus.post(engine.RawEvent{Kind: engine.EventStreamStatus, Source: el.source(), Status: "leave"})
		}
	}

	for _, el := range p.elements {
		p.bus.post(engine.RawEvent{
			Kind:    engine.EventStateChanged,
			Source:  el.source(),
			Old:     prev,
			New:     next,
			Pending: engine.StateVoidPending,
		})
	}
	src := p.self
	p.bus.post(engine.RawEvent{
		Kind:    engine.EventStateChanged,
		Source:  &src,
		Old:     prev,
		New:     next,
		Pending: engine.StateVoidPending,
	})
	p.current = next

	switch {
	case prev == engine.StateReady && next == engine.StatePaused:
		for _, el := range p.sources() {
			p.bus.post(engine.RawEvent{Kind: engine.EventStreamStatus, Source: el.source(), Status: "create"})
			p.bus.post(engine.RawEvent{Kind: engine.EventStreamStatus, Source: el.source(), Status: "enter"})
		}
		if _, ok := p.duration(); ok {
			p.bus.post(engine.RawEvent{Kind: engine.EventDurationChanged, Source: &src})
		}
	case prev == engine.StatePaused && next == engine.StatePlaying:
		p.playingSince = time.Now()
		if sink := p.firstSink(); sink != nil {
			p.bus.post(engine.RawEvent{Kind: engine.EventLatency, Source: sink.source()})
		}
		p.scheduleEOS()
	}
}

// scheduleEOS arms the end-of-stream timer for bounded sources. Must be called with mu held.
func (p *Pipeline) scheduleEOS() {
	total, ok := p.duration()
	if !ok {
		return
	}
	remaining := total - p.position
	if remaining < 0 {
		remaining = 0
	}
	gen := p.streamGen
	p.eos = time.AfterFunc(remaining, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed || gen != p.streamGen || p.current != engine.StatePlaying {
			return
		}
		src := p.self
		p.bus.post(engine.RawEvent{Kind: engine.EventEOS, Source: &src})
	})
}

// checkResources validates elements that need external resources before they can pause.
// Must be called with mu held.
func (p *Pipeline) checkResources() error {
	for _, el := range p.elements {
		if !el.spec.factory.needsLocation {
			continue
		}

		location := el.spec.properties["location"]
		var debug string
		switch {
		case location == "" && el.spec.factory.role == roleSource:
			debug = "No file name specified for reading."
		case location == "":
			debug = "No file name specified for writing."
		case el.spec.factory.role == roleSource:
			if _, err := os.Stat(location); err != nil {
				debug = fmt.Sprintf("Could not open file %q for reading.", location)
			}
		}
		if debug == "" {
			continue
		}

		p.bus.post(engine.RawEvent{
			Kind:   engine.EventError,
			Source: el.source(),
			Error:  "Resource not found.",
			Debug:  debug,
		})
		return fmt.Errorf("%w: %s: %s", engine.ErrStateChangeFailure, el.name, debug)
	}
	return nil
}

func (p *Pipeline) sources() []*element {
	var out []*element
	for _, el := range p.elements {
		if el.spec.factory.role == roleSource {
			out = append(out, el)
		}
	}
	return out
}

func (p *Pipeline) firstSink() *element {
	for _, el := range p.elements {
		if el.spec.factory.role == roleSink {
			return el
		}
	}
	return nil
}

func (p *Pipeline) hasSink() bool { return p.firstSink() != nil }

func (p *Pipeline) hasLiveSource() bool {
	for _, el := range p.sources() {
		if el.isLive() {
			return true
		}
	}
	return false
}

// duration is known only when every source is bounded by num-buffers.
func (p *Pipeline) duration() (time.Duration, bool) {
	srcs := p.sources()
	if len(srcs) == 0 {
		return 0, false
	}
	var longest time.Duration
	for _, el := range srcs {
		n := el.numBuffers()
		if n < 0 {
			return 0, false
		}
		if d := time.Duration(n) * p.opts.BufferDuration; d > longest {
			longest = d
		}
	}
	return longest, true
}

// notifySettled wakes QueryState waiters. Must be called with mu held.
func (p *Pipeline) notifySettled() {
	close(p.settled)
	p.settled = make(chan struct{})
}

// QueryState waits up to timeout for a pending transition to settle.
func (p *Pipeline) QueryState(timeout time.Duration) (engine.State, engine.State) {
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		current, pending, wait := p.current, p.pending, p.settled
		p.mu.Unlock()

		remaining := time.Until(deadline)
		if pending == engine.StateVoidPending || remaining <= 0 {
			return current, pending
		}

		timer := time.NewTimer(remaining)
		select {
		case <-wait:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (p *Pipeline) QueryPosition() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current < engine.StatePaused {
		return 0, false
	}
	pos := p.position
	if p.current == engine.StatePlaying {
		pos += time.Since(p.playingSince)
	}
	if total, ok := p.duration(); ok && pos > total {
		pos = total
	}
	return pos, true
}

func (p *Pipeline) QueryDuration() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current < engine.StatePaused {
		return 0, false
	}
	return p.duration()
}

func (p *Pipeline) Events() (<-chan engine.RawEvent, func()) {
	return p.bus.stream()
}

func (p *Pipeline) Pop(timeout time.Duration) (engine.RawEvent, bool) {
	return p.bus.timedPop(timeout)
}

// Close drives the pipeline to NULL and shuts the bus down. It is idempotent.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.gen++
	if p.preroll != nil {
		p.preroll.Stop()
		p.preroll = nil
	}
	for p.current > engine.StateNull {
		p.step(p.current - 1)
	}
	p.pending = engine.StateVoidPending
	p.closed = true
	p.notifySettled()
	p.mu.Unlock()

	p.bus.close()
	return nil
}

// State returns the current state without waiting.
func (p *Pipeline) State() engine.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Closed reports whether Close has run.
func (p *Pipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
