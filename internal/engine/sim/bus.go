package sim

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
)

// bus is an unbounded FIFO of pipeline messages shared by streaming and polling consumers.
type bus struct {
	mu     sync.Mutex
	queue  []engine.RawEvent
	signal chan struct{} // closed and replaced on every post and on close
	closed bool
}

func newBus() *bus {
	return &bus{signal: make(chan struct{})}
}

func (b *bus) post(ev engine.RawEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, ev)
	b.notify()
}

// notify wakes blocked poppers. Must be called with mu held.
func (b *bus) notify() {
	close(b.signal)
	b.signal = make(chan struct{})
}

// pop blocks until a message is available, the bus closes (io.EOF) or ctx ends.
func (b *bus) pop(ctx context.Context) (engine.RawEvent, error) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue[0] = engine.RawEvent{}
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return ev, nil
		}
		if b.closed {
			b.mu.Unlock()
			return engine.RawEvent{}, io.EOF
		}
		wait := b.signal
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return engine.RawEvent{}, ctx.Err()
		}
	}
}

// close discards pending messages and ends every stream.
func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.queue = nil
	b.notify()
}

// stream pumps messages into a channel until stop is called or the bus closes.
func (b *bus) stream() (<-chan engine.RawEvent, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan engine.RawEvent)

	go func() {
		defer close(ch)
		for {
			ev, err := b.pop(ctx)
			if err != nil {
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, cancel
}

// timedPop waits up to timeout for the next message.
func (b *bus) timedPop(timeout time.Duration) (engine.RawEvent, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ev, err := b.pop(ctx)
	return ev, err == nil
}
