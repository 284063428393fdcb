package pipeline

import "sync"

// DefaultHistorySize is the number of records kept per pipeline.
const DefaultHistorySize = 100

// History is a bounded FIFO of bus records with error and warning counters.
// Counters include records that have since been evicted.
type History struct {
	mu       sync.Mutex
	ring     []Message
	head     int // index of the oldest record
	size     int
	nextSeq  uint64
	errors   uint64
	warnings uint64
	// closed and replaced on every append
	appended chan struct{}
}

// NewHistory creates a ring holding at most capacity records.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{ring: make([]Message, capacity), nextSeq: 1, appended: make(chan struct{})}
}

// Append stores msg, evicting the oldest record when full, and returns it with its
// sequence number set.
func (h *History) Append(msg Message) Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg.Seq = h.nextSeq
	h.nextSeq++
	close(h.appended)
	h.appended = make(chan struct{})

	switch msg.Kind {
	case KindError:
		h.errors++
	case KindWarning:
		h.warnings++
	}

	if h.size < len(h.ring) {
		h.ring[(h.head+h.size)%len(h.ring)] = msg
		h.size++
		return msg
	}
	h.ring[h.head] = msg
	h.head = (h.head + 1) % len(h.ring)
	return msg
}

// Appended returns a channel that is closed by the next Append. Take it before
// reading with Since so no record slips between the read and the wait.
func (h *History) Appended() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appended
}

// Recent returns up to n of the newest records, oldest first.
func (h *History) Recent(n int) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 {
		return nil
	}
	if n > h.size {
		n = h.size
	}
	return h.copyFrom(h.size - n)
}

// Since returns every retained record with a sequence number greater than seq.
func (h *History) Since(seq uint64) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size == 0 {
		return nil
	}
	oldest := h.ring[h.head].Seq
	skip := 0
	if seq >= oldest {
		skip = int(seq - oldest + 1)
	}
	if skip >= h.size {
		return nil
	}
	return h.copyFrom(skip)
}

// copyFrom copies records from logical offset start to the newest. Must be called with mu held.
func (h *History) copyFrom(start int) []Message {
	out := make([]Message, 0, h.size-start)
	for i := start; i < h.size; i++ {
		out = append(out, h.ring[(h.head+i)%len(h.ring)])
	}
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Counts returns the error and warning counters.
func (h *History) Counts() (errors, warnings uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errors, h.warnings
}

// LastSeq returns the sequence number of the newest record, or 0.
func (h *History) LastSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq - 1
}

// Capacity returns the maximum number of retained records.
func (h *History) Capacity() int { return len(h.ring) }
