package action

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueCapacity bounds pending requests between two drains.
const DefaultQueueCapacity = 65536

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("action queue full")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("action queue closed")
)

// QueueStats is a point-in-time view of queue counters.
type QueueStats struct {
	Depth    int
	Capacity int
	Accepted uint64
	Refused  uint64
	Drained  uint64
}

// Queue is a bounded multi-producer single-consumer request queue.
//
// Producers hold the mutex only long enough to append one value, so their
// wait never depends on how long the consumer's tick takes. DrainAll swaps
// the pending batch for a fresh one, leaving producers free to continue.
type Queue struct {
	capacity int

	mu      sync.Mutex
	pending []Request
	spare   []Request
	seq     uint64
	closed  bool

	notify chan struct{}

	accepted atomic.Uint64
	refused  atomic.Uint64
	drained  atomic.Uint64
}

// NewQueue creates a queue holding at most capacity undrained requests.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		capacity: capacity,
		pending:  make([]Request, 0, min(capacity, 1024)),
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue appends req. Never blocks on the consumer. Returns ErrQueueFull
// when capacity is reached; already accepted requests are never discarded.
// A zero SubmittedAt is stamped with the current time.
func (q *Queue) Enqueue(req Request) error {
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if len(q.pending) >= q.capacity {
		q.mu.Unlock()
		q.refused.Add(1)
		return ErrQueueFull
	}
	q.seq++
	req.Seq = q.seq
	q.pending = append(q.pending, req)
	q.mu.Unlock()

	q.accepted.Add(1)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// DrainAll takes every request accepted since the previous drain, in enqueue
// order. Consumer only. The returned slice is owned by the caller until it
// is handed back through Recycle.
func (q *Queue) DrainAll() []Request {
	q.mu.Lock()
	batch := q.pending
	next := q.spare
	if next == nil {
		next = make([]Request, 0, min(q.capacity, max(len(batch), 64)))
	}
	q.pending = next[:0]
	q.spare = nil
	q.mu.Unlock()

	q.drained.Add(uint64(len(batch)))
	return batch
}

// Recycle returns a drained batch for reuse by a later drain.
func (q *Queue) Recycle(batch []Request) {
	if cap(batch) == 0 {
		return
	}
	clear(batch)
	q.mu.Lock()
	if q.spare == nil {
		q.spare = batch[:0]
	}
	q.mu.Unlock()
}

// Ready is signalled after enqueues. Signals coalesce: one receive may
// cover many requests.
func (q *Queue) Ready() <-chan struct{} {
	return q.notify
}

// Len returns number of undrained requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Cap returns the capacity bound.
func (q *Queue) Cap() int {
	return q.capacity
}

// Stats returns counters since creation.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Depth:    q.Len(),
		Capacity: q.capacity,
		Accepted: q.accepted.Load(),
		Refused:  q.refused.Load(),
		Drained:  q.drained.Load(),
	}
}

// Close refuses further enqueues. Pending requests stay drainable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
