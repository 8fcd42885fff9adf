package engine

import (
	"context"
	"sync"

	"github.com/roach88/tracemon/internal/ir"
)

// requestType distinguishes between request kinds.
type requestType int

const (
	// requestEvent appends an event to a trace.
	requestEvent requestType = iota + 1
	// requestCall runs a function on the writer goroutine.
	requestCall
)

// request is one unit of work for the Run loop. The loop sends exactly one
// reply on reply, which is buffered so the loop never blocks on a caller
// that gave up waiting.
type request struct {
	typ   requestType
	ctx   context.Context
	trace string
	event ir.Event
	call  func(context.Context) error
	reply chan reply
}

type reply struct {
	result Result
	err    error
}

// requestQueue is a thread-safe FIFO queue of requests.
//
// Thread-safety is provided for external enqueuing (HTTP handlers) while
// the Engine's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type requestQueue struct {
	mu       sync.Mutex
	requests []request
	limit    int // 0 means unbounded
	closed   bool
	signal   chan struct{} // signals request availability (buffered, size 1)
}

// newRequestQueue creates an empty queue holding at most limit requests.
func newRequestQueue(limit int) *requestQueue {
	return &requestQueue{
		requests: make([]request, 0, 64),
		limit:    limit,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Thread-safe: may be called from any goroutine.
func (q *requestQueue) Enqueue(r request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errQueueClosed
	}
	if q.limit > 0 && len(q.requests) >= q.limit {
		return errQueueFull
	}

	q.requests = append(q.requests, r)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// TryDequeue attempts to dequeue without blocking.
// Returns (request{}, false) if the queue is empty.
func (q *requestQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return request{}, false
	}

	r := q.requests[0]
	// Release the slot so the backing array does not pin the reply channel.
	q.requests[0] = request{}

	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}
	return r, true
}

// Wait returns a channel that signals when requests may be available.
// It is closed when the queue is closed.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close rejects further requests and wakes the Run loop. Requests already
// queued are drained with a QUEUE_CLOSED error.
func (q *requestQueue) Close() []request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)

	pending := q.requests
	q.requests = nil
	return pending
}

// Closed reports whether Close has been called.
func (q *requestQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
