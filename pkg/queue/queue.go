// Package queue implements the per-peer event queue from spec §4.1: a
// multi-producer, single-consumer FIFO with total ordering, non-blocking
// enqueue, and silent drop after Close.
package queue

import (
	"sync"

	"github.com/danl5/bgpfsm/pkg/model"
)

// Queue is a per-peer FIFO. Producers call Enqueue from any goroutine;
// exactly one consumer should call Dequeue in a loop.
type Queue struct {
	mu     sync.Mutex
	items  []model.Event
	closed bool
	signal chan struct{}
}

// New returns an empty, open Queue.
func New() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Enqueue appends ev to the tail of the queue and wakes the consumer. It
// always succeeds while the queue is open; once Close has run, it is a
// silent no-op, matching the "enqueue after shutdown is silently dropped"
// rule.
func (q *Queue) Enqueue(ev model.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Signal is the channel the consumer selects on to learn new events may be
// available. It never carries more than one pending wakeup; the consumer
// must drain with Dequeue until it returns ok == false.
func (q *Queue) Signal() <-chan struct{} {
	return q.signal
}

// Dequeue removes and returns the event at the head of the queue, if any.
func (q *Queue) Dequeue() (model.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return model.Event{}, false
	}
	ev := q.items[0]
	q.items[0] = model.Event{}
	q.items = q.items[1:]
	return ev, true
}

// Close marks the queue closed; subsequent Enqueue calls are dropped. Any
// events already queued remain available to Dequeue so the FSM worker can
// finish draining them during shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Len reports the number of events currently queued, for tests and
// diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
