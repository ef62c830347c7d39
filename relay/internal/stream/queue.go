package stream

import (
	"errors"
	"sync"

	"github.com/telhawk-systems/callrelay/relay/internal/models"
)

// ErrQueueClosed is returned by Deliver once the owning session has ended.
var ErrQueueClosed = errors.New("stream queue closed")

// Queue is an unbounded per-session buffer between the store's broadcast and
// the connection writer. Deliver never blocks, so a slow client cannot stall
// fan-out and no event is dropped for it.
type Queue struct {
	mu     sync.Mutex
	items  []models.Event
	closed bool
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Deliver implements store.Sink.
func (q *Queue) Deliver(ev models.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, ev)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Ready is signalled when events are waiting to be drained.
func (q *Queue) Ready() <-chan struct{} {
	return q.notify
}

// Drain removes and returns every queued event in delivery order.
func (q *Queue) Drain() []models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close makes later deliveries fail and drops anything still queued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
}
