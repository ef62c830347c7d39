// Package store holds the relay's process-wide state: the append-only event
// log for every call id and the registry of live subscribers that receive new
// events as they are appended.
//
// Both live behind a single mutex. Appending and fanning out happen in one
// critical section, and so do registering a subscriber and copying the
// history it must replay. That shared snapshot point is what guarantees a
// subscriber sees every event for its call exactly once and in order.
package store

import (
	"sync"

	"github.com/telhawk-systems/callrelay/common/logging"
	"github.com/telhawk-systems/callrelay/relay/internal/metrics"
	"github.com/telhawk-systems/callrelay/relay/internal/models"
)

// Sink receives live events for one subscription.
//
// Deliver is called with the store locked: it must not block and must not
// call back into the Store. A returned error is logged and counted; the sink
// stays registered until it is explicitly unsubscribed.
type Sink interface {
	Deliver(ev models.Event) error
}

// Subscription is an opaque handle returned by Subscribe.
type Subscription struct {
	callID string
	id     uint64
}

// CallID returns the resolved call id the subscription is bound to.
func (s Subscription) CallID() string { return s.callID }

// ID returns the handle's process-unique id.
func (s Subscription) ID() uint64 { return s.id }

// Stats is a point-in-time summary of the store.
type Stats struct {
	Calls           int `json:"calls"`
	Events          int `json:"events"`
	Subscribers     int `json:"subscribers"`
	SubscribedCalls int `json:"subscribed_calls"`
}

// Store is the event log plus subscriber registry.
type Store struct {
	mu     sync.Mutex
	logs   map[string][]models.Event
	subs   map[string]map[uint64]Sink
	nextID uint64
	events int
	active int

	logger *logging.Logger
}

// New creates an empty Store. A nil logger discards delivery diagnostics.
func New(logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		logs:   make(map[string][]models.Event),
		subs:   make(map[string]map[uint64]Sink),
		logger: logger,
	}
}

// Append files ev under callID (or GlobalCallID when callID is empty) and
// broadcasts it to every subscriber of that key. It returns the resolved key.
func (s *Store) Append(callID string, ev models.Event) string {
	key := models.ResolveCallID(callID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[key] = append(s.logs[key], ev)
	s.events++
	metrics.StoredEvents.Set(float64(s.events))

	s.broadcastLocked(key, ev)
	return key
}

// broadcastLocked delivers ev to a snapshot of key's subscribers.
// A failing sink never stops delivery to the rest.
func (s *Store) broadcastLocked(key string, ev models.Event) {
	set := s.subs[key]
	if len(set) == 0 {
		return
	}

	type target struct {
		id   uint64
		sink Sink
	}
	snapshot := make([]target, 0, len(set))
	for id, sink := range set {
		snapshot = append(snapshot, target{id: id, sink: sink})
	}

	for _, t := range snapshot {
		if err := t.sink.Deliver(ev); err != nil {
			metrics.DeliveryErrors.Inc()
			s.logger.Warn("event delivery failed",
				logging.CallID(key),
				logging.Subscription(t.id),
				logging.Error(err),
			)
			continue
		}
		metrics.DeliveriesTotal.Inc()
	}
}

// Subscribe registers sink for callID and returns the history the caller
// must replay before anything the sink receives. Events appended after this
// call go to the sink; events appended before are in the returned slice.
func (s *Store) Subscribe(callID string, sink Sink) (Subscription, []models.Event) {
	key := models.ResolveCallID(callID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := Subscription{callID: key, id: s.nextID}

	set, ok := s.subs[key]
	if !ok {
		set = make(map[uint64]Sink)
		s.subs[key] = set
	}
	set[sub.id] = sink
	s.active++

	history := make([]models.Event, len(s.logs[key]))
	copy(history, s.logs[key])

	return sub, history
}

// Unsubscribe removes the subscription. It reports whether anything was
// removed; calling it again for the same handle is a no-op.
func (s *Store) Unsubscribe(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.subs[sub.callID]
	if !ok {
		return false
	}
	if _, ok := set[sub.id]; !ok {
		return false
	}

	delete(set, sub.id)
	s.active--
	if len(set) == 0 {
		delete(s.subs, sub.callID)
	}
	return true
}

// History returns a copy of the events stored for callID.
func (s *Store) History(callID string) []models.Event {
	key := models.ResolveCallID(callID)

	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]models.Event, len(s.logs[key]))
	copy(history, s.logs[key])
	return history
}

// SubscriberCount returns the number of live subscriptions for callID.
func (s *Store) SubscriberCount(callID string) int {
	key := models.ResolveCallID(callID)

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[key])
}

// Stats returns counts across all call ids.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Calls:           len(s.logs),
		Events:          s.events,
		Subscribers:     s.active,
		SubscribedCalls: len(s.subs),
	}
}
