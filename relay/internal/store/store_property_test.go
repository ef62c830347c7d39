package store

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/telhawk-systems/callrelay/relay/internal/models"
)

// TestReplayPlusLiveIsLogPrefix checks that whatever a subscriber is handed
// at subscribe time, followed by what it receives live, equals the call's log
// up to the moment it unsubscribed.
// Property: history ++ live == log[:len(log at unsubscribe)]
func TestReplayPlusLiveIsLogPrefix(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("subscribers see an exact prefix of the log", prop.ForAll(
		func(ops []int) bool {
			s := New(nil)
			calls := []string{"a", "b", ""}

			type observer struct {
				sub     Subscription
				sink    *recordingSink
				history []models.Event
				cutoff  int
				closed  bool
			}
			var observers []*observer

			for i, op := range ops {
				callID := calls[op%len(calls)]
				switch (op / len(calls)) % 3 {
				case 0:
					s.Append(callID, models.Event(fmt.Sprintf(`{"n":%d}`, i)))
				case 1:
					sink := &recordingSink{}
					sub, history := s.Subscribe(callID, sink)
					observers = append(observers, &observer{sub: sub, sink: sink, history: history})
				case 2:
					for _, p := range observers {
						if !p.closed && p.sub.CallID() == models.ResolveCallID(callID) {
							s.Unsubscribe(p.sub)
							p.closed = true
							p.cutoff = len(s.History(callID))
							break
						}
					}
				}
			}

			for _, p := range observers {
				log := s.History(p.sub.CallID())
				if p.closed {
					log = log[:p.cutoff]
				}
				seen := append(append([]models.Event{}, p.history...), p.sink.received()...)
				if len(log) == 0 && len(seen) == 0 {
					continue
				}
				if !reflect.DeepEqual(log, seen) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 8)),
	))

	properties.TestingRun(t)
}
