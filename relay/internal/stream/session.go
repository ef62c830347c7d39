// Package stream runs long-lived client connections that replay a call's
// event history and then follow it live.
package stream

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/callrelay/common/logging"
	"github.com/telhawk-systems/callrelay/relay/internal/metrics"
	"github.com/telhawk-systems/callrelay/relay/internal/models"
	"github.com/telhawk-systems/callrelay/relay/internal/store"
)

// DefaultKeepalive is the heartbeat interval used when none is configured.
const DefaultKeepalive = 25 * time.Second

// Registry is the part of the store a session needs.
type Registry interface {
	Subscribe(callID string, sink store.Sink) (store.Subscription, []models.Event)
	Unsubscribe(sub store.Subscription) bool
}

// Writer encodes messages for one transport.
type Writer interface {
	WriteEvent(ev models.Event) error
	WritePing() error
}

// State is the lifecycle position of a session.
type State int

const (
	StateOpening State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session streams one call id to one connection.
type Session struct {
	CallID    string
	Transport string
	Keepalive time.Duration

	registry Registry
	writer   Writer
	logger   *logging.Logger
	state    atomic.Int32
}

func NewSession(callID, transport string, registry Registry, writer Writer, keepalive time.Duration, logger *logging.Logger) *Session {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Session{
		CallID:    callID,
		Transport: transport,
		Keepalive: keepalive,
		registry:  registry,
		writer:    writer,
		logger:    logger,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run subscribes, replays history, then forwards live events and heartbeats
// until ctx is done or a write fails. The subscription and the keepalive
// ticker are released on every return path. A nil error means the client or
// the server ended the stream.
func (s *Session) Run(ctx context.Context) error {
	queue := NewQueue()
	sub, history := s.registry.Subscribe(s.CallID, queue)
	s.state.Store(int32(StateActive))

	gauge := metrics.ActiveSubscribers.WithLabelValues(s.Transport)
	gauge.Inc()

	log := s.logger.With(
		logging.CallID(sub.CallID()),
		logging.Subscription(sub.ID()),
		logging.Transport(s.Transport),
	)
	log.Debug("stream opened", "replay", len(history))

	defer func() {
		s.registry.Unsubscribe(sub)
		queue.Close()
		gauge.Dec()
		s.state.Store(int32(StateClosed))
		log.Debug("stream closed")
	}()

	for _, ev := range history {
		if err := s.writer.WriteEvent(ev); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	}

	ticker := time.NewTicker(s.Keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-queue.Ready():
			for _, ev := range queue.Drain() {
				if err := s.writer.WriteEvent(ev); err != nil {
					return fmt.Errorf("write event: %w", err)
				}
			}
		case <-ticker.C:
			if err := s.writer.WritePing(); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}
