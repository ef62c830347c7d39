package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/callrelay/common/messaging"
	"github.com/telhawk-systems/callrelay/common/middleware"
	"github.com/telhawk-systems/callrelay/relay/internal/models"
)

type fakePublisher struct {
	msgs []*messaging.Message
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return f.PublishMsg(ctx, messaging.NewMessage(subject, data))
}

func (f *fakePublisher) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestBusMirror_Publish(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "relay.calls", nil)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	m.Publish(ctx, "v3:abc.def", models.Event(`{"a":1}`))

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "relay.calls.v3:abc_def", msg.Subject)
	assert.Equal(t, []byte(`{"a":1}`), msg.Data)
	assert.Equal(t, "v3:abc.def", msg.Metadata[messaging.HeaderCallID])
	assert.Equal(t, "req-1", msg.Metadata[messaging.HeaderRequestID])
}

func TestBusMirror_GlobalAndDefaultPrefix(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "", nil)

	m.Publish(context.Background(), "", models.Event(`{}`))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "callrelay.events.global", pub.msgs[0].Subject)
	assert.NotContains(t, pub.msgs[0].Metadata, messaging.HeaderRequestID)
}

func TestBusMirror_CanceledRequestStillPublishes(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Publish(ctx, "c1", models.Event(`{}`))

	assert.Len(t, pub.msgs, 1)
}

func TestBusMirror_ErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	m := New(pub, "", nil)

	assert.NotPanics(t, func() {
		m.Publish(context.Background(), "c1", models.Event(`{}`))
	})
	assert.Empty(t, pub.msgs)
}
