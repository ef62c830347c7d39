// Package mirror republishes ingested call events onto the message bus so
// other services can follow calls without holding a stream open.
package mirror

import (
	"context"

	"github.com/telhawk-systems/callrelay/common/logging"
	"github.com/telhawk-systems/callrelay/common/messaging"
	"github.com/telhawk-systems/callrelay/common/middleware"
	"github.com/telhawk-systems/callrelay/relay/internal/metrics"
	"github.com/telhawk-systems/callrelay/relay/internal/models"
)

// Mirror receives every ingested event after local delivery.
type Mirror interface {
	Publish(ctx context.Context, callID string, ev models.Event)
}

// BusMirror publishes to <prefix>.<call id> through a messaging.Publisher.
type BusMirror struct {
	publisher messaging.Publisher
	prefix    string
	logger    *logging.Logger
}

func New(publisher messaging.Publisher, prefix string, logger *logging.Logger) *BusMirror {
	if prefix == "" {
		prefix = messaging.SubjectCallEvents
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &BusMirror{
		publisher: publisher,
		prefix:    prefix,
		logger:    logger.With("component", "mirror"),
	}
}

// Publish sends ev with the call id and request id as headers. Failures are
// logged and counted, never returned.
func (m *BusMirror) Publish(ctx context.Context, callID string, ev models.Event) {
	key := models.ResolveCallID(callID)

	opts := []messaging.PublishOption{messaging.WithHeader(messaging.HeaderCallID, key)}
	if reqID := middleware.GetRequestID(ctx); reqID != "" {
		opts = append(opts, messaging.WithHeader(messaging.HeaderRequestID, reqID))
	}
	msg := messaging.NewMessage(messaging.CallEventSubject(m.prefix, key), ev, opts...)

	// The webhook response may already be on its way; don't let request
	// cancellation drop the publish.
	if err := m.publisher.PublishMsg(context.WithoutCancel(ctx), msg); err != nil {
		metrics.MirrorPublishErrors.Inc()
		m.logger.ErrorContext(ctx, "event mirror publish failed",
			logging.CallID(key),
			"subject", msg.Subject,
			logging.Error(err),
		)
	}
}

// NoOp is used when mirroring is disabled.
type NoOp struct{}

func (NoOp) Publish(context.Context, string, models.Event) {}
