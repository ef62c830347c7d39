package service

import (
	"context"
	"sync"

	"github.com/telhawk-systems/callrelay/common/logging"
	"github.com/telhawk-systems/callrelay/relay/internal/journal"
	"github.com/telhawk-systems/callrelay/relay/internal/metrics"
	"github.com/telhawk-systems/callrelay/relay/internal/mirror"
	"github.com/telhawk-systems/callrelay/relay/internal/models"
	"github.com/telhawk-systems/callrelay/relay/internal/store"
)

// IngestResult describes what happened to one webhook.
type IngestResult struct {
	CallID    string
	Malformed bool
}

// Stats combines the in-memory and durable views for readiness checks.
type Stats struct {
	Store   store.Stats   `json:"store"`
	Journal journal.Stats `json:"journal"`
}

// RelayService turns webhook payloads into stored, broadcast, journaled and
// mirrored events.
type RelayService struct {
	store   *store.Store
	journal journal.Writer
	mirror  mirror.Mirror
	logger  *logging.Logger

	// Serializes store append and journal enqueue so the journal file for a
	// call has the same order as its in-memory log.
	mu sync.Mutex
}

func NewRelayService(st *store.Store, j journal.Writer, m mirror.Mirror, logger *logging.Logger) *RelayService {
	if j == nil {
		j = journal.NoOp{}
	}
	if m == nil {
		m = mirror.NoOp{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RelayService{
		store:   st,
		journal: j,
		mirror:  m,
		logger:  logger,
	}
}

// Ingest accepts any body. A payload that is empty or not JSON is stored as
// {} under the global key; ingestion never rejects for shape reasons.
func (s *RelayService) Ingest(ctx context.Context, raw []byte) IngestResult {
	metrics.WebhookBytesTotal.Add(float64(len(raw)))

	ev, ok := models.NewEvent(raw)
	callID := models.ExtractCallID(ev)

	s.mu.Lock()
	key := s.store.Append(callID, ev)
	s.journal.Write(key, ev)
	s.mu.Unlock()

	s.mirror.Publish(ctx, key, ev)

	switch {
	case !ok:
		metrics.WebhooksTotal.WithLabelValues("malformed").Inc()
		s.logger.DebugContext(ctx, "webhook body was not JSON, stored as empty event",
			logging.CallID(key), logging.Bytes(len(raw)))
	case callID == "":
		metrics.WebhooksTotal.WithLabelValues("no_call_id").Inc()
		s.logger.DebugContext(ctx, "webhook without call id", logging.CallID(key))
	default:
		metrics.WebhooksTotal.WithLabelValues("ok").Inc()
		s.logger.DebugContext(ctx, "webhook ingested", logging.CallID(key), logging.Bytes(len(raw)))
	}

	return IngestResult{CallID: key, Malformed: !ok}
}

// History returns the in-memory events for callID.
func (s *RelayService) History(callID string) []models.Event {
	return s.store.History(callID)
}

// Store exposes the registry for stream sessions.
func (s *RelayService) Store() *store.Store {
	return s.store
}

func (s *RelayService) GetStats() Stats {
	return Stats{
		Store:   s.store.Stats(),
		Journal: s.journal.Stats(),
	}
}
