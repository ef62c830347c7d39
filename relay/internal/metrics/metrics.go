package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingestion metrics
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callrelay_webhooks_total",
			Help: "Total number of webhooks received",
		},
		[]string{"result"}, // "ok", "malformed", "no_call_id"
	)

	WebhookBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_webhook_bytes_total",
			Help: "Total bytes of webhook payloads received",
		},
	)

	StoredEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callrelay_stored_events",
			Help: "Number of events held in the in-memory event log",
		},
	)

	// Fan-out metrics
	ActiveSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "callrelay_active_subscribers",
			Help: "Number of open streaming connections",
		},
		[]string{"transport"},
	)

	DeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_deliveries_total",
			Help: "Total number of events handed to subscribers",
		},
	)

	DeliveryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_delivery_errors_total",
			Help: "Total number of failed deliveries to subscribers",
		},
	)

	// Durable journal metrics
	JournalWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_journal_writes_total",
			Help: "Total number of records appended to call journals",
		},
	)

	JournalWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_journal_write_errors_total",
			Help: "Total number of failed journal appends",
		},
	)

	JournalQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callrelay_journal_queue_depth",
			Help: "Records waiting to be written to call journals",
		},
	)

	// Upstream proxy metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callrelay_upstream_requests_total",
			Help: "Total number of proxied upstream requests",
		},
		[]string{"operation", "code"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callrelay_upstream_duration_seconds",
			Help:    "Duration of proxied upstream requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callrelay_rate_limit_hits_total",
			Help: "Total number of rate limited control requests",
		},
		[]string{"backend"},
	)

	// Mirror metrics
	MirrorPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callrelay_mirror_publish_errors_total",
			Help: "Total number of failed event mirror publishes",
		},
	)
)
