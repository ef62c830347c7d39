package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/callrelay/common/middleware"
	"github.com/telhawk-systems/callrelay/relay/internal/handlers"
)

// RouterConfig holds dependencies needed to configure routes
type RouterConfig struct {
	Relay *handlers.RelayHandler
	Proxy *handlers.ProxyHandler
	CORS  middleware.CORSConfig

	// RateLimit wraps the control endpoints when set.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter constructs a ServeMux with relay routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	// Webhook ingestion (unauthenticated)
	mux.HandleFunc("POST /webhook", cfg.Relay.Webhook)

	// Event streams
	mux.HandleFunc("GET /events", cfg.Relay.Events)
	mux.HandleFunc("GET /ws", cfg.Relay.WebSocket)

	// Control actions proxied upstream
	limit := cfg.RateLimit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /api/twoleg", limit(http.HandlerFunc(cfg.Proxy.TwoLeg)))
	mux.Handle("POST /api/hangup", limit(http.HandlerFunc(cfg.Proxy.Hangup)))

	// Health endpoints
	mux.HandleFunc("GET /health", cfg.Relay.Health)
	mux.HandleFunc("GET /readyz", cfg.Relay.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(middleware.CORS(cfg.CORS)(mux))
}
