package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telhawk-systems/callrelay/common/httputil"
	"github.com/telhawk-systems/callrelay/common/logging"
	"github.com/telhawk-systems/callrelay/common/messaging"
	"github.com/telhawk-systems/callrelay/relay/internal/service"
	"github.com/telhawk-systems/callrelay/relay/internal/stream"
)

const (
	errMissingCallID = "Missing call_id"
	errTooLarge      = "payload_too_large"
	errBadBody       = "Invalid body"
)

// RelayHandler serves webhook ingestion, event streams and health.
type RelayHandler struct {
	service      *service.RelayService
	apiBase      string
	maxBodyBytes int64
	keepalive    time.Duration
	upgrader     *websocket.Upgrader
	bus          messaging.Client
	logger       *logging.Logger
}

// RelayOptions configures a RelayHandler. Bus is nil when mirroring is off.
type RelayOptions struct {
	APIBase        string
	MaxBodyBytes   int64
	Keepalive      time.Duration
	AllowedOrigins []string
	Bus            messaging.Client
	Logger         *logging.Logger
}

func NewRelayHandler(svc *service.RelayService, opts RelayOptions) *RelayHandler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &RelayHandler{
		service:      svc,
		apiBase:      opts.APIBase,
		maxBodyBytes: opts.MaxBodyBytes,
		keepalive:    opts.Keepalive,
		upgrader:     stream.NewUpgrader(opts.AllowedOrigins),
		bus:          opts.Bus,
		logger:       logger,
	}
}

// Webhook accepts any body from the telephony API and always acknowledges
// it. There is no authentication on this endpoint.
func (h *RelayHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(r, h.maxBodyBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			h.logger.WarnContext(r.Context(), "webhook body too large",
				logging.IP(httputil.GetClientIP(r, false)))
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, errTooLarge)
			return
		}
		h.logger.WarnContext(r.Context(), "failed to read webhook body", logging.Error(err))
		httputil.WriteError(w, http.StatusBadRequest, errBadBody)
		return
	}

	h.service.Ingest(r.Context(), body)
	httputil.WriteOK(w)
}

// Events streams a call's events as server-sent events.
func (h *RelayHandler) Events(w http.ResponseWriter, r *http.Request) {
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		httputil.WriteError(w, http.StatusBadRequest, errMissingCallID)
		return
	}

	writer, err := stream.NewSSEWriter(w)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	session := stream.NewSession(callID, "sse", h.service.Store(), writer, h.keepalive, h.logger)
	if err := session.Run(r.Context()); err != nil {
		h.logger.DebugContext(r.Context(), "sse stream ended", logging.CallID(callID), logging.Error(err))
	}
}

// WebSocket streams a call's events as JSON text frames.
func (h *RelayHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		httputil.WriteError(w, http.StatusBadRequest, errMissingCallID)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.DebugContext(r.Context(), "websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	ctx := stream.WatchClose(r.Context(), conn)
	session := stream.NewSession(callID, "websocket", h.service.Store(), stream.NewWSWriter(conn), h.keepalive, h.logger)
	if err := session.Run(ctx); err != nil {
		h.logger.DebugContext(r.Context(), "websocket stream ended", logging.CallID(callID), logging.Error(err))
	}
}

// Health is liveness only.
func (h *RelayHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"api_base": h.apiBase,
	})
}

// Ready reports store and journal counters and the message bus connection.
func (h *RelayHandler) Ready(w http.ResponseWriter, r *http.Request) {
	stats := h.service.GetStats()
	bus := messaging.CheckClientHealth(h.bus)

	status := http.StatusOK
	state := "ready"
	if bus.Enabled && !bus.Connected {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	httputil.WriteJSON(w, status, map[string]any{
		"status":  state,
		"store":   stats.Store,
		"journal": stats.Journal,
		"nats":    bus,
	})
}
