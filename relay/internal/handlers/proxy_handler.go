package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/telhawk-systems/callrelay/common/httputil"
	"github.com/telhawk-systems/callrelay/common/logging"
	"github.com/telhawk-systems/callrelay/relay/internal/upstream"
)

const (
	errInvalidJSON = "Invalid JSON body"
	errBadGateway  = "bad_gateway"
	errInternal    = "internal_error"
)

// Forwarder is the upstream client as seen by the proxy endpoints.
type Forwarder interface {
	ForwardTwoLeg(ctx context.Context, fields upstream.Fields) (*upstream.Response, error)
	ForwardHangup(ctx context.Context, fields upstream.Fields) (*upstream.Response, error)
}

// ProxyHandler relays browser control actions to the telephony API.
type ProxyHandler struct {
	forwarder    Forwarder
	maxBodyBytes int64
	logger       *logging.Logger
}

func NewProxyHandler(forwarder Forwarder, maxBodyBytes int64, logger *logging.Logger) *ProxyHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ProxyHandler{
		forwarder:    forwarder,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

func (h *ProxyHandler) TwoLeg(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.forwarder.ForwardTwoLeg)
}

func (h *ProxyHandler) Hangup(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, h.forwarder.ForwardHangup)
}

func (h *ProxyHandler) forward(w http.ResponseWriter, r *http.Request, fn func(context.Context, upstream.Fields) (*upstream.Response, error)) {
	raw, err := httputil.ReadBody(r, h.maxBodyBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, errTooLarge)
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, errBadBody)
		return
	}

	fields, err := upstream.DecodeFields(raw)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, errInvalidJSON)
		return
	}

	resp, err := fn(r.Context(), fields)
	if err != nil {
		var unavailable *upstream.UnavailableError
		switch {
		case errors.Is(err, upstream.ErrMissingCallID):
			httputil.WriteError(w, http.StatusBadRequest, errMissingCallID)
		case errors.As(err, &unavailable):
			httputil.WriteErrorDetail(w, http.StatusBadGateway, errBadGateway, unavailable.Error())
		default:
			h.logger.ErrorContext(r.Context(), "proxy request failed", logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, errInternal)
		}
		return
	}

	httputil.WriteRaw(w, resp.StatusCode, resp.ContentType, resp.Body)
}
