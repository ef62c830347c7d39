// Package upstream forwards browser control actions to the telephony API.
//
// Request bodies are sanitized before they leave the relay: the recording
// toggle is never forwarded and the credential field only ever carries the
// relay's own configured token. Upstream responses, including non-2xx ones,
// are returned for relaying unchanged.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/callrelay/common/logging"
	"github.com/telhawk-systems/callrelay/common/middleware"
	"github.com/telhawk-systems/callrelay/relay/internal/metrics"
)

const (
	OpTwoLeg = "twoleg"
	OpHangup = "hangup"
)

const (
	fieldRecord    = "record"
	fieldAuthToken = "auth_token"
	fieldCallID    = "call_id"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeText  = "text/plain; charset=utf-8"
	maxResponseBytes = 10 << 20
)

var (
	// ErrMissingCallID is returned by ForwardHangup before any network call
	// when call_id is absent or falsy.
	ErrMissingCallID = errors.New("missing call_id")
	// ErrInvalidBody is returned when the client body is not a JSON object.
	ErrInvalidBody = errors.New("invalid JSON body")
)

// UnavailableError reports that the upstream could not be reached or its
// response could not be read.
type UnavailableError struct {
	Operation string
	Err       error
}

func (e *UnavailableError) Error() string {
	return e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Fields is a decoded client body. Values stay raw so they are forwarded
// exactly as the client sent them.
type Fields map[string]json.RawMessage

// Response is an upstream reply ready to be written back to the browser.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client posts sanitized requests to <baseURL>/<operation>.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *logging.Logger
}

// New constructs a Client. An empty authToken means no credential is
// attached to forwarded requests.
func New(baseURL, authToken string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "upstream"),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) HasCredential() bool {
	return c.authToken != ""
}

// DecodeFields parses a client body. An empty body is an empty object;
// anything that is not a JSON object is ErrInvalidBody.
func DecodeFields(raw []byte) (Fields, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Fields{}, nil
	}
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if f == nil {
		return nil, ErrInvalidBody
	}
	return f, nil
}

// ForwardTwoLeg drops the recording toggle and any client credential,
// attaches the configured credential, and posts the rest to /twoleg.
func (c *Client) ForwardTwoLeg(ctx context.Context, fields Fields) (*Response, error) {
	body := make(Fields, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	delete(body, fieldRecord)
	c.applyCredential(body)

	return c.post(ctx, OpTwoLeg, body)
}

// ForwardHangup posts only the call id (and credential) to /hangup.
func (c *Client) ForwardHangup(ctx context.Context, fields Fields) (*Response, error) {
	callID, ok := fields[fieldCallID]
	if !ok || !presentCallID(callID) {
		return nil, ErrMissingCallID
	}

	body := Fields{fieldCallID: callID}
	c.applyCredential(body)

	return c.post(ctx, OpHangup, body)
}

func (c *Client) applyCredential(body Fields) {
	delete(body, fieldAuthToken)
	if c.authToken == "" {
		return
	}
	token, _ := json.Marshal(c.authToken)
	body[fieldAuthToken] = token
}

// presentCallID reports whether a call id value is set. Only the falsy
// values count as missing: null, false, "", 0 and -0. Anything else,
// including objects and arrays, is forwarded for the API to judge.
func presentCallID(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch id := v.(type) {
	case nil:
		return false
	case bool:
		return id
	case string:
		return id != ""
	case float64:
		return id != 0
	default:
		return true
	}
}

func (c *Client) post(ctx context.Context, op string, body Fields) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", op, err)
	}

	url := c.baseURL + "/" + op
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	if reqID := middleware.GetRequestID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.unavailable(ctx, op, url, start, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.unavailable(ctx, op, url, start, err)
	}

	metrics.UpstreamDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.UpstreamRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	c.logger.DebugContext(ctx, "upstream responded",
		"operation", op,
		logging.Upstream(url),
		logging.Status(resp.StatusCode),
		logging.Duration(time.Since(start)),
	)

	return relay(resp.StatusCode, resp.Header.Get("Content-Type"), data), nil
}

func (c *Client) unavailable(ctx context.Context, op, url string, start time.Time, err error) error {
	metrics.UpstreamDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.UpstreamRequests.WithLabelValues(op, "error").Inc()

	c.logger.ErrorContext(ctx, "proxy error",
		"operation", op,
		logging.Upstream(url),
		logging.Duration(time.Since(start)),
		logging.Error(err),
	)
	return &UnavailableError{Operation: op, Err: err}
}

// relay decides how an upstream body is written back. Declared JSON that
// parses is re-sent as compact JSON; declared JSON that does not parse falls
// back to plain text with the same status.
func relay(status int, contentType string, body []byte) *Response {
	if strings.Contains(strings.ToLower(contentType), contentTypeJSON) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, body); err == nil {
			return &Response{StatusCode: status, ContentType: contentTypeJSON, Body: compact.Bytes()}
		}
		return &Response{StatusCode: status, ContentType: contentTypeText, Body: body}
	}

	if contentType == "" {
		contentType = contentTypeText
	}
	return &Response{StatusCode: status, ContentType: contentType, Body: body}
}
