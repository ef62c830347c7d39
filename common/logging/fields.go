package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across relay components.
const (
	FieldService      = "service"
	FieldRequestID    = "request_id"
	FieldCallID       = "call_id"
	FieldIP           = "ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatus       = "status"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldUpstream     = "upstream"
	FieldSubscription = "subscription_id"
	FieldTransport    = "transport"
	FieldBytes        = "bytes"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// CallID returns a slog attribute for the resolved call identifier.
func CallID(id string) slog.Attr {
	return slog.String(FieldCallID, id)
}

// IP returns a slog attribute for the IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for a duration, in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Upstream returns a slog attribute for an upstream URL.
func Upstream(url string) slog.Attr {
	return slog.String(FieldUpstream, url)
}

// Subscription returns a slog attribute for a subscription handle id.
func Subscription(id uint64) slog.Attr {
	return slog.Uint64(FieldSubscription, id)
}

// Transport returns a slog attribute naming a stream transport (sse, websocket).
func Transport(name string) slog.Attr {
	return slog.String(FieldTransport, name)
}

// Bytes returns a slog attribute for a payload size.
func Bytes(n int) slog.Attr {
	return slog.Int(FieldBytes, n)
}
