// Package models holds the relay's data types: opaque call events and the
// rules for deriving the call id they are filed under.
package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// GlobalCallID is the key used for events that carry no call id.
const GlobalCallID = "global"

// emptyObject is stored for empty or unparsable webhook bodies.
var emptyObject = Event(`{}`)

// Event is one opaque webhook payload, kept as compact JSON. Its shape is
// never inspected beyond call id extraction. Events are immutable once
// stored; callers must not modify the underlying bytes.
type Event json.RawMessage

// MarshalJSON embeds the event verbatim.
func (e Event) MarshalJSON() ([]byte, error) {
	if len(e) == 0 {
		return []byte("null"), nil
	}
	return e, nil
}

// String returns the event's JSON text.
func (e Event) String() string {
	return string(e)
}

// NewEvent turns a raw request body into a storable Event. Bodies that are
// empty or not valid JSON become "{}"; valid ones are compacted so the event
// always fits on a single line. ok reports whether raw was valid JSON.
func NewEvent(raw []byte) (ev Event, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return emptyObject, false
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return emptyObject, false
	}
	return Event(buf.Bytes()), true
}

// webhookEnvelope is the only part of a webhook the relay looks at.
type webhookEnvelope struct {
	Payload struct {
		CallID json.RawMessage `json:"call_id"`
	} `json:"payload"`
}

// ExtractCallID returns payload.call_id from a webhook event, or "" when the
// event has none. String ids are returned unquoted. Numeric ids are rendered
// in shortest decimal form, so 1.0 and 1e3 file under "1" and "1000"; a zero
// id counts as absent. Any other type counts as absent.
func ExtractCallID(ev Event) string {
	var env webhookEnvelope
	if err := json.Unmarshal(ev, &env); err != nil {
		return ""
	}

	raw := env.Payload.CallID
	if len(raw) == 0 {
		return ""
	}

	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case c == '-' || (c >= '0' && c <= '9'):
		return formatNumericID(raw)
	default:
		return ""
	}
}

// formatNumericID renders a JSON number the way call ids are keyed by the
// telephony API's own tooling: plain decimal between 1e-6 and 1e21, exponent
// notation outside that range.
func formatNumericID(raw json.RawMessage) string {
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil && !math.IsInf(f, 0) {
		return ""
	}
	switch {
	case f == 0:
		return ""
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	// Go pads the exponent to two digits ("1e-07"); drop the padding.
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mantissa + "e" + sign + digits
}

// ResolveCallID returns callID, or GlobalCallID when callID is empty.
func ResolveCallID(callID string) string {
	if callID == "" {
		return GlobalCallID
	}
	return callID
}
