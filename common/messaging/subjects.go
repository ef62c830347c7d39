package messaging

import "strings"

// Subject constants for the relay message bus.
// Follow the pattern: {domain}.{resource}
const (
	// SubjectCallEvents is the default prefix for mirrored call events.
	// The resolved call id is appended as the last token.
	SubjectCallEvents = "callrelay.events"
)

// Header names attached to mirrored call events.
const (
	HeaderCallID    = "Call-Id"
	HeaderRequestID = "Request-Id"
)

// CallEventSubject returns the subject for one call's events.
// Example: callrelay.events.abc123
//
// Call ids are opaque strings, so characters with meaning in subject syntax
// (token separators, wildcards, whitespace) are replaced with '_'.
func CallEventSubject(prefix, callID string) string {
	if prefix == "" {
		prefix = SubjectCallEvents
	}
	return strings.TrimSuffix(prefix, ".") + "." + SubjectToken(callID)
}

// SubjectToken makes s safe to use as a single subject token.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
