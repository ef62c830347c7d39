package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"compact object", `{"a":1}`, `{"a":1}`, true},
		{"pretty printed", "{\n  \"payload\": {\n    \"call_id\": \"c1\"\n  }\n}\n", `{"payload":{"call_id":"c1"}}`, true},
		{"array", `[1, 2]`, `[1,2]`, true},
		{"scalar", `"hello"`, `"hello"`, true},
		{"empty body", ``, `{}`, false},
		{"whitespace only", "  \n\t", `{}`, false},
		{"malformed", `{"payload":`, `{}`, false},
		{"plain text", `call ended`, `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := NewEvent([]byte(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, ev.String())
		})
	}
}

func TestExtractCallID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string id", `{"payload":{"call_id":"v3:abc-123"}}`, "v3:abc-123"},
		{"numeric id", `{"payload":{"call_id":42}}`, "42"},
		{"negative numeric id", `{"payload":{"call_id":-7}}`, "-7"},
		{"trailing zero fraction", `{"payload":{"call_id":1.0}}`, "1"},
		{"exponent id", `{"payload":{"call_id":1e3}}`, "1000"},
		{"fractional id", `{"payload":{"call_id":2.50}}`, "2.5"},
		{"large integer id", `{"payload":{"call_id":12345678901234567890}}`, "12345678901234567000"},
		{"tiny id", `{"payload":{"call_id":1e-7}}`, "1e-7"},
		{"huge id", `{"payload":{"call_id":1e21}}`, "1e+21"},
		{"zero id is absent", `{"payload":{"call_id":0}}`, ""},
		{"negative zero id is absent", `{"payload":{"call_id":-0.0}}`, ""},
		{"escaped string id", `{"payload":{"call_id":"a\"b"}}`, `a"b`},
		{"empty string id", `{"payload":{"call_id":""}}`, ""},
		{"null id", `{"payload":{"call_id":null}}`, ""},
		{"boolean id", `{"payload":{"call_id":true}}`, ""},
		{"object id", `{"payload":{"call_id":{"x":1}}}`, ""},
		{"missing payload", `{"event_type":"call.hangup"}`, ""},
		{"payload not an object", `{"payload":"call.hangup"}`, ""},
		{"top level call_id is ignored", `{"call_id":"top"}`, ""},
		{"top level array", `[{"payload":{"call_id":"x"}}]`, ""},
		{"empty object", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCallID(Event(tt.raw)))
		})
	}
}

func TestResolveCallID(t *testing.T) {
	assert.Equal(t, GlobalCallID, ResolveCallID(""))
	assert.Equal(t, "c-1", ResolveCallID("c-1"))
	assert.Equal(t, "global", GlobalCallID)
}

func TestEvent_MarshalJSON(t *testing.T) {
	frame := struct {
		Event string `json:"event"`
		Data  Event  `json:"data"`
	}{Event: "update", Data: Event(`{"payload":{"call_id":"c1"}}`)}

	out, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"update","data":{"payload":{"call_id":"c1"}}}`, string(out))

	empty, err := json.Marshal(Event(nil))
	require.NoError(t, err)
	assert.Equal(t, "null", string(empty))
}
