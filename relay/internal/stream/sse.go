package stream

import (
	"errors"
	"io"
	"net/http"

	"github.com/telhawk-systems/callrelay/relay/internal/models"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

var (
	sseUpdatePrefix = []byte("event: update\ndata: ")
	sseFrameEnd     = []byte("\n\n")
	ssePing         = []byte("event: ping\ndata: {}\n\n")
)

// SSEWriter writes server-sent events.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter sends the event-stream headers and flushes them so the client
// sees the stream open before the first event.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent writes "event: update" with ev as its single data line.
func (s *SSEWriter) WriteEvent(ev models.Event) error {
	frame := make([]byte, 0, len(sseUpdatePrefix)+len(ev)+len(sseFrameEnd))
	frame = append(frame, sseUpdatePrefix...)
	frame = append(frame, ev...)
	frame = append(frame, sseFrameEnd...)
	return s.write(frame)
}

// WritePing writes a heartbeat with an empty payload.
func (s *SSEWriter) WritePing() error {
	return s.write(ssePing)
}

func (s *SSEWriter) write(frame []byte) error {
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
