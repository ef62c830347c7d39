package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telhawk-systems/callrelay/relay/internal/models"
)

const wsWriteWait = 10 * time.Second

var wsPingData = models.Event(`{}`)

type wsFrame struct {
	Event string       `json:"event"`
	Data  models.Event `json:"data"`
}

// NewUpgrader returns a websocket upgrader that accepts the same origins as
// the CORS policy. "*" or an empty list accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	anyOrigin := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16384,
		CheckOrigin: func(r *http.Request) bool {
			if anyOrigin {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
}

// WSWriter writes JSON text frames to a websocket connection.
type WSWriter struct {
	conn *websocket.Conn
}

func NewWSWriter(conn *websocket.Conn) *WSWriter {
	return &WSWriter{conn: conn}
}

func (w *WSWriter) WriteEvent(ev models.Event) error {
	return w.write(wsFrame{Event: "update", Data: ev})
}

func (w *WSWriter) WritePing() error {
	return w.write(wsFrame{Event: "ping", Data: wsPingData})
}

func (w *WSWriter) write(frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// WatchClose drains incoming frames and cancels the returned context once
// the peer goes away. A hijacked connection does not cancel the request
// context on its own.
func WatchClose(parent context.Context, conn *websocket.Conn) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return ctx
}
