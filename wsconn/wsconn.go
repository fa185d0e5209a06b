// Package wsconn adapts the gorilla/websocket upgrade-and-pump pattern used
// elsewhere in this stack to a single-connection shape: one read pump, one
// write pump, no shared Hub/room registry, since fan-out here runs through
// the per-voice-channel event bus rather than a websocket broadcast map.
package wsconn

import (
	"net/http"
	"os"

	"github.com/gorilla/websocket"
)

// Upgrader is shared by every upgrade on this server. Origin checking
// follows the same non-production-is-permissive rule used elsewhere in this
// stack: anything goes outside ENVIRONMENT=production.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if os.Getenv("ENVIRONMENT") != "production" {
			return true
		}
		return origin == os.Getenv("ALLOWED_ORIGIN")
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WritePump drains send and writes each message as a text frame until send
// is closed or a write fails. Meant to run on its own goroutine as the
// connection's only writer, matching the hub-style single-writer
// discipline used throughout this stack.
func WritePump(conn *websocket.Conn, send <-chan []byte) {
	for message := range send {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// ReadPump blocks reading text frames off conn, invoking onMessage for
// each. It returns (invoking onClose first) when the connection errors or
// closes. Binary frames are treated as a protocol error and dropped.
func ReadPump(conn *websocket.Conn, onMessage func([]byte), onClose func(error)) {
	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			onClose(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		onMessage(message)
	}
}
