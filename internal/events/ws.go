package events

import (
	"net/http"
	"time"
)

// WSConnect is emitted after a WebSocket upgrade succeeds.
type WSConnect struct {
	Request *http.Request
}

// WSDisconnect is emitted when a WebSocket connection ends. CloseCode is 0
// when the connection dropped without a close frame from the server.
type WSDisconnect struct {
	Request   *http.Request
	CloseCode int
	Duration  time.Duration
}
