package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when the GraphQL handler accepts a plain HTTP request.
// WebSocket upgrades emit WSConnect instead. The event context carries the
// request id.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted once the response has been written.
type HTTPFinish struct {
	Request *http.Request
	Status  int
	// Shape is the envelope kind of a GraphQL response ("single" or
	// "batch"), empty for preflight, GraphiQL and rejected requests.
	Shape string
	// Operations counts the operations executed for the response.
	Operations int
	Duration   time.Duration
}
