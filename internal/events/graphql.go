package events

import "time"

// Transport names the channel an operation arrived on.
type Transport string

const (
	TransportHTTP      Transport = "http"
	TransportWebSocket Transport = "ws"
)

// GraphQLBatch is emitted once for a batched request, before any of its
// operations run.
type GraphQLBatch struct {
	Size int
}

// GraphQLStart is emitted before executing a GraphQL operation.
// Index is the position inside a batch, or -1 for a single request.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
	Transport     Transport
	Index         int
}

// GraphQLFinish is emitted after executing a GraphQL operation.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Transport     Transport
	Index         int
	Errors        []error
	Duration      time.Duration
}
