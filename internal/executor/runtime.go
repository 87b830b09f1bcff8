package executor

import (
	"context"
)

// Runtime resolves fields for the Executor.
//
// Per depth the Executor first drains sync fields through ResolveSync and
// then hands every async field of the depth to BatchResolveAsync at once; the
// next depth starts after that call returns. ResolveSync is never called for
// async fields. Returned errors become located GraphQL errors.
//
// objectType is the parent type name ("Query" for root fields), source the
// parent value (nil at the root) and args the coerced arguments. Neither
// source nor args may be modified. Implementations are shared by concurrent
// operations and must be safe for that.
type Runtime interface {
	// ResolveSync returns the raw value of a sync field. (nil, nil) is null.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves the async fields of one depth. It returns
	// exactly one result per task, in task order; a failed element does not
	// fail the others.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType names the object type of an interface or union value. The
	// name must be a possible type of abstractType.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue turns a scalar or enum value into a JSON-safe Go
	// value. Enums serialize to their names.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// SubscriptionRuntime is a Runtime that can also open event streams for
// subscription root fields.
type SubscriptionRuntime interface {
	Runtime

	// Subscribe opens the source stream for a subscription root field. Each
	// value received from the channel becomes the value of that field for one
	// response. A value of type error produces a response carrying that error.
	// The runtime closes the channel when the stream ends or ctx is done.
	Subscribe(ctx context.Context, objectType string, field string, args map[string]any) (<-chan any, error)
}

// AsyncResolveTask is one async field of a depth.
type AsyncResolveTask struct {
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
}

// AsyncResolveResult is the raw value of an AsyncResolveTask, before
// completion, or the error of that element alone.
type AsyncResolveResult struct {
	Value any
	Error error
}
