// Package executor runs validated GraphQL operations breadth first against a
// Runtime.
//
// # Depths
//
// Fields are either sync or async (schema.Field.Async). Sync fields are
// resolved in place through Runtime.ResolveSync and their object values are
// expanded immediately, so a chain of sync fields never adds a depth. Async
// fields met while expanding a depth are queued, and the whole queue goes to
// Runtime.BatchResolveAsync in one call. Completing those results yields the
// next depth. A response whose deepest async path has d async fields costs
// exactly d BatchResolveAsync calls.
//
// The resolver package decides the split: a field with a registered resolver
// is async, everything else is a projection of its parent value.
//
// # Completion and errors
//
// Values complete as GraphQL prescribes: lists element by element, leaves
// through Runtime.SerializeLeafValue, abstract values through
// Runtime.ResolveType followed by a possible-type check. Within a depth, a
// null or an error in a Non-Null position nulls the nearest nullable
// ancestor. When the failing field is async its depth has already been
// written, so the top-level field above it is nulled instead, and queued
// tasks below it are dropped before the next batch. A null reaching a
// Non-Null root field nulls data itself and stops execution. Errors carry the
// field location and response path, and the rest of the response survives.
//
// # Operations
//
// Query root fields share the first depth. Mutation root fields run one at a
// time, each drained with its async descendants before the next starts.
// Subscribe opens a source stream through a SubscriptionRuntime and executes
// every event as the value of the single root field.
//
// An Executor holds no per-request state; the HTTP and WebSocket handlers
// share one across requests and across the operations of a batch.
package executor
