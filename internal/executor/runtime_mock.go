package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MockResolver resolves one field for one parent value in tests.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

// MockStream opens a subscription source stream in tests.
type MockStream func(ctx context.Context, args map[string]any) (<-chan any, error)

// Kinds of recorded calls.
const (
	CallKindSync      = "sync"
	CallKindAsync     = "async"
	CallKindSubscribe = "subscribe"
)

func NewMockValueResolver(val any) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return val, nil }
}

func NewMockErrorResolver(err error) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

// Call records one field resolution. Async calls made by the same
// BatchResolveAsync invocation share a BatchID, counted from 1; sync calls
// have BatchID 0.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	BatchID    int
}

// MockRuntime is a SubscriptionRuntime over resolvers keyed "Type.field".
// Fields without a resolver resolve to null. Every call is recorded.
type MockRuntime struct {
	mu         sync.Mutex
	resolvers  map[string]MockResolver
	streams    map[string]MockStream
	serializer func(typeName string, value any) (any, error)
	calls      []Call
	batches    int
}

func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{
		resolvers: make(map[string]MockResolver, len(resolvers)),
		streams:   make(map[string]MockStream),
	}
	for k, v := range resolvers {
		m.resolvers[k] = v
	}
	return m
}

func (m *MockRuntime) SetResolver(objectType, field string, r MockResolver) {
	m.mu.Lock()
	m.resolvers[objectType+"."+field] = r
	m.mu.Unlock()
}

func (m *MockRuntime) SetStream(objectType, field string, s MockStream) {
	m.mu.Lock()
	m.streams[objectType+"."+field] = s
	m.mu.Unlock()
}

// SetSerializer replaces the default pass-through leaf serializer.
func (m *MockRuntime) SetSerializer(f func(typeName string, value any) (any, error)) {
	m.mu.Lock()
	m.serializer = f
	m.mu.Unlock()
}

// GetCalls returns the recorded calls in order.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *MockRuntime) lookup(objectType, field string) MockResolver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolvers[objectType+"."+field]
}

func (m *MockRuntime) record(c Call) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

func (m *MockRuntime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	m.record(Call{Kind: CallKindSync, ObjectType: objectType, Field: field, Source: source, Args: args})
	if r := m.lookup(objectType, field); r != nil {
		return r(ctx, source, args)
	}
	return nil, nil
}

// BatchResolveAsync resolves tasks grouped by coordinate, groups in order of
// first appearance, and records them in that order.
func (m *MockRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	if len(tasks) == 0 {
		return nil
	}
	m.mu.Lock()
	m.batches++
	batchID := m.batches
	m.mu.Unlock()

	var order []string
	groups := make(map[string][]int)
	for i, t := range tasks {
		key := t.ObjectType + "." + t.Field
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	results := make([]AsyncResolveResult, len(tasks))
	for _, key := range order {
		for _, i := range groups[key] {
			t := tasks[i]
			m.record(Call{Kind: CallKindAsync, ObjectType: t.ObjectType, Field: t.Field, Source: t.Source, Args: t.Args, BatchID: batchID})
			if r := m.lookup(t.ObjectType, t.Field); r != nil {
				results[i].Value, results[i].Error = r(ctx, t.Source, t.Args)
			}
		}
	}
	return results
}

// ResolveType reads the "__typename" key of map values.
func (m *MockRuntime) ResolveType(_ context.Context, _ string, value any) (string, error) {
	if v, ok := value.(map[string]any); ok {
		if name, ok := v["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", errors.New("cannot resolve type")
}

func (m *MockRuntime) SerializeLeafValue(_ context.Context, typeName string, value any) (any, error) {
	m.mu.Lock()
	f := m.serializer
	m.mu.Unlock()
	if f == nil {
		return value, nil
	}
	return f(typeName, value)
}

func (m *MockRuntime) Subscribe(ctx context.Context, objectType string, field string, args map[string]any) (<-chan any, error) {
	m.record(Call{Kind: CallKindSubscribe, ObjectType: objectType, Field: field, Args: args})
	m.mu.Lock()
	s := m.streams[objectType+"."+field]
	m.mu.Unlock()
	if s == nil {
		return nil, fmt.Errorf("no stream registered for %s.%s", objectType, field)
	}
	return s(ctx, args)
}

var _ SubscriptionRuntime = (*MockRuntime)(nil)
