// Package resolver provides an in-process executor.Runtime backed by Go
// functions registered per schema coordinate.
//
// Fields with a registered resolver are bound as async: the executor batches
// them per depth and the registry fans them out on a shared worker pool.
// Every other field is a sync projection of its parent value (map key, struct
// field or zero-argument method).
package resolver

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"

	executor "github.com/hanpama/graphserve/internal/executor"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// FieldFunc resolves one field for one parent value.
type FieldFunc func(ctx context.Context, source any, args map[string]any) (any, error)

// BatchFunc resolves one field for every parent value collected at a depth.
// It must return one value per source, in order. A value that is an error is
// reported for that element only; a non-nil error fails the whole group.
type BatchFunc func(ctx context.Context, sources []any, args []map[string]any) ([]any, error)

// SubscribeFunc opens the event stream for a subscription root field.
type SubscribeFunc func(ctx context.Context, args map[string]any) (<-chan any, error)

// TypeResolverFunc returns the concrete object type name of an abstract value.
type TypeResolverFunc func(ctx context.Context, value any) (string, error)

// ScalarFunc serializes a custom scalar value to a JSON-safe Go value.
type ScalarFunc func(value any) (any, error)

type coordinate struct {
	typeName string
	field    string
}

func (c coordinate) String() string { return c.typeName + "." + c.field }

// Registry implements executor.SubscriptionRuntime.
type Registry struct {
	mu      sync.RWMutex
	fields  map[coordinate]FieldFunc
	batches map[coordinate]BatchFunc
	subs    map[string]SubscribeFunc
	types   map[string]TypeResolverFunc
	scalars map[string]ScalarFunc

	schema *schema.Schema
	pool   *workerpool.WorkerPool
}

// Option configures a Registry.
type Option func(*Registry)

// WithWorkers sets the size of the pool running per-item resolvers.
func WithWorkers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.pool = workerpool.New(n)
		}
	}
}

// New creates an empty Registry. The worker pool defaults to GOMAXPROCS
// workers.
func New(opts ...Option) *Registry {
	r := &Registry{
		fields:  make(map[coordinate]FieldFunc),
		batches: make(map[coordinate]BatchFunc),
		subs:    make(map[string]SubscribeFunc),
		types:   make(map[string]TypeResolverFunc),
		scalars: make(map[string]ScalarFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = workerpool.New(runtime.GOMAXPROCS(0))
	}
	return r
}

// Field registers a per-item resolver for typeName.field.
func (r *Registry) Field(typeName, field string, fn FieldFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[coordinate{typeName, field}] = fn
	return r
}

// Batch registers a resolver receiving every parent value of a depth at once.
func (r *Registry) Batch(typeName, field string, fn BatchFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[coordinate{typeName, field}] = fn
	return r
}

// Subscription registers the source stream of a subscription root field.
func (r *Registry) Subscription(field string, fn SubscribeFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[field] = fn
	return r
}

// TypeResolver registers the type resolver of an interface or union.
func (r *Registry) TypeResolver(abstractType string, fn TypeResolverFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[abstractType] = fn
	return r
}

// Scalar registers the serializer of a custom scalar.
func (r *Registry) Scalar(name string, fn ScalarFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scalars[name] = fn
	return r
}

// Bind checks every registration against sch and marks fields with a
// resolver as async. All problems are reported together.
func (r *Registry) Bind(sch *schema.Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result *multierror.Error
	for c := range r.fields {
		result = multierror.Append(result, markAsync(sch, c))
	}
	for c := range r.batches {
		if _, dup := r.fields[c]; dup {
			result = multierror.Append(result, fmt.Errorf("%s has both a field and a batch resolver", c))
			continue
		}
		result = multierror.Append(result, markAsync(sch, c))
	}
	for field := range r.subs {
		sub := sch.GetSubscriptionType()
		if sub == nil || sub.Field(field) == nil {
			result = multierror.Append(result, fmt.Errorf("subscription field %q is not defined", field))
		}
	}
	for name := range r.types {
		t := sch.Types[name]
		if t == nil || (t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion) {
			result = multierror.Append(result, fmt.Errorf("type resolver for %q: not an interface or union", name))
		}
	}
	for name := range r.scalars {
		t := sch.Types[name]
		if t == nil || t.Kind != schema.TypeKindScalar {
			result = multierror.Append(result, fmt.Errorf("serializer for %q: not a scalar", name))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		sortErrors(result)
		return err
	}
	r.schema = sch
	return nil
}

func markAsync(sch *schema.Schema, c coordinate) error {
	t := sch.Types[c.typeName]
	if t == nil {
		return fmt.Errorf("resolver for %s: unknown type %q", c, c.typeName)
	}
	f := t.Field(c.field)
	if f == nil {
		return fmt.Errorf("resolver for %s: type %q has no field %q", c, c.typeName, c.field)
	}
	f.Async = true
	return nil
}

// sortErrors makes the aggregated message independent of map order.
func sortErrors(m *multierror.Error) {
	sort.Slice(m.Errors, func(i, j int) bool { return m.Errors[i].Error() < m.Errors[j].Error() })
}

// Close waits for running resolvers and stops the worker pool.
func (r *Registry) Close() {
	r.pool.StopWait()
}

func (r *Registry) fieldFunc(c coordinate) FieldFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fields[c]
}

func (r *Registry) batchFunc(c coordinate) BatchFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.batches[c]
}

// ResolveSync implements executor.Runtime.
func (r *Registry) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	if fn := r.fieldFunc(coordinate{objectType, field}); fn != nil {
		return call(ctx, fn, source, args)
	}
	return Project(source, field)
}

// BatchResolveAsync implements executor.Runtime. Tasks are grouped by
// coordinate; batch resolvers run once per group on the calling goroutine and
// per-item resolvers run on the worker pool. Results keep task order.
func (r *Registry) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))

	groups := make(map[coordinate][]int)
	var order []coordinate
	for i, t := range tasks {
		c := coordinate{t.ObjectType, t.Field}
		if _, ok := groups[c]; !ok {
			order = append(order, c)
		}
		groups[c] = append(groups[c], i)
	}

	var wg sync.WaitGroup
	for _, c := range order {
		idx := groups[c]
		if fn := r.batchFunc(c); fn != nil {
			r.runBatch(ctx, fn, tasks, idx, results)
			continue
		}
		fn := r.fieldFunc(c)
		for _, i := range idx {
			if fn == nil {
				v, err := Project(tasks[i].Source, tasks[i].Field)
				results[i] = executor.AsyncResolveResult{Value: v, Error: err}
				continue
			}
			wg.Add(1)
			r.pool.Submit(func() {
				defer wg.Done()
				v, err := call(ctx, fn, tasks[i].Source, tasks[i].Args)
				results[i] = executor.AsyncResolveResult{Value: v, Error: err}
			})
		}
	}
	wg.Wait()
	return results
}

func (r *Registry) runBatch(ctx context.Context, fn BatchFunc, tasks []executor.AsyncResolveTask, idx []int, results []executor.AsyncResolveResult) {
	sources := make([]any, len(idx))
	args := make([]map[string]any, len(idx))
	for j, i := range idx {
		sources[j] = tasks[i].Source
		args[j] = tasks[i].Args
	}

	values, err := callBatch(ctx, fn, sources, args)
	if err == nil && len(values) != len(idx) {
		err = fmt.Errorf("batch resolver for %s.%s returned %d values for %d sources",
			tasks[idx[0]].ObjectType, tasks[idx[0]].Field, len(values), len(idx))
	}
	for j, i := range idx {
		if err != nil {
			results[i].Error = err
			continue
		}
		if e, ok := values[j].(error); ok {
			results[i].Error = e
			continue
		}
		results[i].Value = values[j]
	}
}

func call(ctx context.Context, fn FieldFunc, source any, args map[string]any) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			v, err = nil, fmt.Errorf("resolver panic: %v", p)
		}
	}()
	return fn(ctx, source, args)
}

func callBatch(ctx context.Context, fn BatchFunc, sources []any, args []map[string]any) (v []any, err error) {
	defer func() {
		if p := recover(); p != nil {
			v, err = nil, fmt.Errorf("resolver panic: %v", p)
		}
	}()
	return fn(ctx, sources, args)
}

// Subscribe implements executor.SubscriptionRuntime.
func (r *Registry) Subscribe(ctx context.Context, objectType string, field string, args map[string]any) (<-chan any, error) {
	r.mu.RLock()
	fn := r.subs[field]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("no subscription resolver for %s.%s", objectType, field)
	}
	return fn(ctx, args)
}

// ResolveType implements executor.Runtime.
func (r *Registry) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	r.mu.RLock()
	fn := r.types[abstractType]
	r.mu.RUnlock()
	if fn != nil {
		return fn(ctx, value)
	}
	return Typename(value)
}

var _ executor.SubscriptionRuntime = (*Registry)(nil)
