// Package demo is the example schema and resolvers that graphserve serves
// out of the box, together with a client that exercises them.
package demo

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	resolver "github.com/hanpama/graphserve/internal/resolver"
	schema "github.com/hanpama/graphserve/internal/schema"
)

//go:embed schema.graphql
var SDL string

// Schema builds the demo schema.
func Schema() (*schema.Schema, error) {
	return schema.BuildFromSDL(SDL)
}

type Cat struct {
	Type     string `json:"type"`
	Sound    string `json:"sound"`
	Whiskers bool   `json:"whiskers"`
}

type Dog struct {
	Type       string `json:"type"`
	Sound      string `json:"sound"`
	BarkVolume int    `json:"barkVolume"`
}

type LeftHand struct {
	Field string `json:"field"`
}

type RightHand struct {
	Property int `json:"property"`
}

var numbers = []float64{0.5, 1, 1.5, 2.25, 3, 4.75, 8}

// Options configures the demo resolvers.
type Options struct {
	// CounterInterval is the delay between counter events.
	CounterInterval time.Duration
}

type Option func(*Options)

func WithCounterInterval(d time.Duration) Option {
	return func(o *Options) { o.CounterInterval = d }
}

// Register installs the demo resolvers on reg.
func Register(reg *resolver.Registry, store *Store, opts ...Option) *resolver.Registry {
	o := Options{CounterInterval: 100 * time.Millisecond}
	for _, fn := range opts {
		fn(&o)
	}

	return reg.
		Field("Query", "helloWorld", func(_ context.Context, _ any, args map[string]any) (any, error) {
			name, _ := args["name"].(string)
			if name == "" {
				name = "World"
			}
			return fmt.Sprintf("Hello, %s!", name), nil
		}).
		Batch("Query", "retrieveBasicObject", func(ctx context.Context, _ []any, args []map[string]any) ([]any, error) {
			ids := make([]int, len(args))
			for i, a := range args {
				ids[i], _ = a["id"].(int)
			}
			objs, err := store.GetMany(ctx, ids)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(objs))
			for i, o := range objs {
				if o != nil {
					out[i] = o
				}
			}
			return out, nil
		}).
		Field("Query", "listQuery", func(ctx context.Context, _ any, _ map[string]any) (any, error) {
			return store.List(ctx)
		}).
		Field("Query", "interfaceQuery", func(context.Context, any, map[string]any) (any, error) {
			return Dog{Type: "DOG", Sound: "woof", BarkVolume: 7}, nil
		}).
		Field("Query", "unionQuery", func(context.Context, any, map[string]any) (any, error) {
			return RightHand{Property: 12}, nil
		}).
		Field("Query", "enumQuery", func(context.Context, any, map[string]any) (any, error) {
			return "ONE", nil
		}).
		Field("Query", "filteredNumbers", func(_ context.Context, _ any, args map[string]any) (any, error) {
			criteria, _ := args["simpleCriteria"].(map[string]any)
			out := []float64{}
			for _, n := range numbers {
				if lo, ok := criteria["min"].(float64); ok && n < lo {
					continue
				}
				if hi, ok := criteria["max"].(float64); ok && n > hi {
					continue
				}
				out = append(out, n)
			}
			return out, nil
		}).
		Field("Mutation", "addBasicObject", func(ctx context.Context, _ any, args map[string]any) (any, error) {
			return store.Add(ctx, basicObjectInput(args["newObject"]))
		}).
		Field("Mutation", "updateBasicObject", func(ctx context.Context, _ any, args map[string]any) (any, error) {
			o, err := store.Update(ctx, basicObjectInput(args["updatedObject"]))
			if o == nil || err != nil {
				return nil, err
			}
			return o, nil
		}).
		Subscription("counter", func(ctx context.Context, args map[string]any) (<-chan any, error) {
			upTo, _ := args["upTo"].(int)
			if upTo < 0 {
				return nil, fmt.Errorf("upTo must not be negative, got %d", upTo)
			}
			ch := make(chan any)
			go func() {
				defer close(ch)
				for i := 1; i <= upTo; i++ {
					if i > 1 && o.CounterInterval > 0 {
						select {
						case <-time.After(o.CounterInterval):
						case <-ctx.Done():
							return
						}
					}
					select {
					case ch <- i:
					case <-ctx.Done():
						return
					}
				}
			}()
			return ch, nil
		})
}

func basicObjectInput(v any) BasicObject {
	m, _ := v.(map[string]any)
	id, _ := m["id"].(int)
	name, _ := m["name"].(string)
	return BasicObject{ID: id, Name: name}
}
