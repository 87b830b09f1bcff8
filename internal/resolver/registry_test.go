package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/graphserve/internal/executor"
	language "github.com/hanpama/graphserve/internal/language"
	schema "github.com/hanpama/graphserve/internal/schema"
)

const librarySDL = `
type Query {
  books: [Book!]!
  featured: Media
  shelf(id: ID!): Shelf
}
type Subscription { added: Book! }
type Shelf { id: ID! label: String }
interface Media { title: String! }
type Book implements Media {
  title: String!
  pages: Int!
  author: Author!
  kind: Kind!
}
type Author { name: String! }
enum Kind { NOVEL ESSAY }
scalar Money
`

type Book struct {
	Title    string `json:"title"`
	NumPages int    `json:"pages"`
	AuthorID int    `json:"-"`
	Kind     string
}

func (b *Book) Typename() string { return "Book" }

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(librarySDL)
	require.NoError(t, err)
	return sch
}

func run(t *testing.T, sch *schema.Schema, rt executor.Runtime, query string) *executor.ExecutionResult {
	t.Helper()
	doc, errs := language.LoadQuery(sch.AST(), query)
	require.Empty(t, errs)
	return executor.NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil, nil)
}

func TestBindMarksResolvedFieldsAsync(t *testing.T) {
	sch := mustSchema(t)
	reg := New(WithWorkers(2))
	t.Cleanup(reg.Close)

	reg.Field("Query", "books", func(context.Context, any, map[string]any) (any, error) { return nil, nil }).
		Batch("Book", "author", func(_ context.Context, sources []any, _ []map[string]any) ([]any, error) { return nil, nil })
	require.NoError(t, reg.Bind(sch))

	assert.True(t, sch.Types["Query"].Field("books").Async)
	assert.True(t, sch.Types["Book"].Field("author").Async)
	assert.False(t, sch.Types["Book"].Field("title").Async)
}

func TestBindReportsEveryProblem(t *testing.T) {
	sch := mustSchema(t)
	noop := func(context.Context, any, map[string]any) (any, error) { return nil, nil }
	reg := New(WithWorkers(1))
	t.Cleanup(reg.Close)

	reg.Field("Nope", "x", noop).
		Field("Book", "missing", noop).
		Subscription("removed", func(context.Context, map[string]any) (<-chan any, error) { return nil, nil }).
		TypeResolver("Book", func(context.Context, any) (string, error) { return "", nil }).
		Scalar("Kind", func(v any) (any, error) { return v, nil })

	err := reg.Bind(sch)
	require.Error(t, err)
	for _, want := range []string{
		`unknown type "Nope"`,
		`type "Book" has no field "missing"`,
		`subscription field "removed" is not defined`,
		`type resolver for "Book": not an interface or union`,
		`serializer for "Kind": not a scalar`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestExecuteWithProjectionAndBatching(t *testing.T) {
	sch := mustSchema(t)
	reg := New(WithWorkers(4))
	t.Cleanup(reg.Close)

	var authorBatches atomic.Int32
	reg.Field("Query", "books", func(context.Context, any, map[string]any) (any, error) {
		return []*Book{
			{Title: "Dune", NumPages: 412, AuthorID: 1, Kind: "NOVEL"},
			{Title: "Essays", NumPages: 120, AuthorID: 2, Kind: "ESSAY"},
		}, nil
	})
	reg.Batch("Book", "author", func(_ context.Context, sources []any, _ []map[string]any) ([]any, error) {
		authorBatches.Add(1)
		out := make([]any, len(sources))
		for i, s := range sources {
			if s.(*Book).AuthorID == 2 {
				out[i] = errors.New("author unavailable")
				continue
			}
			out[i] = map[string]any{"name": "Herbert"}
		}
		return out, nil
	})
	require.NoError(t, reg.Bind(sch))

	res := run(t, sch, reg, `{ books { title pages kind author { name } } }`)

	assert.Equal(t, int32(1), authorBatches.Load())
	assert.Nil(t, res.Data.(map[string]any)["books"], "non-null author error bubbles to the root field")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "author unavailable", res.Errors[0].Message)
	assert.Equal(t, executor.Path{"books", 1, "author"}, res.Errors[0].Path)
}

func TestExecuteResolvesInterfaces(t *testing.T) {
	sch := mustSchema(t)
	reg := New(WithWorkers(1))
	t.Cleanup(reg.Close)

	reg.Field("Query", "featured", func(context.Context, any, map[string]any) (any, error) {
		return &Book{Title: "Dune", NumPages: 412, Kind: "NOVEL"}, nil
	})
	require.NoError(t, reg.Bind(sch))

	res := run(t, sch, reg, `{ featured { __typename title ... on Book { pages } } }`)

	require.Empty(t, res.Errors)
	assert.Equal(t, map[string]any{
		"featured": map[string]any{"__typename": "Book", "title": "Dune", "pages": 412},
	}, res.Data)
}

func TestPerItemErrorsAndPanicsStayLocal(t *testing.T) {
	sch := mustSchema(t)
	reg := New(WithWorkers(2))
	t.Cleanup(reg.Close)

	reg.Field("Query", "shelf", func(_ context.Context, _ any, args map[string]any) (any, error) {
		switch args["id"] {
		case "boom":
			panic("kaboom")
		case "err":
			return nil, errors.New("no such shelf")
		}
		return map[string]any{"id": args["id"], "label": "ok"}, nil
	})
	require.NoError(t, reg.Bind(sch))

	res := run(t, sch, reg, `{
		a: shelf(id: "1") { id label }
		b: shelf(id: "err") { id }
		c: shelf(id: "boom") { id }
	}`)

	data := res.Data.(map[string]any)
	assert.Equal(t, map[string]any{"id": "1", "label": "ok"}, data["a"])
	assert.Nil(t, data["b"])
	assert.Nil(t, data["c"])
	require.Len(t, res.Errors, 2)
	msgs := []string{res.Errors[0].Message, res.Errors[1].Message}
	assert.ElementsMatch(t, []string{"no such shelf", "resolver panic: kaboom"}, msgs)
}

func TestBatchResolverLengthMismatch(t *testing.T) {
	reg := New(WithWorkers(1))
	t.Cleanup(reg.Close)
	reg.Batch("Book", "author", func(context.Context, []any, []map[string]any) ([]any, error) {
		return []any{"only one"}, nil
	})

	results := reg.BatchResolveAsync(context.Background(), []executor.AsyncResolveTask{
		{ObjectType: "Book", Field: "author"},
		{ObjectType: "Book", Field: "author"},
	})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.EqualError(t, r.Error, "batch resolver for Book.author returned 1 values for 2 sources")
	}
}

func TestBatchResolveKeepsTaskOrder(t *testing.T) {
	reg := New(WithWorkers(3))
	t.Cleanup(reg.Close)
	echo := func(_ context.Context, source any, _ map[string]any) (any, error) { return source, nil }
	reg.Field("T", "a", echo).Field("T", "b", echo)

	tasks := []executor.AsyncResolveTask{
		{ObjectType: "T", Field: "a", Source: 0},
		{ObjectType: "T", Field: "b", Source: 1},
		{ObjectType: "T", Field: "a", Source: 2},
		{ObjectType: "T", Field: "c", Source: map[string]any{"c": 3}},
		{ObjectType: "T", Field: "b", Source: 4},
	}
	results := reg.BatchResolveAsync(context.Background(), tasks)

	got := make([]any, len(results))
	for i, r := range results {
		require.NoError(t, r.Error)
		got[i] = r.Value
	}
	assert.Equal(t, []any{0, 1, 2, 3, 4}, got)
}

func TestSubscribe(t *testing.T) {
	reg := New(WithWorkers(1))
	t.Cleanup(reg.Close)
	reg.Subscription("added", func(ctx context.Context, _ map[string]any) (<-chan any, error) {
		ch := make(chan any, 1)
		ch <- &Book{Title: "New"}
		close(ch)
		return ch, nil
	})

	ch, err := reg.Subscribe(context.Background(), "Subscription", "added", nil)
	require.NoError(t, err)
	assert.Equal(t, &Book{Title: "New"}, <-ch)

	_, err = reg.Subscribe(context.Background(), "Subscription", "other", nil)
	assert.EqualError(t, err, "no subscription resolver for Subscription.other")
}
