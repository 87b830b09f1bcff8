package introspection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/graphserve/internal/executor"
	language "github.com/hanpama/graphserve/internal/language"
	resolver "github.com/hanpama/graphserve/internal/resolver"
	schema "github.com/hanpama/graphserve/internal/schema"
)

const testSDL = `
"The root"
type Query {
  hello: String
  pets(first: Int = 10): [Pet!]!
  old: String @deprecated(reason: "use hello")
}
interface Pet { name: String! }
type Dog implements Pet { name: String! }
enum Mood { HAPPY SAD @deprecated }
input Filter { name: String tag: String }
scalar URL @specifiedBy(url: "https://url.spec.whatwg.org")
`

// noopRuntime implements executor.Runtime with no behaviour.
type noopRuntime struct{}

func (noopRuntime) ResolveSync(context.Context, string, string, any, map[string]any) (any, error) {
	return nil, nil
}

func (noopRuntime) BatchResolveAsync(context.Context, []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return nil
}

func (noopRuntime) ResolveType(context.Context, string, any) (string, error) {
	return "", nil
}

func (noopRuntime) SerializeLeafValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

func buildSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	sch.Types["Filter"].OneOf = true
	return sch
}

func execute(t *testing.T, rt executor.Runtime, sch *schema.Schema, query string) map[string]any {
	t.Helper()
	wrapper := Wrap(rt, sch)
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	res := executor.NewExecutor(wrapper.Runtime, wrapper.Schema).ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	return res.Data.(map[string]any)
}

func TestWrapLeavesOriginalSchemaAlone(t *testing.T) {
	sch := buildSchema(t)
	wrapper := Wrap(noopRuntime{}, sch)

	assert.Nil(t, sch.GetQueryType().Field("__schema"))
	assert.NotNil(t, wrapper.Schema.GetQueryType().Field("__schema"))
	assert.NotNil(t, wrapper.Schema.GetQueryType().Field("__type"))
}

func TestSchemaRoots(t *testing.T) {
	data := execute(t, noopRuntime{}, buildSchema(t), `{
		__schema { description queryType { name } mutationType { name } subscriptionType { name } }
	}`)

	assert.Equal(t, map[string]any{
		"description":      nil,
		"queryType":        map[string]any{"name": "Query"},
		"mutationType":     nil,
		"subscriptionType": nil,
	}, data["__schema"])
}

func TestSchemaTypesAreSortedAndHideEntryPoints(t *testing.T) {
	data := execute(t, noopRuntime{}, buildSchema(t), `{ __schema { types { name } } }`)

	var names []string
	for _, ty := range data["__schema"].(map[string]any)["types"].([]any) {
		names = append(names, ty.(map[string]any)["name"].(string))
	}
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "Dog")
	assert.Contains(t, names, "__Type")

	q := execute(t, noopRuntime{}, buildSchema(t), `{ __type(name: "Query") { fields { name } } }`)
	var fields []string
	for _, f := range q["__type"].(map[string]any)["fields"].([]any) {
		fields = append(fields, f.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"hello", "pets"}, fields)
}

func TestTypeWrappersAndDefaults(t *testing.T) {
	data := execute(t, noopRuntime{}, buildSchema(t), `{
		__type(name: "Query") {
			kind
			description
			fields(includeDeprecated: true) {
				name
				isDeprecated
				deprecationReason
				args { name defaultValue type { kind name } }
				type { kind name ofType { kind name ofType { kind name ofType { kind name } } } }
			}
		}
	}`)

	typ := data["__type"].(map[string]any)
	assert.Equal(t, "OBJECT", typ["kind"])
	assert.Equal(t, "The root", typ["description"])

	fields := typ["fields"].([]any)
	require.Len(t, fields, 3)

	pets := fields[1].(map[string]any)
	assert.Equal(t, []any{map[string]any{
		"name":         "first",
		"defaultValue": "10",
		"type":         map[string]any{"kind": "SCALAR", "name": "Int"},
	}}, pets["args"])
	assert.Equal(t, map[string]any{
		"kind": "NON_NULL",
		"name": nil,
		"ofType": map[string]any{
			"kind": "LIST",
			"name": nil,
			"ofType": map[string]any{
				"kind":   "NON_NULL",
				"name":   nil,
				"ofType": map[string]any{"kind": "INTERFACE", "name": "Pet"},
			},
		},
	}, pets["type"])

	old := fields[2].(map[string]any)
	assert.Equal(t, true, old["isDeprecated"])
	assert.Equal(t, "use hello", old["deprecationReason"])
}

func TestTypeKindSpecificFields(t *testing.T) {
	data := execute(t, noopRuntime{}, buildSchema(t), `{
		pet: __type(name: "Pet") { possibleTypes { name } fields { name } enumValues { name } }
		mood: __type(name: "Mood") { enumValues { name } all: enumValues(includeDeprecated: true) { name isDeprecated } }
		filter: __type(name: "Filter") { kind inputFields { name } }
		url: __type(name: "URL") { kind specifiedByURL }
		missing: __type(name: "Nope") { name }
	}`)

	assert.Equal(t, map[string]any{
		"possibleTypes": []any{map[string]any{"name": "Dog"}},
		"fields":        []any{map[string]any{"name": "name"}},
		"enumValues":    nil,
	}, data["pet"])
	assert.Equal(t, map[string]any{
		"enumValues": []any{map[string]any{"name": "HAPPY"}},
		"all": []any{
			map[string]any{"name": "HAPPY", "isDeprecated": false},
			map[string]any{"name": "SAD", "isDeprecated": true},
		},
	}, data["mood"])
	assert.Equal(t, map[string]any{
		"kind":        "INPUT_OBJECT",
		"inputFields": []any{map[string]any{"name": "name"}, map[string]any{"name": "tag"}},
	}, data["filter"])
	assert.Equal(t, map[string]any{
		"kind":           "SCALAR",
		"specifiedByURL": "https://url.spec.whatwg.org",
	}, data["url"])
	assert.Nil(t, data["missing"])
}

func TestDirectives(t *testing.T) {
	data := execute(t, noopRuntime{}, buildSchema(t), `{ __schema { directives { name isRepeatable locations args { name } } } }`)

	var deprecated map[string]any
	for _, d := range data["__schema"].(map[string]any)["directives"].([]any) {
		if d.(map[string]any)["name"] == "deprecated" {
			deprecated = d.(map[string]any)
		}
	}
	require.NotNil(t, deprecated)
	assert.Equal(t, false, deprecated["isRepeatable"])
	assert.Contains(t, deprecated["locations"], "FIELD_DEFINITION")
	assert.Equal(t, []any{map[string]any{"name": "reason"}}, deprecated["args"])
}

func TestUserFieldsStillReachBaseRuntime(t *testing.T) {
	sch := buildSchema(t)
	reg := resolver.New(resolver.WithWorkers(1))
	t.Cleanup(reg.Close)
	reg.Field("Query", "hello", func(context.Context, any, map[string]any) (any, error) {
		return "world", nil
	})
	require.NoError(t, reg.Bind(sch))

	data := execute(t, reg, sch, `{ hello __typename __type(name: "Dog") { name interfaces { name } } }`)

	assert.Equal(t, "world", data["hello"])
	assert.Equal(t, "Query", data["__typename"])
	assert.Equal(t, map[string]any{
		"name":       "Dog",
		"interfaces": []any{map[string]any{"name": "Pet"}},
	}, data["__type"])
}

func TestSubscribeDelegates(t *testing.T) {
	wrapper := Wrap(noopRuntime{}, buildSchema(t))
	_, err := wrapper.Runtime.Subscribe(context.Background(), "Subscription", "x", nil)
	assert.ErrorIs(t, err, executor.ErrSubscriptionsUnsupported)

	reg := resolver.New(resolver.WithWorkers(1))
	t.Cleanup(reg.Close)
	reg.Subscription("x", func(context.Context, map[string]any) (<-chan any, error) {
		ch := make(chan any)
		close(ch)
		return ch, nil
	})
	wrapper = Wrap(reg, buildSchema(t))
	ch, err := wrapper.Runtime.Subscribe(context.Background(), "Subscription", "x", nil)
	require.NoError(t, err)
	_, open := <-ch
	assert.False(t, open)
}
