package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"

	language "github.com/hanpama/graphserve/internal/language"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// ignoreLocations drops source locations from error comparisons; tests that
// care about them assert on Locations directly.
var ignoreLocations = cmpopts.IgnoreFields(GraphQLError{}, "Locations")

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

// mustBuildSchema builds a schema from SDL and marks the given "Type.field"
// coordinates as async.
func mustBuildSchema(t *testing.T, sdl string, async ...string) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	if err != nil {
		t.Fatalf("schema error: %v", err)
	}
	for _, coord := range async {
		typeName, fieldName, _ := strings.Cut(coord, ".")
		typ := sch.Types[typeName]
		if typ == nil || typ.Field(fieldName) == nil {
			t.Fatalf("unknown field %s", coord)
		}
		typ.Field(fieldName).Async = true
	}
	return sch
}

// prop resolves a field by reading key from a map source.
func prop(key string) MockResolver {
	return func(_ context.Context, source any, _ map[string]any) (any, error) {
		m, _ := source.(map[string]any)
		return m[key], nil
	}
}
