package introspection

import (
	"slices"

	schema "github.com/hanpama/graphserve/internal/schema"
)

// The __Schema, __Type, __Field, __InputValue, __EnumValue and __Directive
// types come from the builtin prelude; only the two entry points on the
// query root are added here.
var (
	schemaField = &schema.Field{
		Name:        "__schema",
		Description: "Access the current type schema of this server.",
		Type:        schema.NonNullType(schema.NamedType("__Schema")),
	}
	typeField = &schema.Field{
		Name:        "__type",
		Description: "Request the type information of a single type.",
		Type:        schema.NamedType("__Type"),
		Arguments: []*schema.InputValue{
			{Name: "name", Type: schema.NonNullType(schema.NamedType("String"))},
		},
	}
)

// extendSchema returns a copy of original whose query type also carries
// __schema and __type. original is left untouched.
func extendSchema(original *schema.Schema) *schema.Schema {
	extended := original.Clone()
	queryType := original.GetQueryType()
	if queryType == nil {
		return extended
	}
	q := *queryType
	q.Fields = append(slices.Clone(queryType.Fields), schemaField, typeField)
	extended.Types[q.Name] = &q
	return extended
}
