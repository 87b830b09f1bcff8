// Package introspection answers the __schema and __type queries from the
// executable schema model.
package introspection

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	executor "github.com/hanpama/graphserve/internal/executor"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// Wrapper holds the introspection runtime and the schema it executes against.
type Wrapper struct {
	Runtime executor.SubscriptionRuntime
	Schema  *schema.Schema
}

// Wrap returns a Runtime that resolves the introspection types itself and
// delegates everything else to base. The returned schema is sch with
// __schema and __type added to the query type; sch itself is not modified.
func Wrap(base executor.Runtime, sch *schema.Schema) *Wrapper {
	return &Wrapper{
		Runtime: &runtime{base: base, schema: sch},
		Schema:  extendSchema(sch),
	}
}

type runtime struct {
	base   executor.Runtime
	schema *schema.Schema // schema as seen by clients, without the entry points
}

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	switch objectType {
	case "__Schema":
		if sch, ok := source.(*schema.Schema); ok {
			return resolveSchemaField(sch, field)
		}
	case "__Type":
		switch src := source.(type) {
		case *schema.Type:
			return resolveTypeField(r.schema, src, field, args)
		case *schema.TypeRef:
			return resolveTypeRefField(r.schema, src, field, args)
		}
	case "__Field":
		if f, ok := source.(*schema.Field); ok {
			return resolveFieldField(r.schema, f, field, args)
		}
	case "__InputValue":
		if iv, ok := source.(*schema.InputValue); ok {
			return resolveInputValueField(r.schema, iv, field)
		}
	case "__EnumValue":
		if ev, ok := source.(*schema.EnumValue); ok {
			return resolveEnumValueField(ev, field)
		}
	case "__Directive":
		if d, ok := source.(*schema.Directive); ok {
			return resolveDirectiveField(d, field, args)
		}
	case r.schema.QueryType:
		switch field {
		case "__schema":
			return r.schema, nil
		case "__type":
			name, _ := args["name"].(string)
			if t := r.schema.Types[name]; t != nil {
				return t, nil
			}
			return nil, nil
		}
	}
	return r.base.ResolveSync(ctx, objectType, field, source, args)
}

func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return r.base.ResolveType(ctx, abstractType, value)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	switch typ {
	case "__TypeKind", "__DirectiveLocation":
		if s, ok := value.(string); ok {
			return s, nil
		}
	}
	return r.base.SerializeLeafValue(ctx, typ, value)
}

func (r *runtime) Subscribe(ctx context.Context, objectType string, field string, args map[string]any) (<-chan any, error) {
	sr, ok := r.base.(executor.SubscriptionRuntime)
	if !ok {
		return nil, executor.ErrSubscriptionsUnsupported
	}
	return sr.Subscribe(ctx, objectType, field, args)
}

// optional maps an empty description to null.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deprecationReason(deprecated bool, reason string) any {
	if !deprecated {
		return nil
	}
	return reason
}

func includeDeprecated(args map[string]any) bool {
	b, _ := args["includeDeprecated"].(bool)
	return b
}

// typeOf returns the model object describing tr: the named type itself, or
// the wrapper reference for lists and non-null types.
func typeOf(sch *schema.Schema, tr *schema.TypeRef) any {
	if tr == nil {
		return nil
	}
	if tr.Kind == schema.TypeRefKindNamed {
		if def := sch.Types[tr.Named]; def != nil {
			return def
		}
		return nil
	}
	return tr
}

func namedTypes(sch *schema.Schema, names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if def := sch.Types[name]; def != nil {
			out = append(out, def)
		}
	}
	return out
}

// visible drops deprecated members unless args ask for them.
func visible[T any](items []T, deprecated func(T) bool, args map[string]any) []T {
	if includeDeprecated(args) {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if !deprecated(it) {
			out = append(out, it)
		}
	}
	return out
}

func inputValues(values []*schema.InputValue, args map[string]any) []*schema.InputValue {
	return visible(values, func(v *schema.InputValue) bool { return v.IsDeprecated }, args)
}

func resolveSchemaField(sch *schema.Schema, field string) (any, error) {
	switch field {
	case "description":
		return optional(sch.Description), nil
	case "types":
		return slices.SortedFunc(maps.Values(sch.Types), func(a, b *schema.Type) int {
			return strings.Compare(a.Name, b.Name)
		}), nil
	case "queryType":
		return sch.GetQueryType(), nil
	case "mutationType":
		return sch.GetMutationType(), nil
	case "subscriptionType":
		return sch.GetSubscriptionType(), nil
	case "directives":
		return slices.SortedFunc(maps.Values(sch.Directives), func(a, b *schema.Directive) int {
			return strings.Compare(a.Name, b.Name)
		}), nil
	}
	return nil, fmt.Errorf("unknown field __Schema.%s", field)
}

func resolveTypeField(sch *schema.Schema, t *schema.Type, field string, args map[string]any) (any, error) {
	switch field {
	case "kind":
		return string(t.Kind), nil
	case "name":
		return t.Name, nil
	case "description":
		return optional(t.Description), nil
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil, nil
		}
		return *t.SpecifiedByURL, nil
	case "fields":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, nil
		}
		return visible(t.Fields, func(f *schema.Field) bool { return f.IsDeprecated }, args), nil
	case "interfaces":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, nil
		}
		return namedTypes(sch, t.Interfaces), nil
	case "possibleTypes":
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil, nil
		}
		return namedTypes(sch, t.PossibleTypes), nil
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, nil
		}
		return visible(t.EnumValues, func(ev *schema.EnumValue) bool { return ev.IsDeprecated }, args), nil
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, nil
		}
		return inputValues(t.InputFields, args), nil
	case "isOneOf":
		if t.Kind != schema.TypeKindInputObject {
			return nil, nil
		}
		return t.OneOf, nil
	case "ofType":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown field __Type.%s", field)
}

// resolveTypeRefField answers __Type fields for LIST and NON_NULL wrappers.
func resolveTypeRefField(sch *schema.Schema, tr *schema.TypeRef, field string, args map[string]any) (any, error) {
	if tr.Kind == schema.TypeRefKindNamed {
		if def := sch.Types[tr.Named]; def != nil {
			return resolveTypeField(sch, def, field, args)
		}
		return nil, fmt.Errorf("unknown type %q", tr.Named)
	}
	switch field {
	case "kind":
		return string(tr.Kind), nil
	case "ofType":
		return typeOf(sch, tr.OfType), nil
	case "name", "description", "specifiedByURL", "fields", "interfaces",
		"possibleTypes", "enumValues", "inputFields", "isOneOf":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown field __Type.%s", field)
}

func resolveFieldField(sch *schema.Schema, f *schema.Field, field string, args map[string]any) (any, error) {
	switch field {
	case "name":
		return f.Name, nil
	case "description":
		return optional(f.Description), nil
	case "args":
		return inputValues(f.Arguments, args), nil
	case "type":
		return typeOf(sch, f.Type), nil
	case "isDeprecated":
		return f.IsDeprecated, nil
	case "deprecationReason":
		return deprecationReason(f.IsDeprecated, f.DeprecationReason), nil
	}
	return nil, fmt.Errorf("unknown field __Field.%s", field)
}

func resolveInputValueField(sch *schema.Schema, iv *schema.InputValue, field string) (any, error) {
	switch field {
	case "name":
		return iv.Name, nil
	case "description":
		return optional(iv.Description), nil
	case "type":
		return typeOf(sch, iv.Type), nil
	case "defaultValue":
		if iv.DefaultLiteral != "" {
			return iv.DefaultLiteral, nil
		}
		if iv.DefaultValue != nil {
			return fmt.Sprintf("%v", iv.DefaultValue), nil
		}
		return nil, nil
	case "isDeprecated":
		return iv.IsDeprecated, nil
	case "deprecationReason":
		return deprecationReason(iv.IsDeprecated, iv.DeprecationReason), nil
	}
	return nil, fmt.Errorf("unknown field __InputValue.%s", field)
}

func resolveEnumValueField(ev *schema.EnumValue, field string) (any, error) {
	switch field {
	case "name":
		return ev.Name, nil
	case "description":
		return optional(ev.Description), nil
	case "isDeprecated":
		return ev.IsDeprecated, nil
	case "deprecationReason":
		return deprecationReason(ev.IsDeprecated, ev.DeprecationReason), nil
	}
	return nil, fmt.Errorf("unknown field __EnumValue.%s", field)
}

func resolveDirectiveField(d *schema.Directive, field string, args map[string]any) (any, error) {
	switch field {
	case "name":
		return d.Name, nil
	case "description":
		return optional(d.Description), nil
	case "isRepeatable":
		return d.IsRepeatable, nil
	case "locations":
		return d.Locations, nil
	case "args":
		return inputValues(d.Arguments, args), nil
	}
	return nil, fmt.Errorf("unknown field __Directive.%s", field)
}
