package executor

import (
	"fmt"
	"reflect"

	language "github.com/hanpama/graphserve/internal/language"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// completeValue turns a resolved value into its response form for
// fieldType. Null in a Non-Null position records an error unless one is
// already recorded at path, and completes to nil.
func completeValue(state *executionState, fieldType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	if schema.IsNonNull(fieldType) {
		if isNullish(result) {
			if !state.hasErrorAtPath(path) {
				state.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path), path, fields)
			}
			return nil
		}
		return nullable(completeValue(state, schema.Unwrap(fieldType), fields, result, path))
	}
	if isNullish(result) {
		return nil
	}
	if schema.IsList(fieldType) {
		return completeListValue(state, fieldType, fields, result, path)
	}

	name := schema.GetNamedType(fieldType)
	t := state.schema.Types[name]
	if t == nil {
		state.addError(fmt.Sprintf("Unknown type: %s", name), path, fields)
		return nil
	}
	switch t.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		v, err := state.runtime.SerializeLeafValue(state.context, name, result)
		if err != nil {
			state.addError(err.Error(), path, fields)
			return nil
		}
		return v
	case schema.TypeKindObject:
		return completeObjectValue(state, t, fields, result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return completeAbstractValue(state, name, fields, result, path)
	}
	state.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", t.Kind), path, fields)
	return nil
}

// completeListValue completes every item of a slice value. A null in a
// Non-Null item position nulls the whole list.
func completeListValue(state *executionState, listType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	items, ok := result.([]any)
	if !ok {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			state.addError(fmt.Sprintf("Expected list value, got %T", result), path, fields)
			return nil
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}

	itemType := schema.Unwrap(listType)
	out := make([]any, len(items))
	for i, item := range items {
		v := completeValue(state, itemType, fields, item, appendPath(path, i))
		if isNullish(v) {
			if schema.IsNonNull(itemType) {
				return nil
			}
			v = nil
		}
		out[i] = v
	}
	return out
}

func completeObjectValue(state *executionState, objectType *schema.Type, fields []*language.Field, result any, path Path) any {
	return nullable(executeSelectionSet(state, objectType, mergeSelectionSets(fields), result, path))
}

func completeAbstractValue(state *executionState, abstractType string, fields []*language.Field, result any, path Path) any {
	typeName, err := state.runtime.ResolveType(state.context, abstractType, result)
	if err != nil {
		state.addError(err.Error(), path, fields)
		return nil
	}
	objectType := state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		state.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractType, typeName), path, fields)
		return nil
	}
	if !state.schema.IsPossibleType(abstractType, typeName) {
		state.addError(fmt.Sprintf("Runtime Object type %s is not a possible type for %s", typeName, abstractType), path, fields)
		return nil
	}
	return completeObjectValue(state, objectType, fields, result, path)
}

func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish reports whether v is nil or a typed nil.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// nullable folds typed nils into a plain nil for the response tree.
func nullable(v any) any {
	if isNullish(v) {
		return nil
	}
	return v
}
