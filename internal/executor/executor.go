package executor

import (
	"context"
	"fmt"

	language "github.com/hanpama/graphserve/internal/language"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// Executor runs operations of one schema against one Runtime. It is safe for
// concurrent use.
type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, schema *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: schema}
}

// Schema returns the schema the executor runs against.
func (e *Executor) Schema() *schema.Schema { return e.schema }

// ExecuteRequest runs a query or mutation of document. initialValue is the
// source of the root fields. Request errors (unknown operation, bad
// variables) come back as a result without data.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	operation, rootType, coerced, errRes := e.prepare(document, operationName, variableValues)
	if errRes != nil {
		return errRes
	}

	state := e.newState(ctx, document, coerced)
	data := make(map[string]any)

	if operation.Operation == language.Mutation {
		for _, cf := range collectFields(state, rootType, operation.SelectionSet) {
			writeRootField(state, rootType, initialValue, cf, data)
			state.drain(data)
			if state.dataNull {
				break
			}
		}
		return state.result(data)
	}

	for _, cf := range collectFields(state, rootType, operation.SelectionSet) {
		writeRootField(state, rootType, initialValue, cf, data)
		if state.dataNull {
			return state.result(data)
		}
	}
	state.drain(data)
	return state.result(data)
}

// prepare selects the operation, coerces variables and finds the root type.
// A non-nil result means the request failed before execution started.
func (e *Executor) prepare(
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
) (*language.OperationDefinition, *schema.Type, map[string]any, *ExecutionResult) {
	operation := getOperation(document, operationName)
	if operation == nil {
		if operationName != "" {
			return nil, nil, nil, requestError(fmt.Sprintf("Unknown operation named %q.", operationName))
		}
		return nil, nil, nil, requestError("operation not found")
	}

	coerced, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return nil, nil, nil, requestError(err.Error())
	}

	var rootType *schema.Type
	switch operation.Operation {
	case language.Query:
		rootType = e.schema.GetQueryType()
	case language.Mutation:
		rootType = e.schema.GetMutationType()
	case language.Subscription:
		rootType = e.schema.GetSubscriptionType()
	default:
		return nil, nil, nil, requestError(fmt.Sprintf("unsupported operation type: %s", operation.Operation))
	}
	if rootType == nil {
		return nil, nil, nil, requestError(fmt.Sprintf("root type not found for %s operation", operation.Operation))
	}
	return operation, rootType, coerced, nil
}

// getOperation picks the named operation, or the only one when name is
// empty.
func getOperation(document *language.QueryDocument, name string) *language.OperationDefinition {
	if name == "" && len(document.Operations) == 1 {
		return document.Operations[0]
	}
	for _, op := range document.Operations {
		if op.Name == name {
			return op
		}
	}
	return nil
}

func requestError(message string) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: message}}}
}

// writeRootField executes one collected root field and stores its value.
func writeRootField(state *executionState, rootType *schema.Type, rootValue any, cf collectedField, data map[string]any) {
	v := executeFieldGroup(state, rootType, rootValue, cf.Fields, Path{cf.ResponseName})
	if cf.Fields[0].Name == "__typename" {
		data[cf.ResponseName] = v
		return
	}
	def := rootType.Field(cf.Fields[0].Name)
	if def == nil {
		return
	}
	state.writeRoot(data, cf.ResponseName, def.Type, v)
}

// executeSelectionSet executes the sync part of a selection set and queues
// its async fields. It returns nil when a Non-Null field came back null, so
// the caller nulls the object. Root fields go through writeRootField.
func executeSelectionSet(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet, objectValue any, path Path) map[string]any {
	out := make(map[string]any)
	for _, cf := range collectFields(state, objectType, selectionSet) {
		v := executeFieldGroup(state, objectType, objectValue, cf.Fields, appendPath(path, cf.ResponseName))

		if cf.Fields[0].Name == "__typename" {
			out[cf.ResponseName] = v
			continue
		}
		def := objectType.Field(cf.Fields[0].Name)
		if def == nil {
			continue
		}
		if schema.IsNonNull(def.Type) && isNullish(v) {
			return nil
		}
		out[cf.ResponseName] = nullable(v)
	}
	return out
}

// executeFieldGroup resolves one response key. Sync fields complete in
// place; async fields are queued and leave asyncPending in the tree.
func executeFieldGroup(state *executionState, objectType *schema.Type, objectValue any, fields []*language.Field, path Path) any {
	field := fields[0]
	if field.Name == "__typename" {
		return objectType.Name
	}

	def := objectType.Field(field.Name)
	if def == nil {
		state.addError(fmt.Sprintf("Cannot query field '%s' on type '%s'", field.Name, objectType.Name), path, fields)
		return nil
	}

	args, ok := coerceArgumentValues(state, def, field, path)
	if !ok {
		return nil
	}

	if def.Async {
		state.enqueue(asyncTask{
			Task: AsyncResolveTask{
				ObjectType: objectType.Name,
				Field:      field.Name,
				Source:     objectValue,
				Args:       args,
			},
			Path:      path,
			FieldType: def.Type,
			Fields:    fields,
		})
		return asyncPending{}
	}

	v, err := state.runtime.ResolveSync(state.context, objectType.Name, field.Name, objectValue, args)
	if err != nil {
		state.addError(err.Error(), path, fields)
		v = nil
	}
	return completeValue(state, def.Type, fields, v, path)
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	switch {
	case t == nil:
		return nil
	case t.NonNull:
		return schema.NonNullType(typeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	case t.NamedType != "":
		return schema.NamedType(t.NamedType)
	case t.Elem != nil:
		return schema.ListType(typeRefFromAST(t.Elem))
	}
	return nil
}
