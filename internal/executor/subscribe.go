package executor

import (
	"context"
	"errors"
	"fmt"

	language "github.com/hanpama/graphserve/internal/language"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// ErrSubscriptionsUnsupported is returned by Subscribe when the runtime does
// not implement SubscriptionRuntime.
var ErrSubscriptionsUnsupported = errors.New("runtime does not support subscriptions")

// Subscribe starts a subscription operation. The source stream for the single
// root field is opened through the runtime, and every source event is executed
// as the value of that field. The returned channel is closed when the source
// stream ends or ctx is done.
//
// Errors that prevent the stream from starting are returned directly; errors
// while executing an individual event are reported inside that event's result.
func (e *Executor) Subscribe(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
) (<-chan *ExecutionResult, error) {
	sr, ok := e.runtime.(SubscriptionRuntime)
	if !ok {
		return nil, ErrSubscriptionsUnsupported
	}
	operation, rootType, coerced, errRes := e.prepare(document, operationName, variableValues)
	if errRes != nil {
		return nil, errRes.Errors[0]
	}
	if operation.Operation != language.Subscription {
		return nil, fmt.Errorf("operation is a %s, not a subscription", operation.Operation)
	}

	state := e.newState(ctx, document, coerced)
	grouped := collectFields(state, rootType, operation.SelectionSet)
	if len(grouped) != 1 {
		return nil, errors.New("subscription must select exactly one top level field")
	}
	cf := grouped[0]
	field := cf.Fields[0]
	fieldDef := rootType.Field(field.Name)
	if fieldDef == nil {
		return nil, fmt.Errorf("cannot query field %q on type %q", field.Name, rootType.Name)
	}
	args, ok := coerceArgumentValues(state, fieldDef, field, Path{cf.ResponseName})
	if !ok {
		return nil, state.errors[0]
	}

	source, err := sr.Subscribe(ctx, rootType.Name, field.Name, args)
	if err != nil {
		return nil, err
	}

	out := make(chan *ExecutionResult)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-source:
				if !ok {
					return
				}
				res := e.executeSourceEvent(ctx, document, coerced, cf, fieldDef, event)
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (e *Executor) executeSourceEvent(
	ctx context.Context,
	document *language.QueryDocument,
	variables map[string]any,
	cf collectedField,
	fieldDef *schema.Field,
	event any,
) *ExecutionResult {
	state := e.newState(ctx, document, variables)
	path := Path{cf.ResponseName}
	responseRoot := make(map[string]any)

	if err, ok := event.(error); ok {
		state.addError(err.Error(), path, cf.Fields)
		state.writeRoot(responseRoot, cf.ResponseName, fieldDef.Type, nil)
		return state.result(responseRoot)
	}

	state.writeRoot(responseRoot, cf.ResponseName, fieldDef.Type, completeValue(state, fieldDef.Type, cf.Fields, event, path))
	state.drain(responseRoot)
	return state.result(responseRoot)
}
