package executor

import (
	"context"
	"slices"
	"strconv"
	"strings"

	language "github.com/hanpama/graphserve/internal/language"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// Path locates a value in the response: field names and list indexes.
type Path []PathElement

// PathElement is a string response key or an int list index.
type PathElement any

func appendPath(path Path, elem PathElement) Path {
	out := make(Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

// String renders p as dotted segments, list indexes in brackets.
func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		if i > 0 {
			b.WriteByte('.')
		}
		switch v := elem.(type) {
		case string:
			b.WriteString(v)
		case int:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// executionState is the per-operation state shared by all depths.
type executionState struct {
	runtime        Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	variableValues map[string]any
	context        context.Context

	queue  []asyncTask
	errors []GraphQLError
	// nulled holds rendered paths whose subtree was replaced by null.
	nulled map[string]struct{}
	// rootTypes maps root response names to their field types.
	rootTypes map[string]*schema.TypeRef
	// dataNull is set once a Non-Null root field is null; data becomes null.
	dataNull bool
}

func (e *Executor) newState(ctx context.Context, document *language.QueryDocument, variables map[string]any) *executionState {
	return &executionState{
		runtime:        e.runtime,
		schema:         e.schema,
		document:       document,
		variableValues: variables,
		context:        ctx,
		errors:         []GraphQLError{},
		nulled:         make(map[string]struct{}),
		rootTypes:      make(map[string]*schema.TypeRef),
	}
}

func (s *executionState) result(data map[string]any) *ExecutionResult {
	if s.dataNull {
		return &ExecutionResult{Data: nil, Errors: s.errors}
	}
	return &ExecutionResult{Data: data, Errors: s.errors}
}

// writeRoot stores the value of a root field. A null in a Non-Null root
// field nulls the whole data object.
func (s *executionState) writeRoot(data map[string]any, name string, typ *schema.TypeRef, v any) {
	s.rootTypes[name] = typ
	if schema.IsNonNull(typ) && isNullish(v) {
		s.dataNull = true
		s.queue = nil
		return
	}
	data[name] = nullable(v)
}

// addError records a field error located at the given fields.
func (s *executionState) addError(message string, path Path, fields []*language.Field) {
	s.errors = append(s.errors, GraphQLError{
		Message:   message,
		Path:      path,
		Locations: locate(fields),
	})
}

func locate(fields []*language.Field) []language.Location {
	var locs []language.Location
	for _, f := range fields {
		if f == nil || f.Position == nil {
			continue
		}
		locs = append(locs, language.Location{Line: f.Position.Line, Column: f.Position.Column})
	}
	return locs
}

func (s *executionState) hasErrorAtPath(path Path) bool {
	return slices.ContainsFunc(s.errors, func(e GraphQLError) bool {
		return slices.Equal(e.Path, path)
	})
}

// nullify replaces the top-level field above path with null and drops any
// work still pending below it. When that field is Non-Null, data itself
// becomes null.
func (s *executionState) nullify(data map[string]any, path Path) {
	for _, elem := range path {
		if name, ok := elem.(string); ok {
			if schema.IsNonNull(s.rootTypes[name]) {
				s.dataNull = true
				s.queue = nil
				return
			}
			data[name] = nil
			s.nulled[name] = struct{}{}
			return
		}
	}
}

func (s *executionState) isNulled(path Path) bool {
	if s.dataNull {
		return true
	}
	if len(s.nulled) == 0 {
		return false
	}
	for i := range path {
		if _, ok := s.nulled[path[:i+1].String()]; ok {
			return true
		}
	}
	return false
}

// setValueAtPath writes value into the response tree. Nothing is written when
// an ancestor is missing or was nulled.
func setValueAtPath(root map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	var cur any = root
	for _, elem := range path[:len(path)-1] {
		switch e := elem.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return
			}
			cur = m[e]
		case int:
			list, ok := cur.([]any)
			if !ok || e >= len(list) {
				return
			}
			cur = list[e]
		}
	}
	switch e := path[len(path)-1].(type) {
	case string:
		if m, ok := cur.(map[string]any); ok {
			m[e] = value
		}
	case int:
		if list, ok := cur.([]any); ok && e < len(list) {
			list[e] = value
		}
	}
}
