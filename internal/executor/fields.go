package executor

import (
	language "github.com/hanpama/graphserve/internal/language"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// collectedField is every AST field sharing one response name, in document
// order.
type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

// fieldCollector groups the selections applying to one object type.
type fieldCollector struct {
	state   *executionState
	object  *schema.Type
	fields  []collectedField
	byName  map[string]int
	visited map[string]bool
}

// collectFields returns the grouped fields of selectionSet for objectType,
// honoring @skip, @include and fragment type conditions. The result keeps
// the order in which response names first appear.
func collectFields(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet) []collectedField {
	c := &fieldCollector{
		state:   state,
		object:  objectType,
		byName:  make(map[string]int),
		visited: make(map[string]bool),
	}
	c.collect(selectionSet)
	return c.fields
}

func (c *fieldCollector) collect(selectionSet language.SelectionSet) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if c.included(sel.Directives) {
				c.add(sel)
			}

		case *language.InlineFragment:
			if c.included(sel.Directives) && doesFragmentTypeApply(c.state, c.object, sel.TypeCondition) {
				c.collect(sel.SelectionSet)
			}

		case *language.FragmentSpread:
			if !c.included(sel.Directives) || c.visited[sel.Name] {
				continue
			}
			c.visited[sel.Name] = true
			def := c.state.document.Fragments.ForName(sel.Name)
			if def == nil || !doesFragmentTypeApply(c.state, c.object, def.TypeCondition) || !c.included(def.Directives) {
				continue
			}
			c.collect(def.SelectionSet)
		}
	}
}

func (c *fieldCollector) add(f *language.Field) {
	name := f.Alias
	if name == "" {
		name = f.Name
	}
	if i, ok := c.byName[name]; ok {
		c.fields[i].Fields = append(c.fields[i].Fields, f)
		return
	}
	c.byName[name] = len(c.fields)
	c.fields = append(c.fields, collectedField{ResponseName: name, Fields: []*language.Field{f}})
}

// included evaluates @skip(if:) and @include(if:). A condition that is not
// a boolean is ignored.
func (c *fieldCollector) included(directives language.DirectiveList) bool {
	if v, ok := c.directiveIf(directives, "skip"); ok && v {
		return false
	}
	if v, ok := c.directiveIf(directives, "include"); ok && !v {
		return false
	}
	return true
}

func (c *fieldCollector) directiveIf(directives language.DirectiveList, name string) (value, ok bool) {
	d := directives.ForName(name)
	if d == nil {
		return false, false
	}
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false, false
	}
	value, ok = literal(arg.Value, c.state.variableValues).(bool)
	return value, ok
}

// doesFragmentTypeApply reports whether a fragment with the given type
// condition selects fields on objectType. The condition may name the object
// itself or an interface or union it belongs to.
func doesFragmentTypeApply(state *executionState, objectType *schema.Type, typeCondition string) bool {
	if typeCondition == "" || typeCondition == objectType.Name {
		return true
	}
	return state.schema.IsPossibleType(typeCondition, objectType.Name)
}
