package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

const defaultDeprecationReason = "No longer supported"

// BuildFromSDL validates one or more SDL documents and returns the executable
// schema. Builtin scalars, directives and introspection types come from the
// gqlparser prelude. Root operation types follow the schema definition, or
// the Query/Mutation/Subscription naming convention when there is none.
func BuildFromSDL(sdl ...string) (*Schema, error) {
	sources := make([]*ast.Source, len(sdl))
	for i, s := range sdl {
		sources[i] = &ast.Source{Name: fmt.Sprintf("schema%d.graphql", i), Input: s}
	}
	return BuildFromSources(sources...)
}

// BuildFromSources is BuildFromSDL for named sources, so validation errors
// point at the right file.
func BuildFromSources(sources ...*ast.Source) (*Schema, error) {
	doc, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return BuildFromAST(doc), nil
}

// BuildFromAST converts a validated gqlparser schema.
func BuildFromAST(doc *ast.Schema) *Schema {
	s := &Schema{
		Types:       make(map[string]*Type, len(doc.Types)),
		Directives:  make(map[string]*Directive, len(doc.Directives)),
		Description: doc.Description,
		ast:         doc,
	}
	if doc.Query != nil {
		s.QueryType = doc.Query.Name
	}
	if doc.Mutation != nil {
		s.MutationType = doc.Mutation.Name
	}
	if doc.Subscription != nil {
		s.SubscriptionType = doc.Subscription.Name
	}
	for name, def := range doc.Types {
		s.Types[name] = buildType(doc, def)
	}
	for name, dir := range doc.Directives {
		s.Directives[name] = buildDirective(dir)
	}
	return s
}

func buildType(doc *ast.Schema, def *ast.Definition) *Type {
	t := &Type{
		Name:        def.Name,
		Description: def.Description,
	}
	switch def.Kind {
	case ast.Scalar:
		t.Kind = TypeKindScalar
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				url := arg.Value.Raw
				t.SpecifiedByURL = &url
			}
		}
	case ast.Object, ast.Interface:
		t.Kind = TypeKindObject
		if def.Kind == ast.Interface {
			t.Kind = TypeKindInterface
			t.PossibleTypes = possibleTypeNames(doc, def.Name)
		}
		t.Interfaces = append(t.Interfaces, def.Interfaces...)
		for _, fd := range def.Fields {
			// gqlparser keeps meta fields such as __typename on object
			// definitions; the executor answers those itself.
			if strings.HasPrefix(fd.Name, "__") {
				continue
			}
			t.Fields = append(t.Fields, buildField(fd))
		}
	case ast.Union:
		t.Kind = TypeKindUnion
		t.PossibleTypes = possibleTypeNames(doc, def.Name)
	case ast.Enum:
		t.Kind = TypeKindEnum
		for _, ev := range def.EnumValues {
			v := &EnumValue{Name: ev.Name, Description: ev.Description}
			v.IsDeprecated, v.DeprecationReason = deprecation(ev.Directives)
			t.EnumValues = append(t.EnumValues, v)
		}
	case ast.InputObject:
		t.Kind = TypeKindInputObject
		t.OneOf = def.Directives.ForName("oneOf") != nil
		for _, fd := range def.Fields {
			t.InputFields = append(t.InputFields, buildInputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue, fd.Directives))
		}
	}
	return t
}

func buildField(fd *ast.FieldDefinition) *Field {
	f := &Field{
		Name:        fd.Name,
		Description: fd.Description,
		Type:        buildTypeRef(fd.Type),
	}
	f.IsDeprecated, f.DeprecationReason = deprecation(fd.Directives)
	for _, arg := range fd.Arguments {
		f.Arguments = append(f.Arguments, buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
	}
	return f
}

func buildInputValue(name, description string, typ *ast.Type, def *ast.Value, dirs ast.DirectiveList) *InputValue {
	in := &InputValue{
		Name:        name,
		Description: description,
		Type:        buildTypeRef(typ),
	}
	if def != nil {
		// The validator has already checked defaults against their types.
		in.DefaultValue, _ = def.Value(nil)
		in.DefaultLiteral = def.String()
	}
	in.IsDeprecated, in.DeprecationReason = deprecation(dirs)
	return in
}

func buildDirective(dir *ast.DirectiveDefinition) *Directive {
	d := &Directive{
		Name:         dir.Name,
		Description:  dir.Description,
		IsRepeatable: dir.IsRepeatable,
	}
	for _, loc := range dir.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range dir.Arguments {
		d.Arguments = append(d.Arguments, buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
	}
	return d
}

func buildTypeRef(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

func possibleTypeNames(doc *ast.Schema, abstract string) []string {
	defs := doc.PossibleTypes[abstract]
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

func deprecation(dirs ast.DirectiveList) (bool, string) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return false, ""
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return true, arg.Value.Raw
	}
	return true, defaultDeprecationReason
}

// Render produces SDL for the user-defined part of the schema. Builtin
// scalars, directives and introspection types are omitted. Schemas assembled
// by hand render as the empty string.
func Render(s *Schema) string {
	if s == nil || s.ast == nil {
		return ""
	}
	var b strings.Builder
	formatter.NewFormatter(&b).FormatSchema(s.ast)
	return b.String()
}
