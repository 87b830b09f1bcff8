// Package schema is the executor's view of a GraphQL schema: named types,
// their fields and wrapped type references, and the root operation types.
package schema

import (
	"maps"
	"slices"

	"github.com/vektah/gqlparser/v2/ast"
)

// Schema is a set of named types plus the names of the root operation types.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Description      string
	Types            map[string]*Type
	Directives       map[string]*Directive

	ast *ast.Schema
}

// AST returns the validated gqlparser schema s was built from. It is nil for
// schemas assembled by hand.
func (s *Schema) AST() *ast.Schema { return s.ast }

// Clone returns a copy of s that can take new types and directives without
// touching s. Types themselves are shared.
func (s *Schema) Clone() *Schema {
	out := *s
	out.Types = maps.Clone(s.Types)
	out.Directives = maps.Clone(s.Directives)
	return &out
}

// IsPossibleType reports whether object can be the runtime type of abstract.
// Every type is a possible type of itself.
func (s *Schema) IsPossibleType(abstract, object string) bool {
	if abstract == object {
		return true
	}
	t := s.Types[abstract]
	return t != nil && slices.Contains(t.PossibleTypes, object)
}

func (s *Schema) GetQueryType() *Type        { return s.Types[s.QueryType] }
func (s *Schema) GetMutationType() *Type     { return s.Types[s.MutationType] }
func (s *Schema) GetSubscriptionType() *Type { return s.Types[s.SubscriptionType] }

type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// Type is a named type. Which of the slices are used depends on Kind.
type Type struct {
	Name        string
	Kind        TypeKind
	Description string

	Fields        []*Field      // objects and interfaces
	Interfaces    []string      // objects and interfaces
	PossibleTypes []string      // interfaces and unions
	EnumValues    []*EnumValue  // enums
	InputFields   []*InputValue // input objects

	SpecifiedByURL *string
	OneOf          bool
}

// Field returns the output field called name, or nil.
func (t *Type) Field(name string) *Field {
	i := slices.IndexFunc(t.Fields, func(f *Field) bool { return f.Name == name })
	if i < 0 {
		return nil
	}
	return t.Fields[i]
}

// InputField returns the input object field called name, or nil.
func (t *Type) InputField(name string) *InputValue {
	i := slices.IndexFunc(t.InputFields, func(f *InputValue) bool { return f.Name == name })
	if i < 0 {
		return nil
	}
	return t.InputFields[i]
}

func (t *Type) HasEnumValue(name string) bool {
	return slices.ContainsFunc(t.EnumValues, func(v *EnumValue) bool { return v.Name == name })
}

// Field is an output field. Async fields are resolved in per-depth batches.
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	Async             bool
	IsDeprecated      bool
	DeprecationReason string
}

// InputValue is an argument or an input object field.
type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      any
	IsDeprecated      bool
	DeprecationReason string

	// DefaultLiteral is DefaultValue in GraphQL syntax; empty without a
	// default.
	DefaultLiteral string
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

// TypeRef is a possibly wrapped reference to a named type. Wrapping kinds
// use OfType; TypeRefKindNamed uses Named.
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef
	Named  string
}

func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }

func IsNonNull(t *TypeRef) bool { return t != nil && t.Kind == TypeRefKindNonNull }

// IsList reports whether t is a list, nullable or not.
func IsList(t *TypeRef) bool {
	if IsNonNull(t) {
		t = t.OfType
	}
	return t != nil && t.Kind == TypeRefKindList
}

// Unwrap strips one List or Non-Null layer. Named types are returned as is.
func Unwrap(t *TypeRef) *TypeRef {
	if t.Kind == TypeRefKindNamed {
		return t
	}
	return t.OfType
}

// GetNamedType returns the name of the type at the bottom of t.
func GetNamedType(t *TypeRef) string {
	for ; t != nil; t = t.OfType {
		if t.Kind == TypeRefKindNamed {
			return t.Named
		}
	}
	return ""
}
