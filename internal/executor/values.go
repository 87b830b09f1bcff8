package executor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	language "github.com/hanpama/graphserve/internal/language"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// coerceVariableValues coerces the provided variables against the
// operation's variable definitions, filling in defaults.
func coerceVariableValues(
	sch *schema.Schema,
	operation *language.OperationDefinition,
	variableValues map[string]any,
) (map[string]any, error) {
	if variableValues == nil {
		variableValues = make(map[string]any)
	}
	coerced := make(map[string]any)
	for _, varDef := range operation.VariableDefinitions {
		name := varDef.Variable
		t := varDef.Type
		val, ok := lookupVariable(variableValues, name)
		if !ok {
			if varDef.DefaultValue != nil {
				val = literal(varDef.DefaultValue, nil)
			} else if t.NonNull {
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, t.String())
			} else {
				continue
			}
		}
		if val == nil && t.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, t.String())
		}
		cv, err := coerceValue(sch, val, typeRefFromAST(t))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %v", name, t.String(), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceArgumentValues coerces the arguments of field against fieldDef.
// Failures are recorded on state and reported through ok.
func coerceArgumentValues(
	state *executionState,
	fieldDef *schema.Field,
	field *language.Field,
	path Path,
) (coerced map[string]any, ok bool) {
	fields := []*language.Field{field}
	coerced = make(map[string]any)
	for _, argDef := range fieldDef.Arguments {
		name := argDef.Name
		arg := field.Arguments.ForName(name)

		provided := arg != nil
		var val any
		if provided {
			if arg.Value != nil && arg.Value.Kind == language.Variable {
				_, provided = state.variableValues[arg.Value.Raw]
			}
			val = literal(arg.Value, state.variableValues)
		}

		if !provided {
			if argDef.DefaultValue != nil {
				val = argDef.DefaultValue
			} else if schema.IsNonNull(argDef.Type) {
				state.addError(fmt.Sprintf("argument '%s' of required type was not provided", name), path, fields)
				return nil, false
			} else {
				continue
			}
		}

		cv, err := coerceValue(state.schema, val, argDef.Type)
		if err != nil {
			state.addError(fmt.Sprintf("argument '%s' cannot be coerced: %v", name, err), path, fields)
			return nil, false
		}
		coerced[name] = cv
	}
	return coerced, true
}

func lookupVariable(vars map[string]any, name string) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	v, ok := vars[strings.TrimPrefix(name, "$")]
	return v, ok
}

// literal turns an AST value into its Go form: Int as int, Float as float64,
// enums and strings as string, objects as map[string]any. Variables are read
// from vars; an unset variable is nil.
func literal(value *language.Value, vars map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		v, _ := lookupVariable(vars, value.Raw)
		return v
	case language.IntValue:
		n, _ := strconv.Atoi(value.Raw)
		return n
	case language.FloatValue:
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = literal(c.Value, vars)
		}
		return out
	case language.ObjectValue:
		out := make(map[string]any, len(value.Children))
		for _, c := range value.Children {
			out[c.Name] = literal(c.Value, vars)
		}
		return out
	}
	return nil
}

// builtinScalars coerce input values of the specified scalars.
var builtinScalars = map[string]func(any) (any, error){
	"Int":     coerceInt,
	"Float":   coerceFloat,
	"String":  coerceString,
	"Boolean": coerceBoolean,
	"ID":      coerceID,
}

// coerceValue coerces an input value to typ. Custom scalars pass through
// unchanged; the runtime parses them.
func coerceValue(sch *schema.Schema, value any, typ *schema.TypeRef) (any, error) {
	if schema.IsNonNull(typ) {
		if value == nil {
			return nil, errors.New("cannot provide null for non-null type")
		}
		return coerceValue(sch, value, schema.Unwrap(typ))
	}
	if value == nil {
		return nil, nil
	}

	if schema.IsList(typ) {
		item := schema.Unwrap(typ)
		in, ok := value.([]any)
		if !ok {
			v, err := coerceValue(sch, value, item)
			if err != nil {
				return nil, err
			}
			return []any{v}, nil
		}
		out := make([]any, len(in))
		for i, v := range in {
			cv, err := coerceValue(sch, v, item)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}

	name := schema.GetNamedType(typ)
	if coerce, ok := builtinScalars[name]; ok {
		return coerce(value)
	}
	t := sch.Types[name]
	switch {
	case t == nil:
		return value, nil
	case t.Kind == schema.TypeKindEnum:
		s, ok := value.(string)
		if !ok || !t.HasEnumValue(s) {
			return nil, fmt.Errorf("value %v is not a member of enum %s", value, t.Name)
		}
		return s, nil
	case t.Kind == schema.TypeKindInputObject:
		return coerceInputObject(sch, value, t)
	}
	return value, nil
}

func coerceInputObject(sch *schema.Schema, value any, t *schema.Type) (any, error) {
	in, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object for %s, got %T", t.Name, value)
	}
	for name := range in {
		if t.InputField(name) == nil {
			return nil, fmt.Errorf("field %q is not defined by type %s", name, t.Name)
		}
	}
	out := make(map[string]any, len(t.InputFields))
	for _, f := range t.InputFields {
		v, ok := in[f.Name]
		switch {
		case ok:
		case f.DefaultValue != nil:
			v = f.DefaultValue
		case schema.IsNonNull(f.Type):
			return nil, fmt.Errorf("field %s.%s of required type was not provided", t.Name, f.Name)
		default:
			continue
		}
		cv, err := coerceValue(sch, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name, f.Name, err)
		}
		out[f.Name] = cv
	}
	if t.OneOf && len(out) != 1 {
		return nil, fmt.Errorf("exactly one field must be specified for %s", t.Name)
	}
	return out, nil
}

// integral reports the integer form of a whole-number value.
func integral(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float32:
		return integral(float64(v))
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), true
		}
	}
	return 0, false
}

func coerceInt(value any) (any, error) {
	n, ok := integral(value)
	if !ok {
		s, isString := value.(string)
		if !isString {
			return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
		}
		var err error
		if n, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, fmt.Errorf("cannot coerce %q to int", s)
		}
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("int value %d is out of 32-bit range", n)
	}
	return int(n), nil
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, nil
		}
	default:
		if n, ok := integral(v); ok {
			return float64(n), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to float", value, value)
}

func coerceString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case map[string]any, []any:
		return nil, fmt.Errorf("cannot coerce %T to string", value)
	}
	return fmt.Sprint(value), nil
}

func coerceBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to boolean", value, value)
}

func coerceID(value any) (any, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	if n, ok := integral(value); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
}
