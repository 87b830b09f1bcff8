package resolver

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"strconv"

	schema "github.com/hanpama/graphserve/internal/schema"
)

// SerializeLeafValue implements executor.Runtime. Registered serializers win;
// builtin scalars follow the GraphQL result coercion rules; enum values must
// be members of the bound schema's enum; other scalars pass through.
func (r *Registry) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	r.mu.RLock()
	fn := r.scalars[typeName]
	sch := r.schema
	r.mu.RUnlock()
	if fn != nil {
		return fn(value)
	}

	switch typeName {
	case "Int":
		return SerializeInt(value)
	case "Float":
		return SerializeFloat(value)
	case "String":
		return SerializeString(value)
	case "Boolean":
		return SerializeBoolean(value)
	case "ID":
		return SerializeID(value)
	}

	if sch != nil {
		if t := sch.Types[typeName]; t != nil && t.Kind == schema.TypeKindEnum {
			return serializeEnum(t, value)
		}
	}
	return value, nil
}

// SerializeInt accepts Go integers and integral floats within the signed
// 32-bit range.
func SerializeInt(value any) (any, error) {
	rv := reflect.ValueOf(value)
	var n int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent value %d: out of 32-bit range", u)
		}
		n = int64(u)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("Int cannot represent non-integer value %v", f)
		}
		if f < math.MinInt32 || f > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent value %v: out of 32-bit range", f)
		}
		n = int64(f)
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	default:
		return nil, fmt.Errorf("Int cannot represent value of type %T", value)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("Int cannot represent value %d: out of 32-bit range", n)
	}
	return int(n), nil
}

// SerializeFloat accepts any Go number.
func SerializeFloat(value any) (any, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("Float cannot represent non-finite value %v", f)
		}
		return f, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("Float cannot represent value of type %T", value)
}

// SerializeString accepts strings, byte slices (base64), fmt.Stringer values,
// numbers and booleans.
func SerializeString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	}
	return nil, fmt.Errorf("String cannot represent value of type %T", value)
}

// SerializeBoolean accepts booleans only.
func SerializeBoolean(value any) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Bool {
		return rv.Bool(), nil
	}
	return nil, fmt.Errorf("Boolean cannot represent value of type %T", value)
}

// SerializeID accepts strings and integers.
func SerializeID(value any) (any, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	if s, ok := value.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return nil, fmt.Errorf("ID cannot represent value of type %T", value)
}

func serializeEnum(t *schema.Type, value any) (any, error) {
	var name string
	switch v := value.(type) {
	case string:
		name = v
	case fmt.Stringer:
		name = v.String()
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.String {
			return nil, fmt.Errorf("Enum %s cannot represent value of type %T", t.Name, value)
		}
		name = rv.String()
	}
	if !t.HasEnumValue(name) {
		return nil, fmt.Errorf("Enum %s cannot represent value %q", t.Name, name)
	}
	return name, nil
}
