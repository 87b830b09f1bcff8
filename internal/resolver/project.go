package resolver

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Project reads field from a parent value. Maps are indexed by key; structs
// match an exported field by json tag or case-insensitive name, then a
// zero-argument method named after the field. A nil parent projects to nil.
func Project(source any, field string) (any, error) {
	if source == nil {
		return nil, nil
	}
	if m, ok := source.(map[string]any); ok {
		return m[field], nil
	}

	orig := reflect.ValueOf(source)
	rv := orig
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("cannot project field %q from %s", field, rv.Type())
		}
		v := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case reflect.Struct:
		if v, ok := structField(rv, field); ok {
			return v, nil
		}
	}
	if v, ok, err := callMethod(orig, field); ok {
		return v, err
	}
	return nil, fmt.Errorf("cannot project field %q from %T", field, source)
}

func structField(rv reflect.Value, field string) (any, bool) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == field || (name == "" && strings.EqualFold(sf.Name, field)) {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

// callMethod calls a zero-argument method named after field. It reports
// whether such a method exists. Methods may return (T) or (T, error).
func callMethod(rv reflect.Value, field string) (any, bool, error) {
	if !rv.IsValid() {
		return nil, false, nil
	}
	m := rv.MethodByName(exportedName(field))
	if !m.IsValid() || m.Type().NumIn() != 0 {
		return nil, false, nil
	}
	mt := m.Type()
	switch {
	case mt.NumOut() == 1:
		return m.Call(nil)[0].Interface(), true, nil
	case mt.NumOut() == 2 && mt.Out(1) == errorType:
		out := m.Call(nil)
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, true, err
		}
		return out[0].Interface(), true, nil
	}
	return nil, false, nil
}

func exportedName(field string) string {
	r, size := utf8.DecodeRuneInString(field)
	if r == utf8.RuneError {
		return field
	}
	return string(unicode.ToUpper(r)) + field[size:]
}

// Typename is the default type resolver. It reads a "__typename" map key, a
// Typename() string method, or falls back to the Go struct type name.
func Typename(value any) (string, error) {
	if value == nil {
		return "", errors.New("cannot resolve type of null value")
	}
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok && name != "" {
			return name, nil
		}
		return "", errors.New(`cannot resolve type: map value has no "__typename"`)
	}
	if tn, ok := value.(interface{ Typename() string }); ok {
		return tn.Typename(), nil
	}
	rt := reflect.TypeOf(value)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() == reflect.Struct && rt.Name() != "" {
		return rt.Name(), nil
	}
	return "", fmt.Errorf("cannot resolve type of %T", value)
}
