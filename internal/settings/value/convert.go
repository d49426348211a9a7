package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// UnsupportedTypeError is returned by FromAny for native values that have no
// Value representation (channels, functions, NaN, ...).
type UnsupportedTypeError struct {
	Path string
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unsupported value of type %s", e.Type)
	}
	return fmt.Sprintf("unsupported value of type %s at %s", e.Type, e.Path)
}

// FromAny converts a native Go value into a Value.
//
// Supported inputs are nil, bool, string, all integer kinds, float32/64,
// json.Number, Value, slices/arrays of supported values and maps with string
// keys. Non-finite floats are rejected.
func FromAny(x any) (Value, error) {
	return fromAny(x, "")
}

func fromAny(x any, path string) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case string:
		return NewString(t), nil
	case bool:
		return NewBool(t), nil
	case int:
		return NewInt(int64(t)), nil
	case int8:
		return NewInt(int64(t)), nil
	case int16:
		return NewInt(int64(t)), nil
	case int32:
		return NewInt(int64(t)), nil
	case int64:
		return NewInt(t), nil
	case uint8:
		return NewInt(int64(t)), nil
	case uint16:
		return NewInt(int64(t)), nil
	case uint32:
		return NewInt(int64(t)), nil
	case float32:
		return floatValue(float64(t), path)
	case float64:
		return floatValue(t, path)
	case json.Number:
		return FromNumber(string(t)), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := fromAny(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return NewList(items...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, member := range t {
			v, err := fromAny(member, joinPath(path, k))
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return NewObject(m), nil
	}
	return fromReflect(reflect.ValueOf(x), path)
}

func fromReflect(rv reflect.Value, path string) (Value, error) {
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return NewFloat(float64(u)), nil
		}
		return NewInt(int64(u)), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return NewList(), nil
		}
		items := make([]Value, rv.Len())
		for i := range items {
			v, err := fromAny(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return NewList(items...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			v, err := fromAny(iter.Value().Interface(), joinPath(path, k))
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return NewObject(m), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return Value{}, nil
		}
		return fromAny(rv.Elem().Interface(), path)
	}
	return Value{}, &UnsupportedTypeError{Path: path, Type: rv.Type().String()}
}

func floatValue(f float64, path string) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, &UnsupportedTypeError{Path: path, Type: fmt.Sprintf("float64(%v)", f)}
	}
	return NewFloat(f), nil
}

// Any converts v into plain Go values: nil, string, bool, int64, float64,
// []any and map[string]any.
func (v Value) Any() any {
	switch v.kind {
	case String:
		return v.s
	case Bool:
		return v.b
	case Int:
		return v.i
	case Float:
		return v.f
	case List:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.obj))
		for k, member := range v.obj {
			out[k] = member.Any()
		}
		return out
	default:
		return nil
	}
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
