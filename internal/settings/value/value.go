// Package value provides the closed value model shared by the codec, the
// document store and the merge engine.
//
// A Value is one of null, string, boolean, integer, float, list or object.
// Integers and floats are distinct kinds: 1 and 1.0 are not equal.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// Null is the zero Kind.
	Null Kind = iota
	String
	Bool
	Int
	Float
	List
	Object
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case String:
		return "string"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case List:
		return "list"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Value is an immutable-by-convention JSON value. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	b    bool
	i    int64
	f    float64
	list []Value
	obj  map[string]Value
}

// NewNull returns the null value.
func NewNull() Value { return Value{} }

// NewString returns a string value.
func NewString(s string) Value { return Value{kind: String, s: s} }

// NewBool returns a boolean value.
func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

// NewInt returns an integer value.
func NewInt(i int64) Value { return Value{kind: Int, i: i} }

// NewFloat returns a float value.
func NewFloat(f float64) Value { return Value{kind: Float, f: f} }

// NewList returns a list value. The slice is not copied.
func NewList(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: List, list: items}
}

// NewObject returns an object value. The map is not copied.
func NewObject(m map[string]Value) Value {
	if m == nil {
		m = make(map[string]Value)
	}
	return Value{kind: Object, obj: m}
}

// EmptyObject returns a fresh object with no members.
func EmptyObject() Value { return NewObject(nil) }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == Null }

// IsObject reports whether v is an object.
func (v Value) IsObject() bool { return v.kind == Object }

// IsList reports whether v is a list.
func (v Value) IsList() bool { return v.kind == List }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == String }

// Bool returns the boolean payload and whether v is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == Bool }

// Int returns the integer payload and whether v is an integer.
func (v Value) Int() (int64, bool) { return v.i, v.kind == Int }

// Float returns the float payload and whether v is a float.
func (v Value) Float() (float64, bool) { return v.f, v.kind == Float }

// List returns the list items and whether v is a list.
// The returned slice must not be modified.
func (v Value) List() ([]Value, bool) { return v.list, v.kind == List }

// Object returns the object members and whether v is an object.
// The returned map must not be modified.
func (v Value) Object() (map[string]Value, bool) { return v.obj, v.kind == Object }

// Len returns the number of items in a list or members in an object.
func (v Value) Len() int {
	switch v.kind {
	case List:
		return len(v.list)
	case Object:
		return len(v.obj)
	default:
		return 0
	}
}

// Keys returns the object member names in sorted order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	return sortedKeys(v.obj)
}

// Member returns the named object member.
func (v Value) Member(name string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	m, ok := v.obj[name]
	return m, ok
}

// Equal reports structural equality. Object member order is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case String:
		return v.s == o.s
	case Bool:
		return v.b == o.b
	case Int:
		return v.i == o.i
	case Float:
		return v.f == o.f
	case List:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := o.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case List:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return Value{kind: List, list: items}
	case Object:
		m := make(map[string]Value, len(v.obj))
		for k, member := range v.obj {
			m[k] = member.Clone()
		}
		return Value{kind: Object, obj: m}
	default:
		return v
	}
}

// String returns a compact debug rendering. It is not the codec output.
func (v Value) String() string {
	var sb strings.Builder
	v.writeDebug(&sb)
	return sb.String()
}

func (v Value) writeDebug(sb *strings.Builder) {
	switch v.kind {
	case Null:
		sb.WriteString("null")
	case String:
		sb.WriteString(strconv.Quote(v.s))
	case Bool:
		sb.WriteString(strconv.FormatBool(v.b))
	case Int:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case Float:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case List:
		sb.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.writeDebug(sb)
		}
		sb.WriteByte(']')
	case Object:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			v.obj[k].writeDebug(sb)
		}
		sb.WriteByte('}')
	}
}
