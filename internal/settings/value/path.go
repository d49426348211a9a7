package value

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned for dot paths with empty segments.
var ErrInvalidPath = errors.New("invalid setting path")

// SplitPath splits a dot-separated path into its segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, ErrInvalidPath
		}
	}
	return parts, nil
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// JoinPath joins a parent dot path and a child key.
func JoinPath(prefix, key string) string { return joinPath(prefix, key) }

// FromNumber converts a JSON number literal into an Int or Float Value.
// Literals with a fraction or exponent are floats; integers that overflow
// int64 fall back to float.
func FromNumber(lit string) Value {
	if !strings.ContainsAny(lit, ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return NewInt(i)
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		// Overflow saturates to the largest finite float.
		if strings.HasPrefix(lit, "-") {
			return NewFloat(-math.MaxFloat64)
		}
		return NewFloat(math.MaxFloat64)
	}
	return NewFloat(f)
}

// Lookup returns the value at a dot path inside root.
func Lookup(root Value, path string) (Value, bool) {
	parts, err := SplitPath(path)
	if err != nil {
		return Value{}, false
	}
	current := root
	for _, part := range parts {
		next, ok := current.Member(part)
		if !ok {
			return Value{}, false
		}
		current = next
	}
	return current, true
}

// SetPath returns a copy of root with v stored at path. Missing intermediate
// objects are created and non-object intermediates are replaced. A non-object
// root is treated as an empty object. Objects along the path are copied;
// untouched siblings are shared.
func SetPath(root Value, path string, v Value) (Value, error) {
	parts, err := SplitPath(path)
	if err != nil {
		return Value{}, err
	}
	return setIn(root, parts, v), nil
}

func setIn(node Value, parts []string, v Value) Value {
	m := shallowMembers(node)
	if len(parts) == 1 {
		m[parts[0]] = v
		return NewObject(m)
	}
	child := m[parts[0]]
	m[parts[0]] = setIn(child, parts[1:], v)
	return NewObject(m)
}

// DeletePath returns a copy of root without the member at path and reports
// whether anything was removed. Emptied parents are kept.
func DeletePath(root Value, path string) (Value, bool) {
	parts, err := SplitPath(path)
	if err != nil {
		return root, false
	}
	return deleteIn(root, parts)
}

func deleteIn(node Value, parts []string) (Value, bool) {
	if node.kind != Object {
		return node, false
	}
	child, ok := node.obj[parts[0]]
	if !ok {
		return node, false
	}
	m := shallowMembers(node)
	if len(parts) == 1 {
		delete(m, parts[0])
		return NewObject(m), true
	}
	updated, removed := deleteIn(child, parts[1:])
	if !removed {
		return node, false
	}
	m[parts[0]] = updated
	return NewObject(m), true
}

func shallowMembers(node Value) map[string]Value {
	m := make(map[string]Value, node.Len()+1)
	if node.kind == Object {
		for k, member := range node.obj {
			m[k] = member
		}
	}
	return m
}
