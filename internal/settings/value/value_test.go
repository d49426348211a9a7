package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Value
		equal bool
	}{
		{"null", NewNull(), Value{}, true},
		{"int vs float", NewInt(1), NewFloat(1), false},
		{"same string", NewString("x"), NewString("x"), true},
		{"list order matters", NewList(NewInt(1), NewInt(2)), NewList(NewInt(2), NewInt(1)), false},
		{
			name:  "object order ignored",
			a:     NewObject(map[string]Value{"a": NewInt(1), "b": NewBool(true)}),
			b:     NewObject(map[string]Value{"b": NewBool(true), "a": NewInt(1)}),
			equal: true,
		},
		{
			name: "object missing member",
			a:    NewObject(map[string]Value{"a": NewInt(1)}),
			b:    NewObject(map[string]Value{"b": NewInt(1)}),
		},
		{"empty list vs empty object", NewList(), EmptyObject(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	inner := map[string]Value{"x": NewInt(1)}
	orig := NewObject(map[string]Value{"inner": NewObject(inner)})

	clone := orig.Clone()
	inner["x"] = NewInt(2)

	got, ok := Lookup(clone, "inner.x")
	require.True(t, ok)
	assert.True(t, got.Equal(NewInt(1)))
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"name":  "x",
		"count": 3,
		"ratio": 0.5,
		"tags":  []string{"a", "b"},
		"num":   json.Number("12"),
		"none":  nil,
	})
	require.NoError(t, err)

	want := NewObject(map[string]Value{
		"name":  NewString("x"),
		"count": NewInt(3),
		"ratio": NewFloat(0.5),
		"tags":  NewList(NewString("a"), NewString("b")),
		"num":   NewInt(12),
		"none":  NewNull(),
	})
	assert.True(t, want.Equal(v), "got %s", v)
}

func TestFromAnyUnsupported(t *testing.T) {
	_, err := FromAny(map[string]any{"ch": make(chan int)})
	var ute *UnsupportedTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "ch", ute.Path)

	_, err = FromAny(math.NaN())
	require.ErrorAs(t, err, &ute)
}

func TestAnyRoundTrip(t *testing.T) {
	v := NewObject(map[string]Value{
		"list": NewList(NewInt(1), NewString("two")),
	})
	back, err := FromAny(v.Any())
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestFromNumber(t *testing.T) {
	assert.Equal(t, Int, FromNumber("42").Kind())
	assert.Equal(t, Float, FromNumber("42.0").Kind())
	assert.Equal(t, Float, FromNumber("1e3").Kind())
	assert.Equal(t, Float, FromNumber("99999999999999999999").Kind())
}

func TestSetPath(t *testing.T) {
	t.Run("creates intermediates", func(t *testing.T) {
		root, err := SetPath(EmptyObject(), "x.y.z", NewBool(true))
		require.NoError(t, err)

		want := NewObject(map[string]Value{
			"x": NewObject(map[string]Value{
				"y": NewObject(map[string]Value{"z": NewBool(true)}),
			}),
		})
		assert.True(t, want.Equal(root), "got %s", root)
	})

	t.Run("replaces scalar intermediate", func(t *testing.T) {
		start := NewObject(map[string]Value{"a": NewInt(1)})
		root, err := SetPath(start, "a.b", NewString("v"))
		require.NoError(t, err)

		got, ok := Lookup(root, "a.b")
		require.True(t, ok)
		assert.True(t, got.Equal(NewString("v")))

		// The original is untouched.
		orig, _ := Lookup(start, "a")
		assert.True(t, orig.Equal(NewInt(1)))
	})

	t.Run("rejects empty segment", func(t *testing.T) {
		_, err := SetPath(EmptyObject(), "a..b", NewNull())
		assert.ErrorIs(t, err, ErrInvalidPath)
	})
}

func TestDeletePath(t *testing.T) {
	root := NewObject(map[string]Value{
		"a": NewObject(map[string]Value{"b": NewInt(1), "c": NewInt(2)}),
	})

	updated, removed := DeletePath(root, "a.b")
	require.True(t, removed)
	_, ok := Lookup(updated, "a.b")
	assert.False(t, ok)
	_, ok = Lookup(updated, "a.c")
	assert.True(t, ok)

	_, removed = DeletePath(root, "a.missing")
	assert.False(t, removed)

	_, removed = DeletePath(root, "a.b.deeper")
	assert.False(t, removed)
}
