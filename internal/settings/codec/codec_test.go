package codec

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cfgsync/internal/settings/value"
)

func TestDecodeKinds(t *testing.T) {
	v, err := Decode([]byte(`{"i": 1, "f": 1.0, "e": 2e3, "s": "x", "b": false, "n": null, "l": [1, "a"]}`))
	require.NoError(t, err)

	kinds := map[string]value.Kind{
		"i": value.Int,
		"f": value.Float,
		"e": value.Float,
		"s": value.String,
		"b": value.Bool,
		"n": value.Null,
		"l": value.List,
	}
	for key, want := range kinds {
		got, ok := v.Member(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got.Kind(), key)
	}
}

func TestDecodeSyntaxErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		line    int
		context string
	}{
		{name: "trailing comma", input: `{"a": 1,}`, line: 1, context: "}"},
		{name: "unterminated", input: "{\n  \"a\": 1", line: 2},
		{name: "empty", input: "", line: 1},
		{name: "trailing data", input: `{} {}`, line: 1, context: "{}"},
		{name: "second line", input: "{\n  \"a\" 1\n}", line: 2, context: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.line, se.Line)
			assert.GreaterOrEqual(t, se.Offset, int64(0))
			assert.LessOrEqual(t, se.Offset, int64(len(tt.input)))
			if tt.context != "" {
				assert.Contains(t, se.Context, tt.context)
			}
		})
	}
}

func TestDecodeDocumentRequiresObject(t *testing.T) {
	_, err := DecodeDocument([]byte(`[1, 2]`))
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, value.List, se.Actual)
	assert.Contains(t, se.Error(), "must be an object")

	_, err = DecodeDocument([]byte(`{"a": }`))
	var syn *SyntaxError
	assert.ErrorAs(t, err, &syn)
}

func TestEncodeFormatting(t *testing.T) {
	v, err := Decode([]byte(`{"b": [], "a": {"x": 1.5, "y": [true, null]}, "c": {}}`))
	require.NoError(t, err)

	out, err := Encode(v, nil)
	require.NoError(t, err)

	want := `{
  "a": {
    "x": 1.5,
    "y": [
      true,
      null
    ]
  },
  "b": [],
  "c": {}
}
`
	assert.Equal(t, want, string(out))
}

func TestEncodePreservesOriginalOrder(t *testing.T) {
	original := []byte(`{"zeta": 1, "alpha": {"second": 2, "first": 1}, "mid": "m"}`)
	v, err := Decode(original)
	require.NoError(t, err)

	out, err := Encode(v, original)
	require.NoError(t, err)

	want := `{
  "zeta": 1,
  "alpha": {
    "second": 2,
    "first": 1
  },
  "mid": "m"
}
`
	assert.Equal(t, want, string(out))
}

func TestEncodeNewKeysFirst(t *testing.T) {
	original := []byte(`{"b": 1}`)
	v, err := Decode(original)
	require.NoError(t, err)

	v, err = value.SetPath(v, "a", value.NewInt(2))
	require.NoError(t, err)

	out, err := Encode(v, original)
	require.NoError(t, err)

	assert.Equal(t, "{\n  \"a\": 2,\n  \"b\": 1\n}\n", string(out))
	assert.Less(t, strings.Index(string(out), `"a"`), strings.Index(string(out), `"b"`))
}

func TestEncodeDropsRemovedKeys(t *testing.T) {
	original := []byte(`{"c": 1, "b": 2, "a": 3}`)
	v, err := Decode(original)
	require.NoError(t, err)

	v, removed := value.DeletePath(v, "b")
	require.True(t, removed)
	v, err = value.SetPath(v, "d", value.NewBool(true))
	require.NoError(t, err)

	out, err := Encode(v, original)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"d\": true,\n  \"c\": 1,\n  \"a\": 3\n}\n", string(out))
}

func TestEncodeNestedCreation(t *testing.T) {
	v, err := value.SetPath(value.EmptyObject(), "x.y.z", value.NewBool(true))
	require.NoError(t, err)

	out, err := Encode(v, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"x\": {\n    \"y\": {\n      \"z\": true\n    }\n  }\n}\n", string(out))
}

func TestEncodeEscaping(t *testing.T) {
	v := value.NewString("q\" b\\ n\n r\r t\t b\b f\f nul\x00 esc\x1b é")
	out, err := Encode(v, nil)
	require.NoError(t, err)

	assert.Equal(t, `"q\" b\\ n\n r\r t\t b\b f\f nul\u0000 esc\u001b é"`+"\n", string(out))

	back, err := Decode(out)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestEncodeInvalidUTF8(t *testing.T) {
	out, err := Encode(value.NewString("a\xffb"), nil)
	require.NoError(t, err)
	assert.Equal(t, "\"a�b\"\n", string(out))
}

func TestEncodeFloats(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{-0.5, "-0.5"},
		{1e21, "1e+21"},
		{1e-7, "1e-7"},
		{123456789, "123456789.0"},
	}
	for _, tt := range tests {
		out, err := Encode(value.NewFloat(tt.in), nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want+"\n", string(out))

		back, err := Decode(out)
		require.NoError(t, err)
		assert.Equal(t, value.Float, back.Kind(), tt.want)
	}
}

func TestEncodeRejectsNonFinite(t *testing.T) {
	v := value.NewObject(map[string]value.Value{
		"a": value.NewList(value.NewFloat(math.Inf(1))),
	})
	_, err := Encode(v, nil)
	var se *SerializationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "a[0]", se.Path)

	_, err = EncodeAny(map[string]any{"f": func() {}}, nil)
	assert.ErrorAs(t, err, &se)
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"permissions": {"allow": ["Bash(git:*)", "Read(*)"], "deny": []}, "env": {"A": "1"}}`,
		`{"n": [1, 2.5, -3, 1e100, {"k": null}], "s": "line\nbreak", "t": true}`,
		`{"z": {"y": {"x": {"w": [[], [[]], {}]}}}}`,
		`{"a.b": {"z": 1, "y": 2}, "a": {"b": {"y": 1, "z": 2}}}`,
	}
	for _, in := range inputs {
		v, err := Decode([]byte(in))
		require.NoError(t, err, in)

		out, err := Encode(v, []byte(in))
		require.NoError(t, err, in)

		back, err := Decode(out)
		require.NoError(t, err, string(out))
		assert.True(t, v.Equal(back), "round trip of %s produced %s", in, out)

		assert.Equal(t, ScanKeyOrder([]byte(in)), ScanKeyOrder(out))
	}
}

func TestScanKeyOrder(t *testing.T) {
	order := ScanKeyOrder([]byte(`{"b": {"y": 1, "x": 2}, "a": [{"q": 1, "p": 2}]}`))

	assert.Equal(t, []string{"b", "a"}, order[""])
	assert.Equal(t, []string{"y", "x"}, order["b"])
	assert.Equal(t, []string{"q", "p"}, order["a[0]"])

	assert.Empty(t, ScanKeyOrder([]byte(`{"broken": `)))
}

func TestScanKeyOrderDottedKeys(t *testing.T) {
	in := []byte(`{"a.b": {"z": 1, "y": 2}, "a": {"b": {"y": 1, "z": 2}}, "c[0]": {"q": 1, "p": 2}, "c": [{"p": 1, "q": 2}]}`)
	order := ScanKeyOrder(in)

	assert.Equal(t, []string{"z", "y"}, order[`a\.b`])
	assert.Equal(t, []string{"y", "z"}, order["a.b"])
	assert.Equal(t, []string{"q", "p"}, order[`c\[0]`])
	assert.Equal(t, []string{"p", "q"}, order["c[0]"])

	v, err := Decode(in)
	require.NoError(t, err)
	out, err := Encode(v, in)
	require.NoError(t, err)
	assert.Equal(t, `{
  "a.b": {
    "z": 1,
    "y": 2
  },
  "a": {
    "b": {
      "y": 1,
      "z": 2
    }
  },
  "c[0]": {
    "q": 1,
    "p": 2
  },
  "c": [
    {
      "p": 1,
      "q": 2
    }
  ]
}
`, string(out))
}
