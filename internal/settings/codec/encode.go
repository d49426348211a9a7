package codec

import (
	"bytes"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/dshills/cfgsync/internal/settings/value"
)

const indentUnit = "  "

// Encode renders v as indented JSON with a trailing newline.
//
// Object members are ordered using original as a reference: members that are
// absent from original come first in sorted order, followed by the surviving
// members in their original order. Objects original does not describe are
// written with sorted keys. original may be nil.
func Encode(v value.Value, original []byte) ([]byte, error) {
	e := &encoder{order: ScanKeyOrder(original)}
	if err := e.encode(v, "", 0); err != nil {
		return nil, err
	}
	e.buf.WriteByte('\n')
	return e.buf.Bytes(), nil
}

// EncodeAny converts a native Go value with value.FromAny and encodes it.
func EncodeAny(x any, original []byte) ([]byte, error) {
	v, err := value.FromAny(x)
	if err != nil {
		return nil, &SerializationError{Reason: err.Error(), Err: err}
	}
	return Encode(v, original)
}

type encoder struct {
	buf   bytes.Buffer
	order KeyOrder
}

func (e *encoder) encode(v value.Value, path string, depth int) error {
	switch v.Kind() {
	case value.Null:
		e.buf.WriteString("null")
	case value.Bool:
		b, _ := v.Bool()
		e.buf.WriteString(strconv.FormatBool(b))
	case value.Int:
		i, _ := v.Int()
		e.buf.WriteString(strconv.FormatInt(i, 10))
	case value.Float:
		f, _ := v.Float()
		s, err := formatFloat(f)
		if err != nil {
			return &SerializationError{Path: path, Reason: err.Error()}
		}
		e.buf.WriteString(s)
	case value.String:
		s, _ := v.Str()
		writeString(&e.buf, s)
	case value.List:
		items, _ := v.List()
		return e.encodeList(items, path, depth)
	case value.Object:
		members, _ := v.Object()
		return e.encodeObject(members, path, depth)
	default:
		return &SerializationError{Path: path, Reason: "unknown kind " + v.Kind().String()}
	}
	return nil
}

func (e *encoder) encodeList(items []value.Value, path string, depth int) error {
	if len(items) == 0 {
		e.buf.WriteString("[]")
		return nil
	}
	e.buf.WriteString("[\n")
	for i, item := range items {
		e.indent(depth + 1)
		if err := e.encode(item, indexPath(path, i), depth+1); err != nil {
			return err
		}
		if i < len(items)-1 {
			e.buf.WriteByte(',')
		}
		e.buf.WriteByte('\n')
	}
	e.indent(depth)
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) encodeObject(members map[string]value.Value, path string, depth int) error {
	if len(members) == 0 {
		e.buf.WriteString("{}")
		return nil
	}
	keys := e.orderedKeys(members, path)
	e.buf.WriteString("{\n")
	for i, k := range keys {
		e.indent(depth + 1)
		writeString(&e.buf, k)
		e.buf.WriteString(": ")
		if err := e.encode(members[k], childPath(path, k), depth+1); err != nil {
			return err
		}
		if i < len(keys)-1 {
			e.buf.WriteByte(',')
		}
		e.buf.WriteByte('\n')
	}
	e.indent(depth)
	e.buf.WriteByte('}')
	return nil
}

// orderedKeys returns new keys sorted, then the original keys still present.
func (e *encoder) orderedKeys(members map[string]value.Value, path string) []string {
	original, known := e.order[path]
	if !known {
		keys := make([]string, 0, len(members))
		for k := range members {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}

	inOriginal := make(map[string]bool, len(original))
	for _, k := range original {
		inOriginal[k] = true
	}

	var added []string
	for k := range members {
		if !inOriginal[k] {
			added = append(added, k)
		}
	}
	sort.Strings(added)

	keys := make([]string, 0, len(members))
	keys = append(keys, added...)
	for _, k := range original {
		if _, ok := members[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func (e *encoder) indent(depth int) {
	for range depth {
		e.buf.WriteString(indentUnit)
	}
}

type floatError string

func (f floatError) Error() string { return string(f) }

// formatFloat writes f the way encoding/json does and guarantees the result
// reads back as a float.
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) {
		return "", floatError("NaN is not representable in JSON")
	}
	if math.IsInf(f, 0) {
		return "", floatError("infinity is not representable in JSON")
	}

	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b := strconv.AppendFloat(nil, f, format, -1, 64)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	if !bytes.ContainsAny(b, ".eE") {
		b = append(b, '.', '0')
	}
	return string(b), nil
}

// writeString writes s as a quoted JSON string. Quote, backslash and the
// control characters below U+0020 are escaped; invalid UTF-8 is replaced
// with U+FFFD.
func writeString(buf *bytes.Buffer, s string) {
	const hex = "0123456789abcdef"
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				buf.WriteString(`\"`)
			case '\\':
				buf.WriteString(`\\`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			default:
				if c < 0x20 {
					buf.WriteString(`\u00`)
					buf.WriteByte(hex[c>>4])
					buf.WriteByte(hex[c&0xF])
				} else {
					buf.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
		} else {
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}
