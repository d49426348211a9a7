// Package codec decodes and encodes settings documents while preserving the
// key order of the bytes they were read from.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/dshills/cfgsync/internal/settings/value"
)

// contextRadius is the number of bytes shown on each side of a syntax error.
const contextRadius = 16

// Decode parses data into a Value. Numbers without a fraction or exponent
// become integers; everything else numeric becomes a float.
func Decode(data []byte) (value.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return value.Value{}, syntaxErrorFrom(data, err)
	}

	rest := data[dec.InputOffset():]
	if trimmed := bytes.TrimLeft(rest, " \t\r\n"); len(trimmed) > 0 {
		pos := int64(len(data) - len(trimmed))
		return value.Value{}, newSyntaxError(data, pos, "unexpected data after top-level value", nil)
	}

	v, err := value.FromAny(raw)
	if err != nil {
		return value.Value{}, &SyntaxError{Message: err.Error(), Err: err, Line: 1, Column: 1}
	}
	return v, nil
}

// DecodeDocument parses a settings document. The root must be an object.
func DecodeDocument(data []byte) (value.Value, error) {
	v, err := Decode(data)
	if err != nil {
		return value.Value{}, err
	}
	if !v.IsObject() {
		return value.Value{}, &SchemaError{Expected: value.Object, Actual: v.Kind()}
	}
	return v, nil
}

func syntaxErrorFrom(data []byte, err error) *SyntaxError {
	var se *json.SyntaxError
	switch {
	case errors.As(err, &se):
		pos := se.Offset - 1
		if pos < 0 {
			pos = 0
		}
		return newSyntaxError(data, pos, se.Error(), err)
	case errors.Is(err, io.EOF):
		return newSyntaxError(data, int64(len(data)), "empty input", err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return newSyntaxError(data, int64(len(data)), "unexpected end of input", err)
	default:
		return newSyntaxError(data, 0, err.Error(), err)
	}
}

func newSyntaxError(data []byte, pos int64, msg string, err error) *SyntaxError {
	if pos > int64(len(data)) {
		pos = int64(len(data))
	}
	line, col := position(data, int(pos))
	return &SyntaxError{
		Offset:  pos,
		Line:    line,
		Column:  col,
		Context: excerpt(data, int(pos)),
		Message: msg,
		Err:     err,
	}
}

// position converts a byte offset into 1-based line and column numbers.
func position(data []byte, pos int) (line, col int) {
	line = 1 + bytes.Count(data[:pos], []byte{'\n'})
	lineStart := bytes.LastIndexByte(data[:pos], '\n') + 1
	return line, pos - lineStart + 1
}

// excerpt returns the bytes around pos, clipped to the current line.
func excerpt(data []byte, pos int) string {
	start := max(0, pos-contextRadius)
	end := min(len(data), pos+contextRadius)
	if i := bytes.LastIndexByte(data[start:pos], '\n'); i >= 0 {
		start += i + 1
	}
	if i := bytes.IndexByte(data[pos:end], '\n'); i >= 0 {
		end = pos + i
	}
	return string(data[start:end])
}
