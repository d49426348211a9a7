package codec

import (
	"fmt"

	"github.com/dshills/cfgsync/internal/settings/value"
)

// SyntaxError represents malformed JSON input.
type SyntaxError struct {
	// Offset is the byte offset where the error was detected.
	Offset int64
	// Line is the 1-based line of Offset.
	Line int
	// Column is the 1-based byte column of Offset.
	Column int
	// Context is a short excerpt of the input around Offset.
	Context string
	// Message describes the problem.
	Message string
	// Err is the underlying decoder error, if any.
	Err error
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("syntax error at line %d, column %d (offset %d): %s near %q",
			e.Line, e.Column, e.Offset, e.Message, e.Context)
	}
	return fmt.Sprintf("syntax error at line %d, column %d (offset %d): %s",
		e.Line, e.Column, e.Offset, e.Message)
}

// Unwrap returns the underlying error.
func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// SchemaError indicates well-formed JSON whose shape is wrong for a
// settings document.
type SchemaError struct {
	// Path is the dot path of the offending value; empty for the root.
	Path string
	// Expected names the required kind.
	Expected value.Kind
	// Actual is the kind found.
	Actual value.Kind
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	where := "document root"
	if e.Path != "" {
		where = e.Path
	}
	return fmt.Sprintf("%s must be %s, got %s", where, article(e.Expected), e.Actual)
}

func article(k value.Kind) string {
	switch k {
	case value.Object, value.Int:
		return "an " + k.String()
	default:
		return "a " + k.String()
	}
}

// SerializationError is returned when a value cannot be encoded.
type SerializationError struct {
	// Path is the location of the unencodable value.
	Path string
	// Reason describes the problem.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	if e.Path == "" {
		return "cannot serialize value: " + e.Reason
	}
	return fmt.Sprintf("cannot serialize value at %s: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error {
	return e.Err
}
