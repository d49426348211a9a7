package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/cfgsync/internal/settings/codec"
)

// Errors returned by document operations.
var (
	// ErrReadOnly indicates a write to an immutable layer or an unwritable file.
	ErrReadOnly = errors.New("settings layer is read-only")

	// ErrInvalidDocument indicates a persist of a document that failed to parse.
	ErrInvalidDocument = errors.New("settings document could not be parsed")

	// ErrNotJSONLayer indicates a load of a layer that is not a settings document.
	ErrNotJSONLayer = errors.New("layer is not a JSON settings document")
)

// DiagnosticKind categorizes a diagnostic.
type DiagnosticKind uint8

const (
	// KindSyntax is malformed JSON.
	KindSyntax DiagnosticKind = iota
	// KindSchema is well-formed JSON with the wrong shape.
	KindSchema
)

// String returns a human-readable name for the kind.
func (k DiagnosticKind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// Diagnostic is one validation problem found while loading a document.
type Diagnostic struct {
	Kind DiagnosticKind
	// Path is the dot path of the offending setting; empty for the whole file.
	Path string
	// Message describes the problem.
	Message string
	// Line and Column locate syntax errors (1-based, 0 if unknown).
	Line   int
	Column int
	// Err is the underlying codec error, if any.
	Err error
}

// String formats the diagnostic for display.
func (d Diagnostic) String() string {
	var sb strings.Builder
	sb.WriteString(d.Kind.String())
	if d.Line > 0 {
		fmt.Fprintf(&sb, " %d:%d", d.Line, d.Column)
	}
	if d.Path != "" {
		sb.WriteString(" ")
		sb.WriteString(d.Path)
	}
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	return sb.String()
}

// diagnosticFromDecode converts a codec failure into a diagnostic.
func diagnosticFromDecode(err error) Diagnostic {
	var syn *codec.SyntaxError
	if errors.As(err, &syn) {
		return Diagnostic{
			Kind:    KindSyntax,
			Message: syn.Message,
			Line:    syn.Line,
			Column:  syn.Column,
			Err:     err,
		}
	}
	var schema *codec.SchemaError
	if errors.As(err, &schema) {
		return Diagnostic{Kind: KindSchema, Path: schema.Path, Message: schema.Error(), Err: err}
	}
	return Diagnostic{Kind: KindSyntax, Message: err.Error(), Err: err}
}
