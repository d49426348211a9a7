package document

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"

	"github.com/charmbracelet/log"

	"github.com/dshills/cfgsync/internal/settings/codec"
	"github.com/dshills/cfgsync/internal/settings/layer"
	"github.com/dshills/cfgsync/internal/settings/value"
	"github.com/dshills/cfgsync/internal/vfs"
)

// Store reads and writes settings documents through a file system.
type Store struct {
	fs     vfs.FS
	logger *log.Logger
	rules  []Rule
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRules replaces the default shape rules.
func WithRules(rules []Rule) Option {
	return func(s *Store) {
		s.rules = rules
	}
}

// NewStore creates a Store backed by fsys.
func NewStore(fsys vfs.FS, opts ...Option) *Store {
	s := &Store{
		fs:     fsys,
		logger: log.New(io.Discard),
		rules:  DefaultRules(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FS returns the underlying file system.
func (s *Store) FS() vfs.FS {
	return s.fs
}

// Load reads the document for id from path.
//
// A missing file yields an empty, parsed document with Exists() == false.
// Malformed content is reported through diagnostics, not as an error; only
// file system failures are returned.
func (s *Store) Load(ctx context.Context, id layer.Identity, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.IsJSON() {
		return nil, ErrNotJSONLayer
	}

	doc := New(id, path, value.EmptyObject())
	doc.readOnly = id.Immutable() || !s.fs.IsWritable(path)

	data, err := s.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("settings file missing", "layer", id, "path", path)
		return doc, nil
	}
	if err != nil {
		return nil, &vfs.PathError{Op: "load", Path: path, Err: err}
	}

	doc.exists = true
	doc.raw = data
	doc.modTime = vfs.ModTime(s.fs, path)

	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	root, err := codec.DecodeDocument(data)
	if err != nil {
		doc.parsed = false
		doc.diagnostics = []Diagnostic{diagnosticFromDecode(err)}
		s.logger.Warn("settings file is invalid", "layer", id, "path", path, "error", err)
		return doc, nil
	}

	doc.root = root
	doc.diagnostics = Validate(root, s.rules)
	if len(doc.diagnostics) > 0 {
		s.logger.Warn("settings file has validation errors", "layer", id, "path", path, "count", len(doc.diagnostics))
	}
	return doc, nil
}

// Persist encodes doc using its stored bytes as the key order reference and
// writes it to disk. On success the document's raw bytes, modification time
// and diagnostics reflect what was written.
func (s *Store) Persist(ctx context.Context, doc *Document) (*Document, error) {
	doc.persistMu.Lock()
	defer doc.persistMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc.mu.RLock()
	readOnly, parsed := doc.readOnly, doc.parsed
	root, original := doc.root, doc.raw
	doc.mu.RUnlock()

	if readOnly {
		return nil, ErrReadOnly
	}
	if !parsed {
		return nil, ErrInvalidDocument
	}

	out, err := codec.Encode(root, original)
	if err != nil {
		return nil, err
	}
	if err := s.fs.WriteFile(doc.path, out, vfs.DefaultFileMode); err != nil {
		return nil, &vfs.PathError{Op: "persist", Path: doc.path, Err: err}
	}

	diags := Validate(root, s.rules)
	modTime := vfs.ModTime(s.fs, doc.path)

	doc.mu.Lock()
	doc.raw = out
	doc.exists = true
	doc.modTime = modTime
	doc.diagnostics = diags
	doc.mu.Unlock()

	s.logger.Debug("settings file written", "layer", doc.identity, "path", doc.path, "bytes", len(out))
	return doc, nil
}
