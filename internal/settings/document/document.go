// Package document loads and persists individual settings layers.
//
// A Document keeps the bytes it was read from so that a later write can
// reproduce the original key order. Only Store.Persist replaces those bytes.
package document

import (
	"sync"
	"time"

	"github.com/dshills/cfgsync/internal/settings/layer"
	"github.com/dshills/cfgsync/internal/settings/value"
)

// Document is one loaded settings layer.
type Document struct {
	// persistMu orders Persist calls for this document.
	persistMu sync.Mutex

	mu          sync.RWMutex
	identity    layer.Identity
	path        string
	root        value.Value
	raw         []byte
	parsed      bool
	diagnostics []Diagnostic
	modTime     time.Time
	readOnly    bool
	exists      bool
}

// New creates an in-memory document that has not been read from disk.
func New(id layer.Identity, path string, root value.Value) *Document {
	if !root.IsObject() {
		root = value.EmptyObject()
	}
	return &Document{
		identity: id,
		path:     path,
		root:     root,
		parsed:   true,
		readOnly: id.Immutable(),
	}
}

// Identity returns the layer this document belongs to.
func (d *Document) Identity() layer.Identity { return d.identity }

// Path returns the file location.
func (d *Document) Path() string { return d.path }

// Root returns the decoded object. It is an empty object for documents that
// failed to parse.
func (d *Document) Root() value.Value {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root
}

// Raw returns a copy of the bytes last read from or written to disk.
func (d *Document) Raw() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]byte, len(d.raw))
	copy(out, d.raw)
	return out
}

// Valid reports whether the document has no diagnostics.
func (d *Document) Valid() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.diagnostics) == 0
}

// Parsed reports whether the file decoded to an object. Documents that did
// not parse contribute nothing to the merged view and cannot be persisted.
func (d *Document) Parsed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.parsed
}

// Diagnostics returns the validation problems found on load or persist.
func (d *Document) Diagnostics() []Diagnostic {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Diagnostic, len(d.diagnostics))
	copy(out, d.diagnostics)
	return out
}

// ModTime returns the last-known modification time on disk.
func (d *Document) ModTime() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.modTime
}

// ReadOnly reports whether the document may not be persisted.
func (d *Document) ReadOnly() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readOnly
}

// Exists reports whether the file existed when last loaded or persisted.
func (d *Document) Exists() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.exists
}

// Lookup returns the value at a dot path.
func (d *Document) Lookup(path string) (value.Value, bool) {
	return value.Lookup(d.Root(), path)
}

// Set stores v at a dot path, creating intermediate objects. The change is
// in memory until the document is persisted.
func (d *Document) Set(path string, v value.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.readOnly {
		return ErrReadOnly
	}
	root, err := value.SetPath(d.root, path, v)
	if err != nil {
		return err
	}
	d.root = root
	return nil
}

// Delete removes the setting at a dot path and reports whether it existed.
func (d *Document) Delete(path string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.readOnly {
		return false, ErrReadOnly
	}
	if _, err := value.SplitPath(path); err != nil {
		return false, err
	}
	root, removed := value.DeletePath(d.root, path)
	d.root = root
	return removed, nil
}

// Replace swaps the whole root object.
func (d *Document) Replace(root value.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.readOnly {
		return ErrReadOnly
	}
	if !root.IsObject() {
		root = value.EmptyObject()
	}
	d.root = root
	return nil
}
