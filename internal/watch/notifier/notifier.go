// Package notifier turns operating system file notifications into events for
// a fixed set of interesting files.
package notifier

import "strings"

// Op is a bit set of file system operations.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
	// OpChmod indicates file permissions were changed.
	OpChmod
)

var opNames = []struct {
	op   Op
	name string
}{
	{OpCreate, "CREATE"},
	{OpWrite, "WRITE"},
	{OpRemove, "REMOVE"},
	{OpRename, "RENAME"},
	{OpChmod, "CHMOD"},
}

// String returns the set operations joined by "|".
func (op Op) String() string {
	var parts []string
	for _, n := range opNames {
		if op.Has(n.op) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(parts, "|")
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a change to one interesting file.
type Event struct {
	// Path is the cleaned absolute path of the file.
	Path string
	// Op is the operation that occurred.
	Op Op
}

// Handler receives events. It is called from the notifier's goroutine and
// should not block for long.
type Handler func(Event)

// Notifier watches directories and reports changes to interesting files.
type Notifier interface {
	// Start begins watching dirs and reports events for files only.
	// A running notifier is restarted with the new sets.
	Start(dirs, files []string) error

	// Stop releases all OS resources. It is idempotent.
	Stop()
}
