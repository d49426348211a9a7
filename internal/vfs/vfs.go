// Package vfs abstracts the file operations the settings engine needs.
//
// OSFS works against the real file system and writes atomically through a
// temporary file. MemFS keeps everything in memory for tests.
package vfs

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"time"
)

// DefaultFileMode is used for newly created settings files.
const DefaultFileMode fs.FileMode = 0o644

// DefaultDirMode is used for directories created on demand.
const DefaultDirMode fs.FileMode = 0o755

// FS is the file system collaborator used by the document store.
type FS interface {
	// ReadFile reads the entire file content.
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces the file content, creating missing parent
	// directories. Readers never observe a partially written file.
	WriteFile(path string, data []byte, perm fs.FileMode) error

	// Stat returns file information.
	Stat(path string) (FileInfo, error)

	// ReadDir lists a directory.
	ReadDir(path string) ([]FileInfo, error)

	// Remove removes a file or empty directory.
	Remove(path string) error

	// Exists reports whether path exists.
	Exists(path string) bool

	// IsWritable reports whether path could be written by this process.
	// For a missing file the nearest existing ancestor directory decides.
	IsWritable(path string) bool
}

// FileInfo describes a file or directory.
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
	IsDir   bool
}

// PathError records a failed file operation.
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

// ModTime returns the modification time of path, or the zero time if it
// cannot be determined.
func ModTime(fsys FS, path string) time.Time {
	info, err := fsys.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime
}

// Copy duplicates src to dst.
func Copy(fsys FS, src, dst string) error {
	data, err := fsys.ReadFile(src)
	if err != nil {
		return &PathError{Op: "copy", Path: src, Err: err}
	}
	mode := DefaultFileMode
	if info, err := fsys.Stat(src); err == nil && info.Mode.Perm() != 0 {
		mode = info.Mode.Perm()
	}
	if err := fsys.WriteFile(dst, data, mode); err != nil {
		return &PathError{Op: "copy", Path: dst, Err: err}
	}
	return nil
}

// CreateBackup copies path into dir under a timestamped name and returns the
// backup location. dir defaults to the file's own directory.
func CreateBackup(fsys FS, path, dir string, now time.Time) (string, error) {
	if dir == "" {
		dir = filepath.Dir(path)
	}
	name := fmt.Sprintf("%s.%s.bak", filepath.Base(path), now.UTC().Format("20060102T150405.000000000"))
	dst := filepath.Join(dir, name)
	if err := Copy(fsys, path, dst); err != nil {
		return "", err
	}
	return dst, nil
}
