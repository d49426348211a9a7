package vfs

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
)

// MemFS implements FS in memory. It is used by tests and can simulate
// read-only paths and failing writes.
//
// MemFS is safe for concurrent use.
type MemFS struct {
	mu       sync.RWMutex
	files    map[string]*memFile
	dirs     map[string]bool
	readOnly map[string]bool
	failures map[string]error
	clock    time.Time
}

type memFile struct {
	content []byte
	mode    fs.FileMode
	modTime time.Time
}

// NewMemFS creates a new in-memory file system.
func NewMemFS() *MemFS {
	return &MemFS{
		files:    make(map[string]*memFile),
		dirs:     map[string]bool{string(filepath.Separator): true},
		readOnly: make(map[string]bool),
		failures: make(map[string]error),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Ensure MemFS implements FS.
var _ FS = (*MemFS)(nil)

// ReadFile reads the entire file content.
func (m *MemFS) ReadFile(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path = filepath.Clean(path)
	if err := m.failures[path]; err != nil {
		return nil, &fs.PathError{Op: "read", Path: path, Err: err}
	}
	f, ok := m.files[path]
	if !ok {
		if m.dirs[path] {
			return nil, &fs.PathError{Op: "read", Path: path, Err: syscall.EISDIR}
		}
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}

	// Return a copy to prevent modification
	content := make([]byte, len(f.content))
	copy(content, f.content)
	return content, nil
}

// WriteFile stores data at path, creating parent directories.
func (m *MemFS) WriteFile(path string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if err := m.failures[path]; err != nil {
		return &fs.PathError{Op: "write", Path: path, Err: err}
	}
	if m.readOnly[path] || m.readOnly[filepath.Dir(path)] {
		return &fs.PathError{Op: "write", Path: path, Err: fs.ErrPermission}
	}
	if m.dirs[path] {
		return &fs.PathError{Op: "write", Path: path, Err: syscall.EISDIR}
	}

	m.mkdirAll(filepath.Dir(path))
	content := make([]byte, len(data))
	copy(content, data)
	m.files[path] = &memFile{content: content, mode: perm, modTime: m.tick()}
	return nil
}

// Stat returns file information.
func (m *MemFS) Stat(path string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path = filepath.Clean(path)
	if f, ok := m.files[path]; ok {
		return FileInfo{
			Path:    path,
			Name:    filepath.Base(path),
			Size:    int64(len(f.content)),
			Mode:    f.mode,
			ModTime: f.modTime,
		}, nil
	}
	if m.dirs[path] {
		return FileInfo{
			Path:  path,
			Name:  filepath.Base(path),
			Mode:  fs.ModeDir | DefaultDirMode,
			IsDir: true,
		}, nil
	}
	return FileInfo{}, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

// ReadDir lists the direct children of dir sorted by name.
func (m *MemFS) ReadDir(dir string) ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dir = filepath.Clean(dir)
	if !m.dirs[dir] {
		if _, ok := m.files[dir]; ok {
			return nil, &fs.PathError{Op: "readdir", Path: dir, Err: syscall.ENOTDIR}
		}
		return nil, &fs.PathError{Op: "readdir", Path: dir, Err: fs.ErrNotExist}
	}

	var entries []FileInfo
	for p, f := range m.files {
		if filepath.Dir(p) == dir {
			entries = append(entries, FileInfo{
				Path:    p,
				Name:    filepath.Base(p),
				Size:    int64(len(f.content)),
				Mode:    f.mode,
				ModTime: f.modTime,
			})
		}
	}
	for p := range m.dirs {
		if p != dir && filepath.Dir(p) == dir {
			entries = append(entries, FileInfo{Path: p, Name: filepath.Base(p), Mode: fs.ModeDir | DefaultDirMode, IsDir: true})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Remove removes a file or empty directory.
func (m *MemFS) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if _, ok := m.files[path]; ok {
		if m.readOnly[filepath.Dir(path)] {
			return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
		}
		delete(m.files, path)
		return nil
	}
	if m.dirs[path] {
		prefix := path + string(filepath.Separator)
		for p := range m.files {
			if strings.HasPrefix(p, prefix) {
				return &fs.PathError{Op: "remove", Path: path, Err: syscall.ENOTEMPTY}
			}
		}
		for p := range m.dirs {
			if strings.HasPrefix(p, prefix) {
				return &fs.PathError{Op: "remove", Path: path, Err: syscall.ENOTEMPTY}
			}
		}
		delete(m.dirs, path)
		return nil
	}
	return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
}

// Exists returns true if the path exists.
func (m *MemFS) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path = filepath.Clean(path)
	_, ok := m.files[path]
	return ok || m.dirs[path]
}

// IsWritable reports false for paths marked with SetReadOnly and for files
// inside a read-only directory.
func (m *MemFS) IsWritable(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path = filepath.Clean(path)
	if m.readOnly[path] {
		return false
	}
	if _, ok := m.files[path]; ok {
		return !m.readOnly[filepath.Dir(path)]
	}
	for p := filepath.Dir(path); ; p = filepath.Dir(p) {
		if m.dirs[p] {
			return !m.readOnly[p]
		}
		if p == filepath.Dir(p) {
			return false
		}
	}
}

// AddFile is a test helper that creates a file with content.
func (m *MemFS) AddFile(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	m.mkdirAll(filepath.Dir(path))
	m.files[path] = &memFile{content: []byte(content), mode: DefaultFileMode, modTime: m.tick()}
}

// MkdirAll creates a directory and its parents.
func (m *MemFS) MkdirAll(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAll(filepath.Clean(path))
}

// SetReadOnly marks a file or directory as not writable.
func (m *MemFS) SetReadOnly(path string, readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if readOnly {
		m.readOnly[path] = true
	} else {
		delete(m.readOnly, path)
	}
}

// FailOn makes every read and write of path fail with err. A nil err clears
// the failure.
func (m *MemFS) FailOn(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if err == nil {
		delete(m.failures, path)
	} else {
		m.failures[path] = err
	}
}

// Files returns all file paths in sorted order.
func (m *MemFS) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *MemFS) mkdirAll(dir string) {
	for {
		m.dirs[dir] = true
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// tick advances the internal clock so every write gets a distinct mod time.
func (m *MemFS) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}
