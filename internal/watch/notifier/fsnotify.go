package notifier

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// FSNotifier implements Notifier with fsnotify.
//
// Directories that do not exist yet are covered by watching their nearest
// existing ancestor; once created they are watched directly and interesting
// files already inside them are reported as created.
type FSNotifier struct {
	handler Handler
	logger  *log.Logger

	// mu serializes Start and Stop. The handler never takes it.
	mu  sync.Mutex
	run *run
}

// run is one Start..Stop cycle. Its maps are only touched by its loop
// goroutine after Start returns.
type run struct {
	watcher  *fsnotify.Watcher
	done     chan struct{}
	finished chan struct{}
	files    map[string]bool
	dirs     map[string]bool
	missing  map[string]bool
}

// Option configures an FSNotifier.
type Option func(*FSNotifier)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(n *FSNotifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// NewFSNotifier creates a stopped notifier that reports to handler.
func NewFSNotifier(handler Handler, opts ...Option) *FSNotifier {
	n := &FSNotifier{
		handler: handler,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Ensure FSNotifier implements Notifier.
var _ Notifier = (*FSNotifier)(nil)

// Start watches dirs and reports events for files. A running watch is
// replaced. If the OS watcher cannot be created the error is logged and
// returned and the notifier stays stopped.
func (n *FSNotifier) Start(dirs, files []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopLocked()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		n.logger.Error("file watching unavailable", "error", err)
		return err
	}

	r := &run{
		watcher:  w,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		files:    make(map[string]bool, len(files)),
		dirs:     make(map[string]bool, len(dirs)),
		missing:  make(map[string]bool),
	}
	for _, f := range files {
		r.files[filepath.Clean(f)] = true
	}
	for _, d := range dirs {
		d = filepath.Clean(d)
		r.dirs[d] = true
		n.watchDir(r, d)
	}

	n.run = r
	go n.loop(r)
	n.logger.Debug("watching settings files", "dirs", len(dirs), "files", len(files))
	return nil
}

// Stop ends the current watch and waits for its goroutine to exit.
func (n *FSNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

func (n *FSNotifier) stopLocked() {
	r := n.run
	n.run = nil
	if r == nil {
		return
	}
	close(r.done)
	<-r.finished
	if err := r.watcher.Close(); err != nil {
		n.logger.Debug("closing watcher", "error", err)
	}
}

// watchDir adds dir, or its nearest existing ancestor when dir is missing.
func (n *FSNotifier) watchDir(r *run, dir string) {
	if isDir(dir) {
		if err := r.watcher.Add(dir); err != nil {
			n.logger.Warn("cannot watch directory", "dir", dir, "error", err)
			return
		}
		delete(r.missing, dir)
		return
	}

	r.missing[dir] = true
	for p := filepath.Dir(dir); ; p = filepath.Dir(p) {
		if isDir(p) {
			if err := r.watcher.Add(p); err != nil {
				n.logger.Warn("cannot watch ancestor directory", "dir", p, "error", err)
			}
			return
		}
		if p == filepath.Dir(p) {
			return
		}
	}
}

func (n *FSNotifier) loop(r *run) {
	defer close(r.finished)

	for {
		select {
		case <-r.done:
			return

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			n.handle(r, ev)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if isFatal(err) {
				n.logger.Error("file watching stopped", "error", err)
				return
			}
			n.logger.Warn("file watch error", "error", err)
		}
	}
}

func (n *FSNotifier) handle(r *run, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	op := convertOp(ev.Op)

	if r.dirs[path] && (op.Has(OpRemove) || op.Has(OpRename)) {
		// The watch died with the directory; fall back to an ancestor.
		n.watchDir(r, path)
	}
	if op.Has(OpCreate) && len(r.missing) > 0 {
		n.promote(r)
	}

	if r.files[path] && op != 0 {
		n.handler(Event{Path: path, Op: op})
	}
}

// promote starts watching missing directories that now exist and reports
// interesting files that appeared with them.
func (n *FSNotifier) promote(r *run) {
	for dir := range r.missing {
		n.watchDir(r, dir)
		if r.missing[dir] {
			continue
		}
		for f := range r.files {
			if filepath.Dir(f) == dir && exists(f) {
				n.handler(Event{Path: f, Op: OpCreate})
			}
		}
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
