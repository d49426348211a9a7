package settings

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/dshills/cfgsync/internal/settings/document"
	"github.com/dshills/cfgsync/internal/settings/layer"
	"github.com/dshills/cfgsync/internal/settings/notify"
	"github.com/dshills/cfgsync/internal/watch/debounce"
	"github.com/dshills/cfgsync/internal/watch/hub"
)

// errUnparsable marks a reload that read a file which did not decode.
var errUnparsable = errors.New("settings file does not parse")

// Watch subscribes every layer file to the hub so that external edits are
// reloaded. Calling Watch again is a no-op.
func (m *Manager) Watch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.watching {
		return nil
	}
	if m.hub == nil {
		opts := []hub.Option{hub.WithLogger(m.logger)}
		if m.quietPeriod > 0 {
			opts = append(opts, hub.WithQuietPeriod(m.quietPeriod))
		}
		m.hub = hub.New(opts...)
		m.ownsHub = true
	}

	var paths []string
	for _, id := range m.Layers() {
		paths = append(paths, m.pathOf(id))
	}
	id, err := m.hub.Subscribe(paths, m.handleChange)
	if err != nil {
		return err
	}
	m.watchID = id
	m.watching = true
	m.logger.Debug("watching settings files", "files", len(paths))
	return nil
}

// handleChange reloads the layer stored at path after the hub reported a
// change.
func (m *Manager) handleChange(path string) {
	id, ok := m.identityOf(path)
	if !ok {
		return
	}
	m.mu.Lock()
	m.cancelRetryLocked(path)
	m.mu.Unlock()
	m.reload(context.Background(), id, path)
}

// retryDelay is how long a failed reload waits before the file is read again.
func (m *Manager) retryDelay() time.Duration {
	if m.quietPeriod > 0 {
		return m.quietPeriod
	}
	return hub.DefaultQuietPeriod
}

// scheduleRetryLocked arranges for path to be reloaded again without a new
// file event, so a file that stays broken still reaches the threshold.
// m.mu must be held.
func (m *Manager) scheduleRetryLocked(id layer.Identity, path string) {
	d, ok := m.retries[path]
	if !ok {
		d = debounce.New()
		m.retries[path] = d
	}
	d.Schedule(m.retryDelay(), func() {
		m.reload(context.Background(), id, path)
	})
}

func (m *Manager) cancelRetriesLocked() {
	for path := range m.retries {
		m.cancelRetryLocked(path)
	}
}

// cancelRetryLocked drops a pending retry of path. m.mu must be held.
func (m *Manager) cancelRetryLocked(path string) {
	if d, ok := m.retries[path]; ok {
		d.Cancel()
		delete(m.retries, path)
	}
}

func (m *Manager) identityOf(path string) (layer.Identity, bool) {
	path = filepath.Clean(path)
	for _, id := range m.Layers() {
		if filepath.Clean(m.pathOf(id)) == path {
			return id, true
		}
	}
	return 0, false
}

// reload replaces the document of id with a fresh read.
//
// A read failure or a file that no longer parses is counted. Below the
// threshold the previous document stays in place, which hides the brief
// window in which an editor has truncated a file it is saving, and the read
// is retried after the quiet period. At the threshold the failure is
// reported and an unparsable document replaces the old one so its
// diagnostics become visible.
func (m *Manager) reload(ctx context.Context, id layer.Identity, path string) {
	changes, rerr := m.reloadDocument(ctx, id, path)
	m.publish(changes)
	if rerr != nil && m.onError != nil {
		m.onError(rerr)
	}
}

func (m *Manager) reloadDocument(ctx context.Context, id layer.Identity, path string) ([]notify.Change, *ReloadError) {
	m.editMu.Lock()
	defer m.editMu.Unlock()

	if m.isClosed() {
		return nil, nil
	}

	doc, err := m.store.Load(ctx, id, path)
	if err == nil && !doc.Parsed() {
		err = errUnparsable
		if diags := doc.Diagnostics(); len(diags) > 0 && diags[0].Err != nil {
			err = diags[0].Err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil
	}

	if err != nil {
		m.failures[path]++
		count := m.failures[path]
		if count < m.failureThreshold {
			m.scheduleRetryLocked(id, path)
			m.logger.Debug("settings reload failed", "layer", id, "path", path, "attempt", count, "error", err)
			return nil, nil
		}

		m.cancelRetryLocked(path)
		m.logger.Error("settings reload failed", "layer", id, "path", path, "failures", count, "error", err)
		var changes []notify.Change
		if doc != nil {
			m.docs[id] = doc
			changes = append(m.recomputeLocked(), reloadChange(id, path))
		}
		return changes, &ReloadError{Path: path, Failures: count, Err: err}
	}

	delete(m.failures, path)
	m.cancelRetryLocked(path)
	if cur, ok := m.docs[id]; ok && sameContent(cur, doc) {
		return nil, nil
	}
	m.docs[id] = doc
	changes := m.recomputeLocked()

	m.logger.Info("settings reloaded", "layer", id, "path", path, "changes", len(changes))
	return append(changes, reloadChange(id, path)), nil
}

// sameContent reports whether a fresh read matches what the manager holds,
// as after the manager's own writes.
func sameContent(cur, next *document.Document) bool {
	return cur.Parsed() && cur.Exists() == next.Exists() && bytes.Equal(cur.Raw(), next.Raw())
}

func reloadChange(id layer.Identity, path string) notify.Change {
	return notify.Change{Type: notify.ChangeReload, Layer: id, File: path}
}
