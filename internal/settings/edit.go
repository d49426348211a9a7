package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/cfgsync/internal/settings/document"
	"github.com/dshills/cfgsync/internal/settings/layer"
	"github.com/dshills/cfgsync/internal/settings/notify"
	"github.com/dshills/cfgsync/internal/settings/value"
	"github.com/dshills/cfgsync/internal/vfs"
)

// UpdateSetting stores v at a dot path in the target layer and writes the
// file. Missing intermediate objects are created. Keys the edit does not
// touch keep their position in the file.
func (m *Manager) UpdateSetting(ctx context.Context, path string, v value.Value, target layer.Identity) error {
	changes, err := m.updateSetting(ctx, path, v, target)
	m.publish(changes)
	return err
}

func (m *Manager) updateSetting(ctx context.Context, path string, v value.Value, target layer.Identity) ([]notify.Change, error) {
	m.editMu.Lock()
	defer m.editMu.Unlock()

	doc, err := m.editable(path, target)
	if err != nil {
		return nil, err
	}

	prev := doc.Root()
	if err := doc.Set(path, v); err != nil {
		return nil, err
	}
	if _, err := m.store.Persist(ctx, doc); err != nil {
		m.restore(doc, prev)
		return nil, fmt.Errorf("updating %s in %s settings: %w", path, target, err)
	}

	m.logger.Info("setting updated", "key", path, "layer", target)
	return m.commit(), nil
}

// DeleteSetting removes a dot path from the target layer and writes the
// file. It reports whether the path was defined; nothing is written when it
// was not.
func (m *Manager) DeleteSetting(ctx context.Context, path string, target layer.Identity) (bool, error) {
	changes, removed, err := m.deleteSetting(ctx, path, target)
	m.publish(changes)
	return removed, err
}

func (m *Manager) deleteSetting(ctx context.Context, path string, target layer.Identity) ([]notify.Change, bool, error) {
	m.editMu.Lock()
	defer m.editMu.Unlock()

	doc, err := m.editable(path, target)
	if err != nil {
		return nil, false, err
	}

	prev := doc.Root()
	removed, err := doc.Delete(path)
	if err != nil || !removed {
		return nil, false, err
	}
	if _, err := m.store.Persist(ctx, doc); err != nil {
		m.restore(doc, prev)
		return nil, false, fmt.Errorf("deleting %s from %s settings: %w", path, target, err)
	}

	m.logger.Info("setting deleted", "key", path, "layer", target)
	return m.commit(), true, nil
}

// MoveSetting moves a dot path from one layer to another.
//
// Both files are backed up first and the backup locations are returned. The
// target is written before the source; if the source write fails the target
// file is put back to its previous content. Cross-file atomicity is best
// effort.
func (m *Manager) MoveSetting(ctx context.Context, path string, from, to layer.Identity) ([]string, error) {
	changes, backups, err := m.moveSetting(ctx, path, from, to)
	m.publish(changes)
	return backups, err
}

func (m *Manager) moveSetting(ctx context.Context, path string, from, to layer.Identity) ([]notify.Change, []string, error) {
	m.editMu.Lock()
	defer m.editMu.Unlock()

	if from == to {
		return nil, nil, ErrSameLayer
	}
	src, err := m.editable(path, from)
	if err != nil {
		return nil, nil, err
	}
	dst, err := m.editable(path, to)
	if err != nil {
		return nil, nil, err
	}
	v, ok := src.Lookup(path)
	if !ok {
		return nil, nil, fmt.Errorf("%s in %s settings: %w", path, from, ErrSettingNotFound)
	}

	var backups []string
	for _, doc := range []*document.Document{src, dst} {
		if !doc.Exists() {
			continue
		}
		b, err := vfs.CreateBackup(m.fs, doc.Path(), m.backupDir, m.now())
		if err != nil {
			return nil, backups, fmt.Errorf("backing up %s: %w", doc.Path(), err)
		}
		backups = append(backups, b)
	}

	srcRoot, dstRoot := src.Root(), dst.Root()
	dstRaw, dstExisted := dst.Raw(), dst.Exists()

	if err := dst.Set(path, v); err != nil {
		return nil, backups, err
	}
	if _, err := m.store.Persist(ctx, dst); err != nil {
		m.restore(dst, dstRoot)
		return nil, backups, fmt.Errorf("moving %s to %s settings: %w", path, to, err)
	}

	if _, err := src.Delete(path); err != nil {
		return nil, backups, err
	}
	if _, err := m.store.Persist(ctx, src); err != nil {
		m.restore(src, srcRoot)
		err = fmt.Errorf("moving %s out of %s settings: %w", path, from, err)
		if rerr := m.rollback(ctx, dst, dstRaw, dstExisted); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return m.commit(), backups, err
	}

	m.logger.Info("setting moved", "key", path, "from", from, "to", to, "backups", len(backups))
	return m.commit(), backups, nil
}

// editable returns the document of target if path may be written to it.
func (m *Manager) editable(path string, target layer.Identity) (*document.Document, error) {
	if _, err := value.SplitPath(path); err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	if !target.IsJSON() {
		return nil, ErrNotJSONLayer
	}

	m.mu.RLock()
	closed := m.closed
	doc, ok := m.docs[target]
	m.mu.RUnlock()

	switch {
	case closed:
		return nil, ErrClosed
	case !ok:
		return nil, fmt.Errorf("%s: %w", target, ErrLayerNotLoaded)
	case doc.ReadOnly():
		return nil, fmt.Errorf("%s: %w", target, ErrReadOnly)
	case !doc.Parsed():
		return nil, fmt.Errorf("%s: %w", target, ErrInvalidDocument)
	}
	return doc, nil
}

// restore puts back the in-memory root after a failed write.
func (m *Manager) restore(doc *document.Document, root value.Value) {
	if err := doc.Replace(root); err != nil {
		m.logger.Error("restoring settings document", "layer", doc.Identity(), "error", err)
	}
}

// rollback rewrites a file with the bytes it had before a move and reloads
// its document.
func (m *Manager) rollback(ctx context.Context, doc *document.Document, raw []byte, existed bool) error {
	var err error
	if existed {
		err = m.fs.WriteFile(doc.Path(), raw, vfs.DefaultFileMode)
	} else {
		err = m.fs.Remove(doc.Path())
	}
	if err != nil {
		m.logger.Error("rollback failed", "path", doc.Path(), "error", err)
		return &vfs.PathError{Op: "rollback", Path: doc.Path(), Err: err}
	}

	reloaded, err := m.store.Load(ctx, doc.Identity(), doc.Path())
	if err != nil {
		return err
	}
	m.mu.Lock()
	if !m.closed {
		m.docs[doc.Identity()] = reloaded
	}
	m.mu.Unlock()
	m.logger.Warn("rolled back settings file", "path", doc.Path())
	return nil
}

// commit recomputes the merged view after an edit and returns the changes
// to publish once editMu is released.
func (m *Manager) commit() []notify.Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	return m.recomputeLocked()
}
