package settings

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cfgsync/internal/settings/layer"
	"github.com/dshills/cfgsync/internal/settings/notify"
	"github.com/dshills/cfgsync/internal/settings/value"
	"github.com/dshills/cfgsync/internal/vfs"
)

const (
	globalDir      = "/home/dev/.claude"
	projectDir     = "/work/app"
	enterprisePath = "/etc/claude-code/managed-settings.json"

	globalFile       = globalDir + "/settings.json"
	globalLocalFile  = globalDir + "/settings.local.json"
	projectFile      = projectDir + "/.claude/settings.json"
	projectLocalFile = projectDir + "/.claude/settings.local.json"
)

func newManager(t *testing.T, fsys *vfs.MemFS, opts ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithFS(fsys),
		WithGlobalDir(globalDir),
		WithProjectDir(projectDir),
		WithEnterprisePath(enterprisePath),
	}
	m := New(append(base, opts...)...)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Load(context.Background()))
	return m
}

type changeLog struct {
	mu      sync.Mutex
	changes []notify.Change
}

func (c *changeLog) observe(ch notify.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, ch)
}

func (c *changeLog) paths(typ notify.ChangeType) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ch := range c.changes {
		if ch.Type == typ {
			out = append(out, ch.Path)
		}
	}
	return out
}

func (c *changeLog) count(typ notify.ChangeType) int {
	return len(c.paths(typ))
}

func mustGet(t *testing.T, m *Manager, key string) value.Value {
	t.Helper()
	s, ok := m.Get(key)
	require.True(t, ok, "setting %s missing", key)
	return s.Value
}

func TestLayersInScope(t *testing.T) {
	m := New(WithFS(vfs.NewMemFS()), WithGlobalDir(globalDir), WithEnterprisePath(""))
	defer m.Close()
	assert.Equal(t, []layer.Identity{layer.GlobalShared, layer.GlobalLocal}, m.Layers())

	m = New(WithFS(vfs.NewMemFS()), WithGlobalDir(globalDir), WithProjectDir(projectDir), WithEnterprisePath(enterprisePath))
	defer m.Close()
	assert.Equal(t, []layer.Identity{
		layer.GlobalShared, layer.GlobalLocal, layer.ProjectShared, layer.ProjectLocal, layer.EnterpriseManaged,
	}, m.Layers())
	assert.Equal(t, projectLocalFile, m.PathOf(layer.ProjectLocal))
	assert.Empty(t, m.PathOf(layer.ProjectMemory))
}

func TestLoadMergesPermissions(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(globalFile, `{"permissions":{"allow":["Bash(git:*)"]}}`)
	fsys.AddFile(projectFile, `{"permissions":{"allow":["Read(*)"]}}`)

	m := newManager(t, fsys)

	s, ok := m.Get("permissions.allow")
	require.True(t, ok)
	assert.True(t, s.Value.Equal(value.NewList(value.NewString("Bash(git:*)"), value.NewString("Read(*)"))))
	require.Len(t, s.Contributions, 2)
	assert.Equal(t, layer.GlobalShared, s.Contributions[0].Layer)
	assert.Equal(t, layer.ProjectShared, s.Contributions[1].Layer)

	tree := m.Hierarchy()
	require.Len(t, tree, 1)
	assert.Equal(t, "permissions", tree[0].Name)
	require.NotNil(t, tree[0].Child("allow"))
	assert.True(t, tree[0].Child("allow").IsLeaf())
}

func TestLoadKeepsInvalidDocumentsVisible(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(globalFile, `{"a": 1,}`)
	fsys.AddFile(projectFile, `{"model": "sonnet", "hooks": []}`)

	m := newManager(t, fsys)

	doc, ok := m.Document(layer.GlobalShared)
	require.True(t, ok)
	assert.True(t, doc.Exists())
	assert.False(t, doc.Parsed())

	assert.True(t, mustGet(t, m, "model").Equal(value.NewString("sonnet")))

	diags := m.Diagnostics()
	require.Len(t, diags, 2)
	assert.Len(t, diags[layer.GlobalShared], 1)
	assert.Equal(t, "hooks", diags[layer.ProjectShared][0].Path)
}

func TestLoadPropagatesFilesystemErrors(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.FailOn(projectFile, errors.New("disk on fire"))

	m := New(WithFS(fsys), WithGlobalDir(globalDir), WithProjectDir(projectDir))
	defer m.Close()

	err := m.Load(context.Background())
	require.Error(t, err)
	var pe *vfs.PathError
	assert.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "project settings")
}

func TestEnterpriseWinsAndIsReadOnly(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(projectLocalFile, `{"model": "haiku"}`)
	fsys.AddFile(enterprisePath, `{"model": "opus"}`)

	m := newManager(t, fsys)

	s, ok := m.Get("model")
	require.True(t, ok)
	assert.True(t, s.Value.Equal(value.NewString("opus")))
	assert.Equal(t, layer.EnterpriseManaged, s.Winner())

	err := m.UpdateSetting(context.Background(), "model", value.NewString("x"), layer.EnterpriseManaged)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestUpdateSettingCreatesNestedKeys(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(projectFile, `{}`)
	m := newManager(t, fsys)

	log := &changeLog{}
	m.Subscribe(log.observe)

	require.NoError(t, m.UpdateSetting(context.Background(), "x.y.z", value.NewBool(true), layer.ProjectShared))

	data, err := fsys.ReadFile(projectFile)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"x\": {\n    \"y\": {\n      \"z\": true\n    }\n  }\n}\n", string(data))

	assert.True(t, mustGet(t, m, "x.y.z").Equal(value.NewBool(true)))
	assert.Equal(t, []string{"x.y.z"}, log.paths(notify.ChangeSet))
}

func TestUpdateSettingKeepsKeyOrder(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(projectFile, `{"zeta": 1, "alpha": {"b": 1, "a": 2}}`)
	m := newManager(t, fsys)
	ctx := context.Background()

	require.NoError(t, m.UpdateSetting(ctx, "alpha.c", value.NewInt(3), layer.ProjectShared))
	require.NoError(t, m.UpdateSetting(ctx, "beta", value.NewString("new"), layer.ProjectShared))

	data, err := fsys.ReadFile(projectFile)
	require.NoError(t, err)
	want := `{
  "beta": "new",
  "zeta": 1,
  "alpha": {
    "c": 3,
    "b": 1,
    "a": 2
  }
}
`
	assert.Equal(t, want, string(data))
}

func TestUpdateSettingCreatesMissingFile(t *testing.T) {
	fsys := vfs.NewMemFS()
	m := newManager(t, fsys)

	require.NoError(t, m.UpdateSetting(context.Background(), "env.DEBUG", value.NewString("1"), layer.ProjectLocal))

	assert.True(t, fsys.Exists(projectLocalFile))
	doc, ok := m.Document(layer.ProjectLocal)
	require.True(t, ok)
	assert.True(t, doc.Exists())
}

func TestUpdateSettingErrors(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(globalLocalFile, `{"broken": `)
	m := New(WithFS(fsys), WithGlobalDir(globalDir), WithEnterprisePath(""))
	defer m.Close()
	require.NoError(t, m.Load(context.Background()))
	ctx := context.Background()

	tests := []struct {
		name   string
		path   string
		target layer.Identity
		want   error
	}{
		{"empty segment", "a..b", layer.GlobalShared, ErrInvalidPath},
		{"empty path", "", layer.GlobalShared, ErrInvalidPath},
		{"memory layer", "a", layer.GlobalMemory, ErrNotJSONLayer},
		{"out of scope", "a", layer.ProjectShared, ErrLayerNotLoaded},
		{"unparsed file", "a", layer.GlobalLocal, ErrInvalidDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.UpdateSetting(ctx, tt.path, value.NewInt(1), tt.target)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateSettingWriteFailureRestoresDocument(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(projectFile, `{"model": "sonnet"}`)
	m := newManager(t, fsys)

	fsys.SetReadOnly(projectFile, true)
	err := m.UpdateSetting(context.Background(), "model", value.NewString("opus"), layer.ProjectShared)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrPermission)

	doc, _ := m.Document(layer.ProjectShared)
	v, _ := doc.Lookup("model")
	assert.True(t, v.Equal(value.NewString("sonnet")))
	assert.True(t, mustGet(t, m, "model").Equal(value.NewString("sonnet")))
}

func TestDeleteSetting(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(globalFile, `{"model": "opus"}`)
	fsys.AddFile(projectFile, `{"model": "sonnet", "env": {"A": "1"}}`)
	m := newManager(t, fsys)
	ctx := context.Background()

	log := &changeLog{}
	m.Subscribe(log.observe)

	removed, err := m.DeleteSetting(ctx, "model", layer.ProjectShared)
	require.NoError(t, err)
	assert.True(t, removed)

	s, ok := m.Get("model")
	require.True(t, ok)
	assert.Equal(t, layer.GlobalShared, s.Winner(), "lower layer shows through")
	assert.Equal(t, []string{"model"}, log.paths(notify.ChangeSet))

	removed, err = m.DeleteSetting(ctx, "env.A", layer.ProjectShared)
	require.NoError(t, err)
	assert.True(t, removed)
	_, ok = m.Get("env.A")
	assert.False(t, ok)
	assert.Equal(t, []string{"env.A"}, log.paths(notify.ChangeDelete))

	before, err := fsys.ReadFile(projectFile)
	require.NoError(t, err)
	removed, err = m.DeleteSetting(ctx, "missing", layer.ProjectShared)
	require.NoError(t, err)
	assert.False(t, removed)
	after, err := fsys.ReadFile(projectFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMoveSetting(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(projectFile, `{"model": "opus", "env": {"A": "1"}}`)
	fsys.AddFile(projectLocalFile, `{"theme": "dark"}`)
	m := newManager(t, fsys)

	backups, err := m.MoveSetting(context.Background(), "env.A", layer.ProjectShared, layer.ProjectLocal)
	require.NoError(t, err)
	assert.Len(t, backups, 2)
	for _, b := range backups {
		assert.True(t, fsys.Exists(b))
	}

	s, ok := m.Get("env.A")
	require.True(t, ok)
	assert.Equal(t, layer.ProjectLocal, s.Winner())
	assert.Len(t, s.Contributions, 1)

	shared, _ := m.Document(layer.ProjectShared)
	_, ok = shared.Lookup("env.A")
	assert.False(t, ok)
}

func TestMoveSettingErrors(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(projectFile, `{"model": "opus"}`)
	m := newManager(t, fsys)
	ctx := context.Background()

	_, err := m.MoveSetting(ctx, "model", layer.ProjectShared, layer.ProjectShared)
	assert.ErrorIs(t, err, ErrSameLayer)

	_, err = m.MoveSetting(ctx, "nope", layer.ProjectShared, layer.ProjectLocal)
	assert.ErrorIs(t, err, ErrSettingNotFound)

	_, err = m.MoveSetting(ctx, "model", layer.ProjectShared, layer.EnterpriseManaged)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestMoveSettingRollsBackTarget(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(projectFile, `{"model": "opus"}`)
	fsys.AddFile(globalFile, `{"theme": "dark"}`)
	m := newManager(t, fsys)

	// The source becomes unwritable after it was loaded.
	fsys.SetReadOnly(projectFile, true)

	_, err := m.MoveSetting(context.Background(), "model", layer.ProjectShared, layer.GlobalShared)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrPermission)

	data, err := fsys.ReadFile(globalFile)
	require.NoError(t, err)
	assert.Equal(t, `{"theme": "dark"}`, string(data))

	s, ok := m.Get("model")
	require.True(t, ok)
	assert.Equal(t, layer.ProjectShared, s.Winner())
	assert.Len(t, s.Contributions, 1)
}

func TestMoveSettingRemovesCreatedTargetOnFailure(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(projectFile, `{"model": "opus"}`)
	m := newManager(t, fsys)

	fsys.SetReadOnly(projectFile, true)
	_, err := m.MoveSetting(context.Background(), "model", layer.ProjectShared, layer.ProjectLocal)
	require.Error(t, err)

	assert.False(t, fsys.Exists(projectLocalFile))
	doc, ok := m.Document(layer.ProjectLocal)
	require.True(t, ok)
	assert.False(t, doc.Exists())
}

func TestObserverMayEditSettings(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(projectFile, `{"model": "sonnet"}`)
	m := newManager(t, fsys)

	ctx := context.Background()
	errs := make(chan error, 1)
	m.SubscribePath("model", func(c notify.Change) {
		if c.Type != notify.ChangeSet {
			return
		}
		errs <- m.UpdateSetting(ctx, "smallFastModel", c.NewValue, layer.ProjectLocal)
	})

	done := make(chan error, 1)
	go func() {
		done <- m.UpdateSetting(ctx, "model", value.NewString("opus"), layer.ProjectShared)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("UpdateSetting blocked on an observer that edits settings")
	}
	require.NoError(t, <-errs)
	assert.True(t, mustGet(t, m, "smallFastModel").Equal(value.NewString("opus")))
}

func TestHierarchyIsACopy(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(projectFile, `{"env": {"A": "1"}, "permissions": {"allow": ["Read(*)"]}}`)
	m := newManager(t, fsys)

	tree := m.Hierarchy()
	require.Len(t, tree, 2)
	leaf := tree[0].Child("A")
	require.NotNil(t, leaf)
	leaf.Setting.Value = value.NewString("changed")
	leaf.Setting.Contributions[0].Layer = layer.EnterpriseManaged
	tree[0].Children = nil

	assert.True(t, mustGet(t, m, "env.A").Equal(value.NewString("1")))
	fresh := m.Hierarchy()
	require.NotNil(t, fresh[0].Child("A"))
	assert.Equal(t, layer.ProjectShared, fresh[0].Child("A").Setting.Contributions[0].Layer)

	s, _ := m.Get("permissions.allow")
	s.Contributions[0].Layer = layer.GlobalShared
	again, _ := m.Get("permissions.allow")
	assert.Equal(t, layer.ProjectShared, again.Contributions[0].Layer)
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	fsys := vfs.NewMemFS()
	m := newManager(t, fsys)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Load(context.Background()), ErrClosed)
	assert.ErrorIs(t, m.UpdateSetting(context.Background(), "a", value.NewInt(1), layer.GlobalShared), ErrClosed)
	assert.ErrorIs(t, m.Watch(), ErrClosed)
}

func TestDiff(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile(globalFile, `{"a": 1, "b": 2, "c": 3}`)
	m := newManager(t, fsys)
	prev := m.Settings()

	fsys.AddFile(globalFile, `{"b": 2, "c": 4, "d": 5}`)
	require.NoError(t, m.Load(context.Background()))

	changes := diff(prev, m.Settings())
	require.Len(t, changes, 3)
	assert.Equal(t, notify.Change{Path: "a", Type: notify.ChangeDelete, OldValue: value.NewInt(1), NewValue: value.NewNull(), Layer: layer.GlobalShared}, changes[0])
	assert.Equal(t, "c", changes[1].Path)
	assert.Equal(t, notify.ChangeSet, changes[1].Type)
	assert.True(t, changes[1].OldValue.Equal(value.NewInt(3)))
	assert.Equal(t, "d", changes[2].Path)
	assert.True(t, changes[2].OldValue.IsNull())
}
