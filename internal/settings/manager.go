// Package settings orchestrates the layered settings engine.
//
// A Manager loads every settings layer in scope, keeps the merged view
// current as files change on disk, and writes edits back to the layer the
// caller names. Observers are told about every effective change.
package settings

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/cfgsync/internal/settings/document"
	"github.com/dshills/cfgsync/internal/settings/layer"
	"github.com/dshills/cfgsync/internal/settings/merge"
	"github.com/dshills/cfgsync/internal/settings/notify"
	"github.com/dshills/cfgsync/internal/settings/value"
	"github.com/dshills/cfgsync/internal/vfs"
	"github.com/dshills/cfgsync/internal/watch/debounce"
	"github.com/dshills/cfgsync/internal/watch/hub"
)

// DefaultFailureThreshold is the number of consecutive reload failures
// tolerated before the error is reported.
const DefaultFailureThreshold = 3

// ErrorHandler receives reload failures that reached the threshold.
type ErrorHandler func(err *ReloadError)

// Manager provides access to the merged settings of one global scope and at
// most one project.
type Manager struct {
	// editMu serializes edits and reloads so that each one observes the
	// documents left by the previous one.
	editMu sync.Mutex

	mu        sync.RWMutex
	docs      map[layer.Identity]*document.Document
	settings  []merge.EffectiveSetting
	failures  map[string]int
	retries   map[string]*debounce.Debouncer
	watchID   hub.SubscriptionID
	watching  bool
	closed    bool

	fs       vfs.FS
	store    *document.Store
	logger   *log.Logger
	notifier *notify.Notifier
	hub      *hub.Hub
	ownsHub  bool

	paths            layer.Paths
	globalDir        string
	projectDir       string
	backupDir        string
	quietPeriod      time.Duration
	failureThreshold int
	onError          ErrorHandler
	rules            []document.Rule
	now              func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithFS sets the file system. The default is the real one.
func WithFS(fsys vfs.FS) Option {
	return func(m *Manager) {
		if fsys != nil {
			m.fs = fsys
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithGlobalDir sets the directory holding the global layers. An empty
// directory leaves the global layers out of scope.
func WithGlobalDir(dir string) Option {
	return func(m *Manager) {
		m.globalDir = dir
	}
}

// WithProjectDir sets the project root. Project layers are only loaded when
// a project is set.
func WithProjectDir(dir string) Option {
	return func(m *Manager) {
		m.projectDir = dir
	}
}

// WithEnterprisePath overrides the managed settings location. An empty path
// leaves the enterprise layer out of scope.
func WithEnterprisePath(path string) Option {
	return func(m *Manager) {
		m.paths.Enterprise = path
	}
}

// WithPaths replaces the file naming rules.
func WithPaths(p layer.Paths) Option {
	return func(m *Manager) {
		m.paths = p
	}
}

// WithHub shares an existing hub. The manager does not stop a shared hub.
func WithHub(h *hub.Hub) Option {
	return func(m *Manager) {
		m.hub = h
	}
}

// WithQuietPeriod sets the debounce delay of the hub the manager creates and
// the delay before a failed reload is retried.
func WithQuietPeriod(d time.Duration) Option {
	return func(m *Manager) {
		m.quietPeriod = d
	}
}

// WithFailureThreshold sets how many consecutive reload failures of one file
// are tolerated before the error is reported.
func WithFailureThreshold(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.failureThreshold = n
		}
	}
}

// WithBackupDir sets where MoveSetting places backups. The default is next
// to each file.
func WithBackupDir(dir string) Option {
	return func(m *Manager) {
		m.backupDir = dir
	}
}

// WithRules replaces the structural validation rules.
func WithRules(rules []document.Rule) Option {
	return func(m *Manager) {
		m.rules = rules
	}
}

// OnError registers a handler for reload failures that reached the
// threshold.
func OnError(fn ErrorHandler) Option {
	return func(m *Manager) {
		m.onError = fn
	}
}

// New creates a Manager. Call Load before reading settings.
func New(opts ...Option) *Manager {
	m := &Manager{
		docs:             make(map[layer.Identity]*document.Document),
		failures:         make(map[string]int),
		retries:          make(map[string]*debounce.Debouncer),
		fs:               vfs.NewOSFS(),
		logger:           log.New(io.Discard),
		notifier:         notify.New(),
		paths:            layer.DefaultPaths(),
		globalDir:        layer.DefaultGlobalDir(),
		failureThreshold: DefaultFailureThreshold,
		rules:            document.DefaultRules(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.store = document.NewStore(m.fs, document.WithLogger(m.logger), document.WithRules(m.rules))
	return m
}

// Layers returns the JSON layers in scope ordered by ascending rank.
func (m *Manager) Layers() []layer.Identity {
	var out []layer.Identity
	for _, id := range layer.JSONLayers() {
		if m.pathOf(id) != "" {
			out = append(out, id)
		}
	}
	return out
}

// PathOf returns the file location of id, or an empty string when the layer
// is out of scope or not a JSON layer.
func (m *Manager) PathOf(id layer.Identity) string {
	return m.pathOf(id)
}

func (m *Manager) pathOf(id layer.Identity) string {
	if !id.IsJSON() {
		return ""
	}
	switch id.Scope() {
	case layer.ScopeGlobal:
		if m.globalDir == "" {
			return ""
		}
		return m.paths.Resolve(id, m.globalDir)
	case layer.ScopeProject:
		if m.projectDir == "" {
			return ""
		}
		return m.paths.Resolve(id, m.projectDir)
	default:
		return m.paths.Resolve(id, "")
	}
}

// Load reads every layer in scope and recomputes the merged view. Files
// that are missing or malformed do not fail the load; file system errors do.
func (m *Manager) Load(ctx context.Context) error {
	changes, err := m.load(ctx)
	if err != nil {
		return err
	}
	m.logger.Debug("settings loaded", "layers", len(m.Layers()), "settings", len(m.Settings()))
	m.publish(changes)
	return nil
}

func (m *Manager) load(ctx context.Context) ([]notify.Change, error) {
	m.editMu.Lock()
	defer m.editMu.Unlock()

	if m.isClosed() {
		return nil, ErrClosed
	}

	docs := make(map[layer.Identity]*document.Document)
	for _, id := range m.Layers() {
		doc, err := m.store.Load(ctx, id, m.pathOf(id))
		if err != nil {
			return nil, fmt.Errorf("loading %s settings: %w", id, err)
		}
		docs[id] = doc
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.docs = docs
	m.failures = make(map[string]int)
	m.cancelRetriesLocked()
	return m.recomputeLocked(), nil
}

// Settings returns the effective settings sorted by key.
func (m *Manager) Settings() []merge.EffectiveSetting {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSettings(m.settings)
}

// Hierarchy returns the effective settings as a tree. Each call builds a
// new tree that the caller may modify.
func (m *Manager) Hierarchy() []*merge.Node {
	return merge.BuildHierarchy(m.Settings())
}

// Get returns the effective setting for a dot path.
func (m *Manager) Get(key string) (merge.EffectiveSetting, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := merge.Lookup(m.settings, key)
	if ok {
		s.Contributions = slices.Clone(s.Contributions)
	}
	return s, ok
}

func cloneSettings(settings []merge.EffectiveSetting) []merge.EffectiveSetting {
	out := slices.Clone(settings)
	for i := range out {
		out[i].Contributions = slices.Clone(out[i].Contributions)
	}
	return out
}

// Document returns the loaded document of id.
func (m *Manager) Document(id layer.Identity) (*document.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	return doc, ok
}

// Documents returns the loaded documents ordered by ascending rank.
func (m *Manager) Documents() []*document.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.documentsLocked()
}

func (m *Manager) documentsLocked() []*document.Document {
	ids := make([]layer.Identity, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	layer.SortByRank(ids)

	out := make([]*document.Document, len(ids))
	for i, id := range ids {
		out[i] = m.docs[id]
	}
	return out
}

// Diagnostics returns the validation problems of every layer that has any.
func (m *Manager) Diagnostics() map[layer.Identity][]document.Diagnostic {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[layer.Identity][]document.Diagnostic)
	for id, doc := range m.docs {
		if diags := doc.Diagnostics(); len(diags) > 0 {
			out[id] = diags
		}
	}
	return out
}

// Subscribe registers an observer for every effective change.
//
// Observers run after the edit or reload that caused the change has
// finished, so an observer may itself edit settings. Changes from
// concurrent edits may arrive interleaved.
func (m *Manager) Subscribe(observer notify.Observer) *notify.Subscription {
	return m.notifier.Subscribe(observer)
}

// SubscribePath registers an observer for changes at or below a dot path.
func (m *Manager) SubscribePath(path string, observer notify.Observer) *notify.Subscription {
	return m.notifier.SubscribePath(path, observer)
}

// Close stops watching and releases observers. Reloads still in flight are
// discarded. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	watching, id := m.watching, m.watchID
	m.watching = false
	h, owns := m.hub, m.ownsHub
	m.cancelRetriesLocked()
	m.mu.Unlock()

	if h != nil {
		if watching {
			h.Unsubscribe(id)
		}
		if owns {
			h.Stop()
		}
	}
	m.notifier.Close()
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// recomputeLocked rebuilds the merged view and returns what changed.
// m.mu must be held for writing.
func (m *Manager) recomputeLocked() []notify.Change {
	sources := make([]merge.Source, 0, len(m.docs))
	for _, doc := range m.documentsLocked() {
		if doc.Parsed() {
			sources = append(sources, doc)
		}
	}
	next := merge.Flatten(sources)
	changes := diff(m.settings, next)
	m.settings = next
	return changes
}

func (m *Manager) publish(changes []notify.Change) {
	for _, c := range changes {
		m.notifier.Notify(c)
	}
}

// diff compares two Flatten results. Both are sorted by key.
func diff(prev, next []merge.EffectiveSetting) []notify.Change {
	var changes []notify.Change
	i, j := 0, 0
	for i < len(prev) || j < len(next) {
		switch {
		case j == len(next) || (i < len(prev) && prev[i].Key < next[j].Key):
			changes = append(changes, notify.Change{
				Path:     prev[i].Key,
				Type:     notify.ChangeDelete,
				OldValue: prev[i].Value,
				NewValue: value.NewNull(),
				Layer:    prev[i].Winner(),
			})
			i++
		case i == len(prev) || next[j].Key < prev[i].Key:
			changes = append(changes, notify.Change{
				Path:     next[j].Key,
				Type:     notify.ChangeSet,
				OldValue: value.NewNull(),
				NewValue: next[j].Value,
				Layer:    next[j].Winner(),
			})
			j++
		default:
			if !prev[i].Value.Equal(next[j].Value) || prev[i].Winner() != next[j].Winner() {
				changes = append(changes, notify.Change{
					Path:     next[j].Key,
					Type:     notify.ChangeSet,
					OldValue: prev[i].Value,
					NewValue: next[j].Value,
					Layer:    next[j].Winner(),
				})
			}
			i++
			j++
		}
	}
	return changes
}
