// Package hub multiplexes file change notifications to many subscribers.
//
// The Hub owns a single Notifier whose watch set is always the union of the
// live subscriptions' paths. Raw events are debounced per path before being
// delivered, so a burst of writes to one file never delays another file.
package hub

import (
	"errors"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dshills/cfgsync/internal/watch/debounce"
	"github.com/dshills/cfgsync/internal/watch/notifier"
)

// DefaultQuietPeriod is the debounce delay applied to each path.
const DefaultQuietPeriod = 300 * time.Millisecond

// Errors returned by Hub operations.
var (
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrHubStopped          = errors.New("hub is stopped")
)

// SubscriptionID identifies a subscription.
type SubscriptionID uuid.UUID

// String returns the canonical UUID form.
func (id SubscriptionID) String() string {
	return uuid.UUID(id).String()
}

// Callback is invoked with the changed path after its quiet period.
type Callback func(path string)

// NotifierFactory creates the notifier a Hub drives. handler must receive
// every raw event.
type NotifierFactory func(handler notifier.Handler) notifier.Notifier

type subscription struct {
	paths    map[string]bool
	callback Callback
}

// Hub fans debounced change events out to subscribers.
//
// Lock order is mu before dmu. The notifier's handler only takes dmu, so
// the notifier may be stopped while mu is held.
type Hub struct {
	logger *log.Logger
	quiet  time.Duration

	mu       sync.Mutex
	subs     map[SubscriptionID]*subscription
	watchSet []string
	notifier notifier.Notifier
	stopped  bool

	dmu        sync.Mutex
	debouncers map[string]*debounce.Debouncer
	dstopped   bool
}

// Option configures a Hub.
type Option func(*Hub, *config)

type config struct {
	factory NotifierFactory
}

// WithQuietPeriod sets the per-path debounce delay.
func WithQuietPeriod(d time.Duration) Option {
	return func(h *Hub, _ *config) {
		if d > 0 {
			h.quiet = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(h *Hub, _ *config) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithNotifierFactory replaces the fsnotify-backed notifier.
func WithNotifierFactory(f NotifierFactory) Option {
	return func(_ *Hub, c *config) {
		c.factory = f
	}
}

// New creates a Hub with no subscriptions.
func New(opts ...Option) *Hub {
	h := &Hub{
		logger:     log.New(io.Discard),
		quiet:      DefaultQuietPeriod,
		subs:       make(map[SubscriptionID]*subscription),
		debouncers: make(map[string]*debounce.Debouncer),
	}
	cfg := &config{}
	for _, opt := range opts {
		opt(h, cfg)
	}
	if cfg.factory == nil {
		logger := h.logger
		cfg.factory = func(handler notifier.Handler) notifier.Notifier {
			return notifier.NewFSNotifier(handler, notifier.WithLogger(logger))
		}
	}
	h.notifier = cfg.factory(h.HandleEvent)
	return h
}

// Subscribe registers callback for changes to paths.
func (h *Hub) Subscribe(paths []string, callback Callback) (SubscriptionID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return SubscriptionID{}, ErrHubStopped
	}
	id := SubscriptionID(uuid.New())
	h.subs[id] = &subscription{paths: pathSet(paths), callback: callback}
	h.recomputeLocked()
	return id, nil
}

// UpdateSubscription replaces the path set of an existing subscription.
func (h *Hub) UpdateSubscription(id SubscriptionID, paths []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return ErrHubStopped
	}
	sub, ok := h.subs[id]
	if !ok {
		return ErrUnknownSubscription
	}
	sub.paths = pathSet(paths)
	h.recomputeLocked()
	return nil
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id SubscriptionID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[id]; !ok || h.stopped {
		return
	}
	delete(h.subs, id)
	h.recomputeLocked()
}

// WatchSet returns the watched files in sorted order.
func (h *Hub) WatchSet() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, len(h.watchSet))
	copy(out, h.watchSet)
	return out
}

// Stop cancels pending deliveries, stops the notifier and drops every
// subscription. Later events are ignored.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true

	h.dmu.Lock()
	h.dstopped = true
	for path, d := range h.debouncers {
		d.Cancel()
		delete(h.debouncers, path)
	}
	h.dmu.Unlock()

	h.notifier.Stop()
	h.subs = make(map[SubscriptionID]*subscription)
	h.watchSet = nil
}

// HandleEvent receives a raw event from the notifier and schedules delivery
// after the quiet period.
func (h *Hub) HandleEvent(ev notifier.Event) {
	path := filepath.Clean(ev.Path)

	h.dmu.Lock()
	defer h.dmu.Unlock()

	if h.dstopped {
		return
	}
	d, ok := h.debouncers[path]
	if !ok {
		d = debounce.New()
		h.debouncers[path] = d
	}
	d.Schedule(h.quiet, func() { h.deliver(path) })
}

func (h *Hub) deliver(path string) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	var callbacks []Callback
	for _, sub := range h.subs {
		if sub.paths[path] {
			callbacks = append(callbacks, sub.callback)
		}
	}
	h.mu.Unlock()

	for _, cb := range callbacks {
		h.safeCall(cb, path)
	}
}

// safeCall calls a callback with panic recovery.
func (h *Hub) safeCall(cb Callback, path string) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("subscriber panicked", "path", path, "panic", r)
		}
	}()
	cb(path)
}

// recomputeLocked restarts the notifier over the union of all subscribed
// paths. h.mu must be held.
func (h *Hub) recomputeLocked() {
	h.notifier.Stop()

	union := make(map[string]bool)
	for _, sub := range h.subs {
		for p := range sub.paths {
			union[p] = true
		}
	}
	h.watchSet = sortedKeys(union)
	h.pruneDebouncers(union)

	if len(union) == 0 {
		return
	}

	dirSet := make(map[string]bool)
	for p := range union {
		dirSet[filepath.Dir(p)] = true
	}
	dirs := sortedKeys(dirSet)
	if err := h.notifier.Start(dirs, h.watchSet); err != nil {
		h.logger.Warn("change notifications disabled", "files", len(h.watchSet), "error", err)
	}
}

// pruneDebouncers drops debouncers for paths nobody watches anymore.
func (h *Hub) pruneDebouncers(keep map[string]bool) {
	h.dmu.Lock()
	defer h.dmu.Unlock()

	for path, d := range h.debouncers {
		if !keep[path] {
			d.Cancel()
			delete(h.debouncers, path)
		}
	}
}

func pathSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p != "" {
			set[filepath.Clean(p)] = true
		}
	}
	return set
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
