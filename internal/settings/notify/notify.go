// Package notify delivers effective setting changes to observers.
//
// Observers subscribe to every change or to a dot path; a path subscription
// also receives changes to descendants ("permissions" sees
// "permissions.allow").
package notify

import (
	"slices"
	"strings"
	"sync"

	"github.com/dshills/cfgsync/internal/settings/layer"
	"github.com/dshills/cfgsync/internal/settings/value"
)

// ChangeType represents the type of setting change.
type ChangeType int

const (
	// ChangeSet indicates a value was added or updated.
	ChangeSet ChangeType = iota

	// ChangeDelete indicates a value no longer exists in any layer.
	ChangeDelete

	// ChangeReload indicates a layer file was reloaded from disk.
	ChangeReload
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Change describes one effective setting change.
type Change struct {
	// Path is the dot path of the setting. Empty for reload events.
	Path string

	// Type is the type of change.
	Type ChangeType

	// OldValue is the previous effective value (null for additions).
	OldValue value.Value

	// NewValue is the new effective value (null for deletes).
	NewValue value.Value

	// Layer is the layer that decides the new value, or the reloaded layer.
	Layer layer.Identity

	// File is the reloaded file for reload events.
	File string
}

// Observer is called when settings change.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	notifier *Notifier
}

// Unsubscribe removes this subscription. Further calls do nothing.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.notifier == nil {
		return
	}
	s.notifier.mu.Lock()
	delete(s.notifier.entries, s.id)
	s.notifier.mu.Unlock()
}

type entry struct {
	// path is empty for observers of every change.
	path string
	fn   Observer
}

func (e entry) matches(c Change) bool {
	if e.path == "" || c.Path == "" {
		return true
	}
	return e.path == c.Path || isParentPath(e.path, c.Path)
}

// Notifier fans changes out to observers in subscription order.
type Notifier struct {
	mu      sync.RWMutex
	entries map[uint64]entry
	nextID  uint64
	closed  bool

	// queue is nil for synchronous delivery.
	queue chan Change
	done  chan struct{}
	wg    sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAsync delivers changes from a background goroutine through a queue of
// the given size. Notify blocks while the queue is full.
func WithAsync(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.queue = make(chan Change, size)
		}
	}
}

// New creates a Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		entries: make(map[uint64]entry),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.queue != nil {
		n.wg.Add(1)
		go n.run()
	}
	return n
}

// Subscribe registers an observer for all changes.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.add("", observer)
}

// SubscribePath registers an observer for path and its descendants. Reload
// events reach every path observer.
func (n *Notifier) SubscribePath(path string, observer Observer) *Subscription {
	return n.add(path, observer)
}

func (n *Notifier) add(path string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	n.entries[n.nextID] = entry{path: path, fn: observer}
	return &Subscription{id: n.nextID, notifier: n}
}

// Notify sends a change to all matching observers. Changes sent after Close
// are dropped.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return
	}

	if n.queue == nil {
		n.deliver(change)
		return
	}
	select {
	case n.queue <- change:
	case <-n.done:
	}
}

// Close stops delivery. Queued changes are delivered before Close returns.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

func (n *Notifier) deliver(change Change) {
	n.mu.RLock()
	ids := make([]uint64, 0, len(n.entries))
	for id, e := range n.entries {
		if e.matches(change) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	observers := make([]Observer, len(ids))
	for i, id := range ids {
		observers[i] = n.entries[id].fn
	}
	n.mu.RUnlock()

	for _, fn := range observers {
		fn(change)
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()

	for {
		select {
		case change := <-n.queue:
			n.deliver(change)
		case <-n.done:
			for {
				select {
				case change := <-n.queue:
					n.deliver(change)
				default:
					return
				}
			}
		}
	}
}

// isParentPath reports whether child lies below parent on a dot boundary:
// "permissions" is a parent of "permissions.allow" but not of "permissionsX".
func isParentPath(parent, child string) bool {
	return strings.HasPrefix(child, parent+".")
}
