// Package debounce provides a trailing-edge debouncer.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs the most recently scheduled action once a quiet period has
// passed without another Schedule or Cancel. Actions of one Debouncer never
// run concurrently.
//
// The zero value is ready to use.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64

	// fireMu serializes action execution.
	fireMu sync.Mutex
}

// New creates a Debouncer.
func New() *Debouncer {
	return &Debouncer{}
}

// Schedule replaces any pending action with action, to run after delay.
func (d *Debouncer) Schedule(delay time.Duration, action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() {
		d.fire(gen, action)
	})
}

// Cancel discards the pending action, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether an action is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) fire(gen uint64, action func()) {
	d.fireMu.Lock()
	defer d.fireMu.Unlock()

	// A timer that was stopped too late to prevent its goroutine from
	// starting still sees a newer generation here.
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	action()
}
