package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleCoalesces(t *testing.T) {
	d := New()
	var calls atomic.Int32
	var last atomic.Int32

	for i := range 5 {
		d.Schedule(50*time.Millisecond, func() {
			calls.Add(1)
			last.Store(int32(i))
		})
	}

	assert.True(t, d.Pending())
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Give a stray second firing a chance to show up.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(4), last.Load(), "latest action wins")
	assert.False(t, d.Pending())
}

func TestCancel(t *testing.T) {
	d := New()
	var calls atomic.Int32

	d.Schedule(20*time.Millisecond, func() { calls.Add(1) })
	d.Cancel()
	assert.False(t, d.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	// Cancel with nothing pending is harmless.
	d.Cancel()
}

func TestLatestDelayWins(t *testing.T) {
	d := New()
	fired := make(chan string, 2)

	d.Schedule(time.Hour, func() { fired <- "slow" })
	d.Schedule(10*time.Millisecond, func() { fired <- "fast" })

	select {
	case got := <-fired:
		assert.Equal(t, "fast", got)
	case <-time.After(time.Second):
		t.Fatal("action did not fire")
	}
	d.Cancel()
}

func TestZeroValue(t *testing.T) {
	var d Debouncer
	done := make(chan struct{})
	d.Schedule(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("action did not fire")
	}
}

func TestFiringIsSerialized(t *testing.T) {
	d := New()
	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup

	action := func() {
		defer wg.Done()
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
	}

	// First action starts running; a second is scheduled while it runs.
	wg.Add(1)
	d.Schedule(time.Millisecond, action)
	assert.Eventually(t, func() bool { return running.Load() == 1 }, time.Second, time.Millisecond)
	wg.Add(1)
	d.Schedule(time.Millisecond, action)

	wg.Wait()
	assert.Equal(t, int32(1), maxRunning.Load())
}
