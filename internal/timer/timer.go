// Package timer provides the single-shot stall timer used by the player.
package timer

import (
	"sync"
	"time"
)

// Timer runs cb once, d after Start, unless Stop is called first. A callback
// that lost the race with Stop or a restart is suppressed. cb gets the
// generation returned by the Start that armed it, since an expiry that
// already passed the check can still run late.
type Timer struct {
	cb func(gen uint64)

	mu      sync.Mutex
	t       *time.Timer
	gen     uint64
	running bool
}

func New(cb func(gen uint64)) *Timer {
	return &Timer{cb: cb}
}

// Start arms the timer, replacing any pending expiry, and returns the
// generation passed to cb.
func (tm *Timer) Start(d time.Duration) uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.t != nil {
		tm.t.Stop()
	}
	tm.gen++
	gen := tm.gen
	tm.running = true
	tm.t = time.AfterFunc(d, func() { tm.fire(gen) })
	return gen
}

func (tm *Timer) fire(gen uint64) {
	tm.mu.Lock()
	if gen != tm.gen || !tm.running {
		tm.mu.Unlock()
		return
	}
	tm.running = false
	tm.mu.Unlock()

	tm.cb(gen)
}

func (tm *Timer) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.t != nil {
		tm.t.Stop()
		tm.t = nil
	}
	tm.gen++
	tm.running = false
}

func (tm *Timer) Running() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.running
}
