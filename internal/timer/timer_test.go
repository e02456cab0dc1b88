package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFiresOnce(t *testing.T) {
	var n atomic.Int32
	var got atomic.Uint64
	done := make(chan struct{}, 1)
	tm := New(func(gen uint64) {
		n.Add(1)
		got.Store(gen)
		done <- struct{}{}
	})

	gen := tm.Start(10 * time.Millisecond)
	if !tm.Running() {
		t.Fatal("Running() = false right after Start")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	time.Sleep(30 * time.Millisecond)

	if n.Load() != 1 {
		t.Fatalf("callback ran %d times", n.Load())
	}
	if got.Load() != gen {
		t.Fatalf("callback gen = %d, want %d", got.Load(), gen)
	}
	if tm.Running() {
		t.Fatal("Running() = true after expiry")
	}
}

func TestStopSuppressesCallback(t *testing.T) {
	var n atomic.Int32
	tm := New(func(uint64) { n.Add(1) })

	tm.Start(20 * time.Millisecond)
	tm.Stop()
	time.Sleep(60 * time.Millisecond)

	if n.Load() != 0 {
		t.Fatalf("stopped timer fired %d times", n.Load())
	}
	if tm.Running() {
		t.Fatal("Running() = true after Stop")
	}
}

func TestRestartReplacesExpiry(t *testing.T) {
	var n atomic.Int32
	tm := New(func(uint64) { n.Add(1) })

	first := tm.Start(20 * time.Millisecond)
	second := tm.Start(200 * time.Millisecond)
	if first == second {
		t.Fatal("restart kept the same generation")
	}
	time.Sleep(60 * time.Millisecond)

	if n.Load() != 0 {
		t.Fatal("first expiry should have been replaced")
	}
	tm.Stop()
}
