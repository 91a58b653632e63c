package typing

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestControllerKeepsAliveUntilStopped(t *testing.T) {
	var fires atomic.Int32
	c := New(Options{
		KeepaliveInterval: 10 * time.Millisecond,
		MaxDuration:       time.Second,
		StartFn: func() error {
			fires.Add(1)
			return nil
		},
	})
	c.Start()

	deadline := time.Now().Add(time.Second)
	for fires.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fires.Load() < 3 {
		t.Fatalf("fired %d times, want at least 3", fires.Load())
	}

	c.Stop()
	c.Stop() // idempotent

	after := fires.Load()
	time.Sleep(50 * time.Millisecond)
	if got := fires.Load(); got > after+1 {
		t.Errorf("indicator kept firing after Stop: %d -> %d", after, got)
	}
}

func TestControllerStopsAtMaxDuration(t *testing.T) {
	var fires atomic.Int32
	c := New(Options{
		KeepaliveInterval: 5 * time.Millisecond,
		MaxDuration:       30 * time.Millisecond,
		StartFn: func() error {
			fires.Add(1)
			return nil
		},
	})
	c.Start()

	time.Sleep(100 * time.Millisecond)
	settled := fires.Load()
	time.Sleep(50 * time.Millisecond)
	if got := fires.Load(); got != settled {
		t.Errorf("indicator kept firing past TTL: %d -> %d", settled, got)
	}
	if settled == 0 {
		t.Error("indicator never fired")
	}
}
