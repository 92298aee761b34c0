package pressure

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterUnregister(t *testing.T) {
	m := New(Options{})

	var a, b atomic.Int32
	ra := m.OnMemoryPressure(func() { a.Add(1) })
	m.OnMemoryPressure(func() { b.Add(1) })
	if m.Registered() != 2 {
		t.Fatalf("expected 2 registrations, got %d", m.Registered())
	}

	m.Signal()
	m.Unregister(ra)
	m.Unregister(ra) // unknown now, ignored
	m.Signal()

	if a.Load() != 1 {
		t.Errorf("unregistered callback fired %d times, want 1", a.Load())
	}
	if b.Load() != 2 {
		t.Errorf("callback fired %d times, want 2", b.Load())
	}
	if m.Fired() != 2 {
		t.Errorf("Fired() = %d, want 2", m.Fired())
	}
}

func TestCheckFiresOnRisingEdge(t *testing.T) {
	var used atomic.Uint64
	m := New(Options{SoftLimit: 1000, Sample: used.Load})

	var calls atomic.Int32
	m.OnMemoryPressure(func() { calls.Add(1) })

	steps := []struct {
		heap uint64
		want bool
	}{
		{500, false},
		{1500, true},
		{2000, false}, // still above, already fired
		{950, false},  // between 90% and limit, not re-armed
		{1200, false},
		{800, false}, // re-armed
		{1100, true},
	}
	for i, s := range steps {
		used.Store(s.heap)
		if got := m.Check(); got != s.want {
			t.Errorf("step %d (heap=%d): Check() = %v, want %v", i, s.heap, got, s.want)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("callback fired %d times, want 2", calls.Load())
	}
}

func TestCheckDisabledWithoutLimit(t *testing.T) {
	m := New(Options{Sample: func() uint64 { return 1 << 40 }})
	if m.Check() {
		t.Error("monitor without a soft limit must not fire")
	}
}

func TestStartPolls(t *testing.T) {
	fired := make(chan struct{}, 1)
	m := New(Options{
		SoftLimit: 10,
		Interval:  5 * time.Millisecond,
		Sample:    func() uint64 { return 100 },
	})
	m.OnMemoryPressure(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("poller never fired")
	}
}

func TestHeapBytes(t *testing.T) {
	if heapBytes() == 0 {
		t.Error("expected a non-zero heap sample")
	}
}

func TestStartWithoutLimitReturns(t *testing.T) {
	var sampled atomic.Int32
	m := New(Options{
		Interval: time.Millisecond,
		Sample:   func() uint64 { sampled.Add(1); return 1 << 40 },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	if n := sampled.Load(); n != 0 {
		t.Errorf("sampled %d times without a soft limit", n)
	}
}
