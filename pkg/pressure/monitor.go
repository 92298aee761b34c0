// Package pressure signals memory pressure to registered callbacks.
package pressure

import (
	"context"
	"runtime/metrics"
	"sync"
	"time"

	"go.uber.org/zap"
)

const heapMetric = "/memory/classes/heap/objects:bytes"

// Registration identifies a registered callback.
type Registration uint64

// Options configures a Monitor.
type Options struct {
	// SoftLimit is the heap size in bytes above which callbacks fire.
	// Zero disables polling; Signal still works.
	SoftLimit uint64
	// Interval between samples. Defaults to two seconds.
	Interval time.Duration
	// Sample overrides the heap sampler.
	Sample func() uint64
	Logger *zap.Logger
}

// Monitor polls heap usage and fires callbacks when it crosses the soft
// limit. It fires once per crossing and re-arms after usage drops below 90%
// of the limit.
type Monitor struct {
	mu        sync.Mutex
	next      Registration
	callbacks map[Registration]func()
	above     bool
	fired     uint64

	limit    uint64
	interval time.Duration
	sample   func() uint64
	log      *zap.Logger
}

// New creates a Monitor.
func New(opts Options) *Monitor {
	m := &Monitor{
		callbacks: make(map[Registration]func()),
		limit:     opts.SoftLimit,
		interval:  opts.Interval,
		sample:    opts.Sample,
		log:       opts.Logger,
	}
	if m.interval <= 0 {
		m.interval = 2 * time.Second
	}
	if m.sample == nil {
		m.sample = heapBytes
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m
}

// OnMemoryPressure registers fn. fn runs on the monitor goroutine and must
// hand work off to its owner.
func (m *Monitor) OnMemoryPressure(fn func()) Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.callbacks[m.next] = fn
	return m.next
}

// Unregister removes a callback. Unknown registrations are ignored.
func (m *Monitor) Unregister(r Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.callbacks, r)
}

// Registered returns the number of registered callbacks.
func (m *Monitor) Registered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.callbacks)
}

// Fired returns how many times callbacks have been fired.
func (m *Monitor) Fired() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

// Start polls until ctx is canceled. It is a no-op without a soft limit.
func (m *Monitor) Start(ctx context.Context) {
	if m.limit == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check()
			}
		}
	}()
}

// Check samples once and fires on a rising edge. It reports whether
// callbacks fired.
func (m *Monitor) Check() bool {
	if m.limit == 0 {
		return false
	}
	used := m.sample()

	m.mu.Lock()
	switch {
	case used > m.limit && !m.above:
		m.above = true
		m.mu.Unlock()
		m.log.Info("memory pressure", zap.Uint64("heap_bytes", used), zap.Uint64("soft_limit", m.limit))
		m.Signal()
		return true
	case used < m.limit/10*9 && m.above:
		m.above = false
	}
	m.mu.Unlock()
	return false
}

// Signal fires every registered callback.
func (m *Monitor) Signal() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.callbacks))
	for _, fn := range m.callbacks {
		fns = append(fns, fn)
	}
	m.fired++
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func heapBytes() uint64 {
	s := []metrics.Sample{{Name: heapMetric}}
	metrics.Read(s)
	if s[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return s[0].Value.Uint64()
}
