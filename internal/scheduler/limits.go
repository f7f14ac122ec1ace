package scheduler

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limits caps a single device's throughput.
type Limits struct {
	// MaxConcurrent limits how many jobs may run on the device at
	// once across the worker pool. Zero means unlimited.
	MaxConcurrent int

	// RatePerSec is the sustained job-start rate for the device.
	// Zero disables rate limiting.
	RatePerSec float64

	// Burst is the token-bucket burst size; defaults to 1 when
	// RatePerSec is set.
	Burst int
}

type limitState struct {
	limits  Limits
	limiter *rate.Limiter
	active  int
}

// LimitManager enforces per-device concurrency and rate limits.
// Devices without an entry are unlimited. Safe for concurrent use.
type LimitManager struct {
	mu      sync.Mutex
	devices map[string]*limitState
}

// NewLimitManager creates a LimitManager from per-device limits.
func NewLimitManager(limits map[string]Limits) *LimitManager {
	m := &LimitManager{devices: make(map[string]*limitState, len(limits))}
	for name, l := range limits {
		st := &limitState{limits: l}
		if l.RatePerSec > 0 {
			burst := l.Burst
			if burst <= 0 {
				burst = 1
			}
			st.limiter = rate.NewLimiter(rate.Limit(l.RatePerSec), burst)
		}
		m.devices[name] = st
	}
	return m
}

// Acquire reports whether a job may start on the device now, counting
// it as active if so. The caller must call Release when the attempt
// finishes.
func (m *LimitManager) Acquire(device string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.devices[device]
	if st == nil {
		return true
	}
	if st.limits.MaxConcurrent > 0 && st.active >= st.limits.MaxConcurrent {
		return false
	}
	if st.limiter != nil && !st.limiter.Allow() {
		return false
	}
	st.active++
	return true
}

// Release decrements the device's active count.
func (m *LimitManager) Release(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.devices[device]; st != nil && st.active > 0 {
		st.active--
	}
}

// Active returns the device's current active job count.
func (m *LimitManager) Active(device string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.devices[device]; st != nil {
		return st.active
	}
	return 0
}
