package dispatch

import (
	"runtime"
	"sync"
	"time"
)

// DefaultStatsInterval is how old process stats may get before Exec
// resamples them.
const DefaultStatsInterval = 5 * time.Second

// ProcessStats is a lazily refreshed sample of process telemetry.
type ProcessStats struct {
	Goroutines int
	HeapAlloc  uint64
	HeapSys    uint64
	NumGC      uint32
	SampledAt  time.Time
}

// statsSampler refreshes ProcessStats on demand. There is no background
// timer; a long-lived process with no traffic never samples.
type statsSampler struct {
	interval time.Duration
	sample   func() ProcessStats

	mu    sync.RWMutex
	stats ProcessStats
}

func newStatsSampler(interval time.Duration) *statsSampler {
	return &statsSampler{interval: interval, sample: sampleRuntime}
}

// refresh resamples when the current sample is older than the interval. A
// non-positive interval disables sampling.
func (s *statsSampler) refresh(now time.Time) {
	if s.interval <= 0 {
		return
	}

	s.mu.RLock()
	stale := now.Sub(s.stats.SampledAt) >= s.interval
	s.mu.RUnlock()
	if !stale {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// another caller may have refreshed while we waited
	if now.Sub(s.stats.SampledAt) < s.interval {
		return
	}
	st := s.sample()
	st.SampledAt = now
	s.stats = st
}

func (s *statsSampler) get() ProcessStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func sampleRuntime() ProcessStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return ProcessStats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		NumGC:      m.NumGC,
	}
}
