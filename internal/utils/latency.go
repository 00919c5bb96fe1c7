package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded window of recent run durations per run
// kind and reports percentiles over it.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples map[string][]time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples per kind.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{maxSize: maxSize, samples: make(map[string][]time.Duration)}
}

// Observe records a duration for kind, evicting the oldest when full.
func (l *LatencyTracker) Observe(kind string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := append(l.samples[kind], d)
	if len(s) > l.maxSize {
		s = s[len(s)-l.maxSize:]
	}
	l.samples[kind] = s
}

// Percentile returns the p-th percentile (0-100) duration for kind, or zero
// without samples.
func (l *LatencyTracker) Percentile(kind string, p float64) time.Duration {
	l.mu.RLock()
	sorted := append([]time.Duration(nil), l.samples[kind]...)
	l.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[int((p/100.0)*float64(len(sorted)-1))]
}

// Count returns the number of samples held for kind.
func (l *LatencyTracker) Count(kind string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples[kind])
}
