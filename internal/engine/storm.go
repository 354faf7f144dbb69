package engine

import (
	"sync"
	"time"
)

// StormDetector counts alerts across all fingerprints within a short
// sliding window. Once the count crosses the threshold a single storm
// signal fires and per-alert side effects are suppressed until a later
// sweep observes the count back under threshold and re-arms detection.
type StormDetector struct {
	window    time.Duration
	threshold int

	mu       sync.Mutex
	times    []time.Time
	signaled bool
}

func NewStormDetector(window time.Duration, threshold int) *StormDetector {
	return &StormDetector{
		window:    window,
		threshold: threshold,
	}
}

// pruneLocked drops timestamps that fell out of the window.
func (s *StormDetector) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.times) && !s.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.times = append(s.times[:0], s.times[i:]...)
	}
}

// Record counts one alert occurrence.
func (s *StormDetector) Record(now time.Time) {
	s.mu.Lock()
	s.pruneLocked(now)
	s.times = append(s.times, now)
	s.mu.Unlock()
}

// Count returns the number of alerts inside the current window.
func (s *StormDetector) Count(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	return len(s.times)
}

// IsStorm reports whether the window count is over threshold.
func (s *StormDetector) IsStorm(now time.Time) bool {
	return s.Count(now) > s.threshold
}

// InStorm reports whether a storm signal has fired and not yet re-armed.
// During this period normal per-alert processing is short-circuited.
func (s *StormDetector) InStorm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signaled
}

// TrySignal fires the storm edge exactly once: it returns true only on the
// transition over threshold, never again until Rearm succeeds.
func (s *StormDetector) TrySignal(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if s.signaled || len(s.times) <= s.threshold {
		return false
	}
	s.signaled = true
	return true
}

// Rearm clears the signaled state once the count has dropped back under
// threshold. Returns true when detection was actually re-armed.
func (s *StormDetector) Rearm(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if !s.signaled || len(s.times) > s.threshold {
		return false
	}
	s.signaled = false
	return true
}

// Threshold exposes the configured limit for the storm signal payload.
func (s *StormDetector) Threshold() int {
	return s.threshold
}

// Window exposes the configured window for the storm signal payload.
func (s *StormDetector) Window() time.Duration {
	return s.window
}
