package engine

import (
	"sync"
	"time"
)

// DedupWindow suppresses repeat alerts that share a fingerprint inside a
// configurable window. Entries are swept periodically to bound memory.
type DedupWindow struct {
	window time.Duration

	mu   sync.RWMutex
	seen map[string]time.Time
}

func NewDedupWindow(window time.Duration) *DedupWindow {
	return &DedupWindow{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// IsDuplicate reports whether fingerprint was recorded within the window.
func (d *DedupWindow) IsDuplicate(fingerprint string, now time.Time) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	last, ok := d.seen[fingerprint]
	if !ok {
		return false
	}
	return now.Sub(last) < d.window
}

// Record marks fingerprint as seen. Called for every newly processed
// (non-duplicate) alert.
func (d *DedupWindow) Record(fingerprint string, now time.Time) {
	d.mu.Lock()
	d.seen[fingerprint] = now
	d.mu.Unlock()
}

// Sweep drops entries older than the window and returns how many were
// removed. Tolerates concurrent Record calls.
func (d *DedupWindow) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for fp, last := range d.seen {
		if now.Sub(last) >= d.window {
			delete(d.seen, fp)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked fingerprints.
func (d *DedupWindow) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.seen)
}
