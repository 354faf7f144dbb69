package engine

import (
	"sort"
	"sync"
	"time"

	"FinMonitorAPI/internal/models"
)

// ActiveRegistry is the canonical in-memory store of currently open
// alerts, keyed by ID. Alerts are immutable values: updates go through
// Update, which swaps the stored version under a single-key critical
// section; no cross-alert locking exists anywhere.
type ActiveRegistry struct {
	mu     sync.RWMutex
	alerts map[string]models.Alert
}

func NewActiveRegistry() *ActiveRegistry {
	return &ActiveRegistry{
		alerts: make(map[string]models.Alert),
	}
}

// Insert stores a newly created alert.
func (r *ActiveRegistry) Insert(alert models.Alert) {
	r.mu.Lock()
	r.alerts[alert.ID] = alert
	r.mu.Unlock()
}

// Get returns a copy of the alert by ID.
func (r *ActiveRegistry) Get(id string) (models.Alert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[id]
	return a, ok
}

// Update applies fn to the current version and stores the result. Returns
// the updated copy, or false if the alert is not active.
func (r *ActiveRegistry) Update(id string, fn func(models.Alert) models.Alert) (models.Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return models.Alert{}, false
	}
	a = fn(a)
	r.alerts[id] = a
	return a, true
}

// Acknowledge transitions the alert to ACKNOWLEDGED, halting escalation.
func (r *ActiveRegistry) Acknowledge(id string, now time.Time) (models.Alert, bool) {
	return r.Update(id, func(a models.Alert) models.Alert {
		return a.Acknowledged(now)
	})
}

// Resolve transitions the alert to RESOLVED and removes it from the
// active set. The durable history row lives on outside this registry.
func (r *ActiveRegistry) Resolve(id string, now time.Time) (models.Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return models.Alert{}, false
	}
	a = a.Resolved(now)
	delete(r.alerts, id)
	return a, true
}

// Open returns copies of all alerts still in OPEN state.
func (r *ActiveRegistry) Open() []models.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []models.Alert
	for _, a := range r.alerts {
		if a.IsOpen() {
			open = append(open, a)
		}
	}
	return open
}

// All returns copies of every active alert, newest first.
func (r *ActiveRegistry) All() []models.Alert {
	r.mu.RLock()
	alerts := make([]models.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		alerts = append(alerts, a)
	}
	r.mu.RUnlock()

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	return alerts
}

// SweepStale evicts alerts older than maxAge from the in-memory set and
// returns the removed copies. Durable history is untouched.
func (r *ActiveRegistry) SweepStale(maxAge time.Duration, now time.Time) []models.Alert {
	cutoff := now.Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []models.Alert
	for id, a := range r.alerts {
		if a.CreatedAt.Before(cutoff) {
			delete(r.alerts, id)
			removed = append(removed, a)
		}
	}
	return removed
}

// Len reports the number of active alerts.
func (r *ActiveRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.alerts)
}
