package engine

import (
	"fmt"
	"sync"
	"time"

	"FinMonitorAPI/internal/models"
)

// Health score bands: below these the monitor raises a system alert.
const (
	healthCriticalBelow = 50
	healthWarningBelow  = 75
)

// HealthMonitor tracks a status per monitored service and computes the
// aggregate system health score:
//
//	score = (healthy*100 + degraded*50) / total
type HealthMonitor struct {
	mu       sync.RWMutex
	statuses map[string]string
}

func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		statuses: make(map[string]string),
	}
}

// SetStatus records the latest status for a service.
func (h *HealthMonitor) SetStatus(service, status string) {
	h.mu.Lock()
	h.statuses[service] = status
	h.mu.Unlock()
}

// RecomputeFromAlerts derives each service's status from its open alerts:
// any open CRITICAL marks it UNHEALTHY, any open HIGH marks it DEGRADED,
// otherwise services previously tracked fall back to HEALTHY.
func (h *HealthMonitor) RecomputeFromAlerts(open []models.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for service := range h.statuses {
		h.statuses[service] = models.HealthHealthy
	}

	for _, a := range open {
		if a.Service == "" {
			continue
		}
		current := h.statuses[a.Service]
		switch {
		case a.Severity == models.SeverityCritical:
			h.statuses[a.Service] = models.HealthUnhealthy
		case a.Severity == models.SeverityHigh && current != models.HealthUnhealthy:
			h.statuses[a.Service] = models.HealthDegraded
		case current == "":
			h.statuses[a.Service] = models.HealthHealthy
		}
	}
}

// Snapshot computes the current aggregate. An empty monitor scores 100.
func (h *HealthMonitor) Snapshot(now time.Time) models.SystemHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := models.SystemHealth{ComputedAt: now}
	for _, status := range h.statuses {
		switch status {
		case models.HealthHealthy:
			snap.HealthyCount++
		case models.HealthDegraded:
			snap.DegradedCount++
		default:
			snap.UnhealthyCount++
		}
	}

	total := snap.HealthyCount + snap.DegradedCount + snap.UnhealthyCount
	if total == 0 {
		snap.Score = 100
		return snap
	}
	snap.Score = float64(snap.HealthyCount*100+snap.DegradedCount*50) / float64(total)
	return snap
}

// SystemAlert synthesizes a system-health alert when the score is in a
// degraded band, or nil when the system is fine.
func SystemAlert(snap models.SystemHealth) *models.Alert {
	var severity string
	switch {
	case snap.Score < healthCriticalBelow:
		severity = models.SeverityCritical
	case snap.Score < healthWarningBelow:
		severity = models.SeverityMedium
	default:
		return nil
	}

	return &models.Alert{
		Type:      models.TypeAvailability,
		Severity:  severity,
		Status:    models.StatusOpen,
		Metric:    "system.health.score",
		Service:   "system",
		Message:   fmt.Sprintf("System health score %.1f (%d healthy, %d degraded, %d unhealthy)", snap.Score, snap.HealthyCount, snap.DegradedCount, snap.UnhealthyCount),
		Value:     snap.Score,
		Threshold: healthWarningBelow,
		CreatedAt: snap.ComputedAt,
	}
}
