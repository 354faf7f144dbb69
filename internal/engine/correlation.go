package engine

import (
	"fmt"
	"sync"
	"time"

	"FinMonitorAPI/internal/models"

	"github.com/google/uuid"
)

// CorrelationJudge decides whether a cluster of alerts sharing a key is
// significant enough to raise a correlated incident. The judgment is a
// pluggable policy input; the default looks only at cluster size.
type CorrelationJudge func(key string, alerts []models.Alert) bool

type correlationEntry struct {
	alert      models.Alert
	recordedAt time.Time
}

// CorrelationWindow groups recent alerts by correlation key (service name,
// else alert type) and periodically promotes significant clusters to
// correlated incidents. Member entries are consumed when an incident is
// emitted so the same cluster is never reported twice.
type CorrelationWindow struct {
	window     time.Duration
	minCluster int
	judge      CorrelationJudge

	mu     sync.RWMutex
	groups map[string][]correlationEntry
}

func NewCorrelationWindow(window time.Duration, minCluster int, judge CorrelationJudge) *CorrelationWindow {
	cw := &CorrelationWindow{
		window:     window,
		minCluster: minCluster,
		judge:      judge,
		groups:     make(map[string][]correlationEntry),
	}
	if cw.judge == nil {
		cw.judge = func(key string, alerts []models.Alert) bool {
			return len(alerts) >= minCluster
		}
	}
	return cw
}

// Record appends the alert to its key's list.
func (c *CorrelationWindow) Record(alert models.Alert, now time.Time) {
	key := alert.CorrelationKey()
	c.mu.Lock()
	c.groups[key] = append(c.groups[key], correlationEntry{alert: alert, recordedAt: now})
	c.mu.Unlock()
}

// RelatedIDs returns the IDs of other alerts recorded for the same key
// within the window, for populating the new alert's correlated-alert list.
func (c *CorrelationWindow) RelatedIDs(alert models.Alert, now time.Time) []string {
	cutoff := now.Add(-c.window)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for _, e := range c.groups[alert.CorrelationKey()] {
		if e.recordedAt.Before(cutoff) || e.alert.ID == alert.ID {
			continue
		}
		ids = append(ids, e.alert.ID)
	}
	return ids
}

// Analyze prunes stale entries, judges each key's live cluster, and
// returns one correlated incident per significant key. Emitted clusters
// are consumed.
func (c *CorrelationWindow) Analyze(now time.Time) []models.CorrelatedIncident {
	cutoff := now.Add(-c.window)

	c.mu.Lock()
	defer c.mu.Unlock()

	var incidents []models.CorrelatedIncident
	for key, entries := range c.groups {
		live := entries[:0]
		for _, e := range entries {
			if !e.recordedAt.Before(cutoff) {
				live = append(live, e)
			}
		}
		if len(live) == 0 {
			delete(c.groups, key)
			continue
		}
		c.groups[key] = live

		if len(live) < c.minCluster {
			continue
		}

		alerts := make([]models.Alert, len(live))
		for i, e := range live {
			alerts[i] = e.alert
		}
		if !c.judge(key, alerts) {
			continue
		}

		ids := make([]string, len(alerts))
		severity := models.SeverityLow
		for i, a := range alerts {
			ids[i] = a.ID
			if models.SeverityRank(a.Severity) > models.SeverityRank(severity) {
				severity = a.Severity
			}
		}

		incidents = append(incidents, models.CorrelatedIncident{
			IncidentID:     uuid.NewString(),
			CorrelationKey: key,
			AlertIDs:       ids,
			Severity:       severity,
			Message:        fmt.Sprintf("Correlated incident: %d related alerts for %s", len(ids), key),
			DetectedAt:     now,
		})
		delete(c.groups, key)
	}

	return incidents
}

// Len reports the number of live correlation keys.
func (c *CorrelationWindow) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.groups)
}
