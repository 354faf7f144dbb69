package models

import (
	"fmt"
	"time"
)

// Alert Constants
const (
	TypeThreshold    = "THRESHOLD"
	TypeAnomaly      = "ANOMALY"
	TypeErrorRate    = "ERROR_RATE"
	TypeLatency      = "LATENCY"
	TypeAvailability = "AVAILABILITY"
	TypeCapacity     = "CAPACITY"
	TypeSecurity     = "SECURITY"
	TypeCompliance   = "COMPLIANCE"
	TypeBusiness     = "BUSINESS"
	TypeCustom       = "CUSTOM"

	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"

	StatusOpen         = "OPEN"
	StatusAcknowledged = "ACKNOWLEDGED"
	StatusResolved     = "RESOLVED"
)

// Alert is the in-memory working copy of a monitoring alert. It is treated
// as an immutable value: every state transition returns an updated copy and
// the active registry swaps the stored version by ID. The durable history
// row in Postgres is maintained separately by the alert repository.
type Alert struct {
	ID                 string            `json:"id" db:"id"`
	Type               string            `json:"alert_type" db:"alert_type"`
	Severity           string            `json:"severity" db:"severity"`
	Status             string            `json:"status" db:"status"`
	Metric             string            `json:"metric" db:"metric"`
	Service            string            `json:"service" db:"service"`
	Endpoint           string            `json:"endpoint,omitempty" db:"endpoint"`
	Message            string            `json:"message" db:"message"`
	Value              float64           `json:"value" db:"value"`
	Threshold          float64           `json:"threshold" db:"threshold"`
	AnomalyScore       float64           `json:"anomaly_score,omitempty" db:"anomaly_score"`
	Tags               map[string]string `json:"tags,omitempty"`
	CorrelatedAlertIDs []string          `json:"correlated_alert_ids,omitempty"`
	EscalationLevel    int               `json:"escalation_level" db:"escalation_level"`
	EscalationTarget   string            `json:"escalation_target,omitempty" db:"escalation_target"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	AcknowledgedAt     *time.Time        `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedAt         *time.Time        `json:"resolved_at,omitempty" db:"resolved_at"`
	EscalatedAt        *time.Time        `json:"escalated_at,omitempty" db:"escalated_at"`
}

// Fingerprint is the dedup grouping key: (type, metric, service).
func (a Alert) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s", a.Type, a.Metric, a.Service)
}

// CorrelationKey groups alerts for incident analysis: service name when
// present, otherwise the alert type.
func (a Alert) CorrelationKey() string {
	if a.Service != "" {
		return a.Service
	}
	return a.Type
}

// Acknowledged returns a copy in ACKNOWLEDGED state. Resolved alerts are
// never reopened, so the transition is a no-op once RESOLVED.
func (a Alert) Acknowledged(now time.Time) Alert {
	if a.Status == StatusResolved {
		return a
	}
	a.Status = StatusAcknowledged
	a.AcknowledgedAt = &now
	return a
}

// Resolved returns a copy in RESOLVED terminal state.
func (a Alert) Resolved(now time.Time) Alert {
	a.Status = StatusResolved
	a.ResolvedAt = &now
	return a
}

// Escalated returns a copy forwarded to the next notification tier.
func (a Alert) Escalated(target string, now time.Time) Alert {
	a.EscalationLevel++
	a.EscalationTarget = target
	a.EscalatedAt = &now
	return a
}

// WithCorrelated returns a copy referencing the given related alert IDs.
// Self-references and duplicates are dropped.
func (a Alert) WithCorrelated(ids []string) Alert {
	merged := make([]string, 0, len(a.CorrelatedAlertIDs)+len(ids))
	seen := make(map[string]bool, len(a.CorrelatedAlertIDs)+len(ids))
	for _, id := range append(append([]string{}, a.CorrelatedAlertIDs...), ids...) {
		if id == a.ID || seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, id)
	}
	a.CorrelatedAlertIDs = merged
	return a
}

// IsOpen reports whether the alert still needs attention.
func (a Alert) IsOpen() bool {
	return a.Status == StatusOpen
}

// SeverityRank orders severities for comparison (LOW=0 .. CRITICAL=3).
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// ValidSeverity reports whether s is one of the four known severities.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}
