package engine

import (
	"time"

	"FinMonitorAPI/internal/models"
)

// escalationTargets are the notification tiers, indexed by level-1.
var escalationTargets = []string{"oncall", "team-lead", "engineering-manager"}

// MaxEscalationLevel caps how far an unacknowledged alert is forwarded.
var MaxEscalationLevel = len(escalationTargets)

// EscalationPolicy is the severity-to-age-threshold table. CRITICAL alerts
// are eligible on the very first sweep after creation.
type EscalationPolicy struct {
	HighAfter   time.Duration
	MediumAfter time.Duration
	LowAfter    time.Duration
}

func DefaultEscalationPolicy() EscalationPolicy {
	return EscalationPolicy{
		HighAfter:   5 * time.Minute,
		MediumAfter: 15 * time.Minute,
		LowAfter:    30 * time.Minute,
	}
}

// Threshold returns the age an OPEN alert must reach before its first
// escalation. Zero for CRITICAL.
func (p EscalationPolicy) Threshold(severity string) time.Duration {
	switch severity {
	case models.SeverityCritical:
		return 0
	case models.SeverityHigh:
		return p.HighAfter
	case models.SeverityMedium:
		return p.MediumAfter
	default:
		return p.LowAfter
	}
}

// reEscalateAfter is the gap before forwarding to the next tier. CRITICAL
// reuses the HIGH threshold so it does not climb a tier per sweep.
func (p EscalationPolicy) reEscalateAfter(severity string) time.Duration {
	if d := p.Threshold(severity); d > 0 {
		return d
	}
	return p.HighAfter
}

// Eligible reports whether an alert should be escalated now. Only OPEN
// alerts qualify: acknowledgment or resolution halts escalation for good.
func (p EscalationPolicy) Eligible(a models.Alert, now time.Time) bool {
	if !a.IsOpen() || a.EscalationLevel >= MaxEscalationLevel {
		return false
	}

	if a.EscalationLevel == 0 {
		return now.Sub(a.CreatedAt) >= p.Threshold(a.Severity)
	}

	if a.EscalatedAt == nil {
		return false
	}
	return now.Sub(*a.EscalatedAt) >= p.reEscalateAfter(a.Severity)
}

// NextTarget names the notification tier for the alert's next level.
func NextTarget(currentLevel int) string {
	if currentLevel >= MaxEscalationLevel {
		return escalationTargets[MaxEscalationLevel-1]
	}
	return escalationTargets[currentLevel]
}
