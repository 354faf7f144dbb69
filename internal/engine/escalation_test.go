package engine

import (
	"testing"
	"time"

	"FinMonitorAPI/internal/models"

	"github.com/stretchr/testify/assert"
)

func escAlert(severity string, createdAt time.Time) models.Alert {
	return models.Alert{
		ID:        "esc-test",
		Type:      models.TypeThreshold,
		Severity:  severity,
		Status:    models.StatusOpen,
		Service:   "payments",
		CreatedAt: createdAt,
	}
}

func TestCriticalEligibleImmediately(t *testing.T) {
	p := DefaultEscalationPolicy()
	now := time.Now()

	a := escAlert(models.SeverityCritical, now)
	assert.True(t, p.Eligible(a, now), "CRITICAL escalates on the first sweep")
}

func TestSeverityThresholdsGateFirstEscalation(t *testing.T) {
	p := DefaultEscalationPolicy()
	now := time.Now()

	cases := []struct {
		severity string
		after    time.Duration
	}{
		{models.SeverityHigh, 5 * time.Minute},
		{models.SeverityMedium, 15 * time.Minute},
		{models.SeverityLow, 30 * time.Minute},
	}

	for _, tc := range cases {
		a := escAlert(tc.severity, now)
		assert.False(t, p.Eligible(a, now.Add(tc.after-time.Second)), "%s too young", tc.severity)
		assert.True(t, p.Eligible(a, now.Add(tc.after)), "%s past threshold", tc.severity)
	}
}

func TestAcknowledgmentHaltsEscalation(t *testing.T) {
	p := DefaultEscalationPolicy()
	now := time.Now()

	a := escAlert(models.SeverityCritical, now.Add(-time.Hour))
	assert.True(t, p.Eligible(a, now))

	acked := a.Acknowledged(now)
	assert.False(t, p.Eligible(acked, now.Add(time.Hour)))

	resolved := a.Resolved(now)
	assert.False(t, p.Eligible(resolved, now.Add(time.Hour)))
}

func TestReEscalationWaitsBetweenTiers(t *testing.T) {
	p := DefaultEscalationPolicy()
	now := time.Now()

	a := escAlert(models.SeverityCritical, now.Add(-time.Hour))
	escalated := a.Escalated(NextTarget(0), now)

	assert.False(t, p.Eligible(escalated, now.Add(time.Minute)),
		"CRITICAL does not climb a tier per sweep")
	assert.True(t, p.Eligible(escalated, now.Add(p.HighAfter)))
}

func TestEscalationStopsAtMaxLevel(t *testing.T) {
	p := DefaultEscalationPolicy()
	now := time.Now()

	a := escAlert(models.SeverityCritical, now.Add(-24*time.Hour))
	for i := 0; i < MaxEscalationLevel; i++ {
		a = a.Escalated(NextTarget(a.EscalationLevel), now.Add(time.Duration(i-3)*time.Hour))
	}

	assert.Equal(t, MaxEscalationLevel, a.EscalationLevel)
	assert.Equal(t, "engineering-manager", a.EscalationTarget)
	assert.False(t, p.Eligible(a, now.Add(24*time.Hour)))
}

func TestNextTargetTiers(t *testing.T) {
	assert.Equal(t, "oncall", NextTarget(0))
	assert.Equal(t, "team-lead", NextTarget(1))
	assert.Equal(t, "engineering-manager", NextTarget(2))
	assert.Equal(t, "engineering-manager", NextTarget(3), "clamped at the top tier")
}
