package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIgnoresMessageAndValue(t *testing.T) {
	a := Alert{Type: TypeThreshold, Metric: "api.latency", Service: "payments", Message: "first", Value: 10}
	b := Alert{Type: TypeThreshold, Metric: "api.latency", Service: "payments", Message: "second", Value: 99}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, "THRESHOLD|api.latency|payments", a.Fingerprint())
}

func TestCorrelationKeyPrefersService(t *testing.T) {
	withService := Alert{Type: TypeLatency, Service: "payments"}
	assert.Equal(t, "payments", withService.CorrelationKey())

	withoutService := Alert{Type: TypeLatency}
	assert.Equal(t, TypeLatency, withoutService.CorrelationKey())
}

func TestResolvedAlertCannotBeReacknowledged(t *testing.T) {
	now := time.Now()
	a := Alert{ID: "a1", Status: StatusOpen}

	resolved := a.Resolved(now)
	assert.Equal(t, StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	stillResolved := resolved.Acknowledged(now.Add(time.Minute))
	assert.Equal(t, StatusResolved, stillResolved.Status)
	assert.Nil(t, stillResolved.AcknowledgedAt)
}

func TestTransitionsReturnCopies(t *testing.T) {
	now := time.Now()
	a := Alert{ID: "a1", Status: StatusOpen}

	acked := a.Acknowledged(now)
	assert.Equal(t, StatusOpen, a.Status, "original value untouched")
	assert.Equal(t, StatusAcknowledged, acked.Status)
	assert.True(t, a.IsOpen())
	assert.False(t, acked.IsOpen())
}

func TestWithCorrelatedDropsSelfAndDuplicates(t *testing.T) {
	a := Alert{ID: "a1", CorrelatedAlertIDs: []string{"a2"}}

	updated := a.WithCorrelated([]string{"a1", "a2", "a3", "a3"})
	assert.Equal(t, []string{"a2", "a3"}, updated.CorrelatedAlertIDs)
	assert.Equal(t, []string{"a2"}, a.CorrelatedAlertIDs)
}

func TestEscalatedAdvancesLevel(t *testing.T) {
	now := time.Now()
	a := Alert{ID: "a1", Status: StatusOpen}

	e1 := a.Escalated("oncall", now)
	assert.Equal(t, 1, e1.EscalationLevel)
	assert.Equal(t, "oncall", e1.EscalationTarget)
	require.NotNil(t, e1.EscalatedAt)

	e2 := e1.Escalated("team-lead", now.Add(5*time.Minute))
	assert.Equal(t, 2, e2.EscalationLevel)
	assert.Equal(t, "team-lead", e2.EscalationTarget)
}

func TestSeverityRankOrdering(t *testing.T) {
	assert.Greater(t, SeverityRank(SeverityCritical), SeverityRank(SeverityHigh))
	assert.Greater(t, SeverityRank(SeverityHigh), SeverityRank(SeverityMedium))
	assert.Greater(t, SeverityRank(SeverityMedium), SeverityRank(SeverityLow))
	assert.Equal(t, 0, SeverityRank("UNKNOWN"))
}

func TestValidSeverity(t *testing.T) {
	for _, s := range []string{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		assert.True(t, ValidSeverity(s))
	}
	assert.False(t, ValidSeverity("critical"))
	assert.False(t, ValidSeverity(""))
}

func TestNotificationChannelsNarrowWithSeverity(t *testing.T) {
	assert.Equal(t, []string{"phone", "sms", "email", "chat"}, NotificationChannels(SeverityCritical))
	assert.Equal(t, []string{"sms", "email", "chat"}, NotificationChannels(SeverityHigh))
	assert.Equal(t, []string{"email", "chat"}, NotificationChannels(SeverityMedium))
	assert.Equal(t, []string{"email"}, NotificationChannels(SeverityLow))
}
