package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"FinMonitorAPI/internal/config"
	"FinMonitorAPI/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]interface{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][]interface{})}
}

func (p *fakePublisher) PublishJSON(topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[topic] = append(p.published[topic], payload)
	return nil
}

func (p *fakePublisher) topic(name string) []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]interface{}(nil), p.published[name]...)
}

type fakeHub struct {
	mu     sync.Mutex
	events []string
}

func (h *fakeHub) Broadcast(msgType string, payload interface{}) {
	h.mu.Lock()
	h.events = append(h.events, msgType)
	h.mu.Unlock()
}

func (h *fakeHub) count(msgType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == msgType {
			n++
		}
	}
	return n
}

type fakeHistory struct {
	mu       sync.Mutex
	created  []string
	acked    []string
	resolved []string
}

func (f *fakeHistory) Create(ctx context.Context, alert *models.Alert) error {
	f.mu.Lock()
	f.created = append(f.created, alert.ID)
	f.mu.Unlock()
	return nil
}

func (f *fakeHistory) Acknowledge(ctx context.Context, id string) error {
	f.mu.Lock()
	f.acked = append(f.acked, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeHistory) Resolve(ctx context.Context, id string) error {
	f.mu.Lock()
	f.resolved = append(f.resolved, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeHistory) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

type fakeDLQStore struct {
	mu   sync.Mutex
	msgs []models.DeadLetterMessage
}

func (f *fakeDLQStore) Create(ctx context.Context, msg *models.DeadLetterMessage) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, *msg)
	f.mu.Unlock()
	return nil
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		BaselineWindowSize:    100,
		BaselineMinSamples:    10,
		AnomalyZScore:         2.0,
		DedupWindow:           5 * time.Minute,
		StormWindow:           time.Minute,
		StormThreshold:        50,
		CorrelationWindow:     10 * time.Minute,
		CorrelationInterval:   time.Minute,
		CorrelationMinCluster: 3,
		EscalationInterval:    30 * time.Second,
		EscalateHighAfter:     5 * time.Minute,
		EscalateMedAfter:      15 * time.Minute,
		EscalateLowAfter:      30 * time.Minute,
		DispatchTimeout:       time.Second,
		BreakerMinRequests:    3,
		BreakerFailureRate:    0.6,
		BreakerOpenTimeout:    time.Minute,
		RetentionAge:          24 * time.Hour,
		RetentionInterval:     time.Hour,
		HealthInterval:        time.Minute,
		WorkerCount:           2,
	}
}

func testTopics() Topics {
	return Topics{
		DeadLetter: "finmon/deadletter",
		Notify:     "finmon/notifications",
		Incident:   "finmon/incidents",
		Storm:      "finmon/storms",
		Escalation: "finmon/escalations",
	}
}

type engineFixture struct {
	engine    *Engine
	publisher *fakePublisher
	hub       *fakeHub
	history   *fakeHistory
	dlq       *fakeDLQStore
}

func newEngineFixture(t *testing.T, cfg config.EngineConfig) *engineFixture {
	t.Helper()
	f := &engineFixture{
		publisher: newFakePublisher(),
		hub:       &fakeHub{},
		history:   &fakeHistory{},
		dlq:       &fakeDLQStore{},
	}
	f.engine = New(cfg, testTopics(), f.publisher, f.hub, f.history, f.dlq, nil, testLogger(t))
	return f
}

func testAlertEvent(severity, metric, service string) models.Alert {
	return models.Alert{
		ID:        fmt.Sprintf("alert-%s-%s-%s", severity, metric, service),
		Type:      models.TypeThreshold,
		Severity:  severity,
		Status:    models.StatusOpen,
		Metric:    metric,
		Service:   service,
		Message:   "threshold breached",
		CreatedAt: time.Now(),
	}
}

func TestProcessAlertLifecycle(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())

	alert := testAlertEvent(models.SeverityHigh, "api.latency", "payments")
	require.NoError(t, f.engine.ProcessAlert(context.Background(), alert))

	active := f.engine.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, alert.ID, active[0].ID)

	assert.Equal(t, []string{alert.ID}, f.history.created)

	notifications := f.publisher.topic("finmon/notifications")
	require.Len(t, notifications, 1)
	req := notifications[0].(models.NotificationRequest)
	assert.Equal(t, "oncall", req.Recipient)
	assert.Equal(t, []string{"sms", "email", "chat"}, req.Channels)

	assert.Equal(t, 1, f.hub.count("ALERT"))
}

func TestProcessAlertDeduplicatesByFingerprint(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())
	ctx := context.Background()

	first := testAlertEvent(models.SeverityMedium, "api.latency", "payments")
	repeat := testAlertEvent(models.SeverityMedium, "api.latency", "payments")
	repeat.ID = "different-id-same-fingerprint"

	require.NoError(t, f.engine.ProcessAlert(ctx, first))
	require.NoError(t, f.engine.ProcessAlert(ctx, repeat))

	assert.Len(t, f.engine.ActiveAlerts(), 1)
	assert.Equal(t, int64(1), f.engine.Stats().Deduplicated)

	// A different fingerprint passes through.
	other := testAlertEvent(models.SeverityMedium, "db.connections", "payments")
	require.NoError(t, f.engine.ProcessAlert(ctx, other))
	assert.Len(t, f.engine.ActiveAlerts(), 2)
}

func TestStormSuppressionEmitsSingleSignal(t *testing.T) {
	cfg := testEngineConfig()
	cfg.StormThreshold = 3
	f := newEngineFixture(t, cfg)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		alert := testAlertEvent(models.SeverityLow, fmt.Sprintf("metric.%d", i), "payments")
		require.NoError(t, f.engine.ProcessAlert(ctx, alert))
	}

	storms := f.publisher.topic("finmon/storms")
	require.Len(t, storms, 1, "storm signal fires exactly once")
	signal := storms[0].(models.StormSignal)
	assert.Equal(t, 3, signal.Threshold)

	stats := f.engine.Stats()
	assert.Equal(t, int64(5), stats.StormDropped, "the crossing alert and everything after it is suppressed")
	assert.Len(t, f.engine.ActiveAlerts(), 3, "only alerts under the threshold were admitted")
}

func TestEscalationSweepCriticalFirstSweep(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())
	ctx := context.Background()

	alert := testAlertEvent(models.SeverityCritical, "tx.failures", "ledger")
	require.NoError(t, f.engine.ProcessAlert(ctx, alert))

	f.engine.escalationSweep(time.Now())

	escalations := f.publisher.topic("finmon/escalations")
	require.Len(t, escalations, 1)
	req := escalations[0].(models.NotificationRequest)
	assert.Equal(t, "oncall", req.Recipient)

	escalated := req.Payload.(models.Alert)
	assert.Equal(t, 1, escalated.EscalationLevel)
	assert.Equal(t, "oncall", escalated.EscalationTarget)

	// Second sweep immediately after must not climb another tier.
	f.engine.escalationSweep(time.Now())
	assert.Len(t, f.publisher.topic("finmon/escalations"), 1)

	assert.Equal(t, int64(1), f.engine.Stats().Escalations)
}

func TestAcknowledgedAlertIsNotEscalated(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())
	ctx := context.Background()

	alert := testAlertEvent(models.SeverityCritical, "tx.failures", "ledger")
	require.NoError(t, f.engine.ProcessAlert(ctx, alert))
	require.NoError(t, f.engine.Acknowledge(ctx, alert.ID))

	f.engine.escalationSweep(time.Now())
	assert.Empty(t, f.publisher.topic("finmon/escalations"))
	assert.Equal(t, []string{alert.ID}, f.history.acked)
}

func TestCorrelatedIncidentEndToEnd(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())
	ctx := context.Background()

	// Distinct fingerprints, same service: dedup admits all three and
	// correlation clusters them under the service key.
	a1 := testAlertEvent(models.SeverityMedium, "api.latency", "payments")
	a2 := testAlertEvent(models.SeverityHigh, "error.rate", "payments")
	a3 := testAlertEvent(models.SeverityMedium, "db.connections", "payments")
	for _, a := range []models.Alert{a1, a2, a3} {
		require.NoError(t, f.engine.ProcessAlert(ctx, a))
	}

	f.engine.analyzeCorrelations(time.Now())

	incidents := f.publisher.topic("finmon/incidents")
	require.Len(t, incidents, 1)
	incident := incidents[0].(models.CorrelatedIncident)
	assert.Equal(t, "payments", incident.CorrelationKey)
	assert.ElementsMatch(t, []string{a1.ID, a2.ID, a3.ID}, incident.AlertIDs)
	assert.Equal(t, models.SeverityHigh, incident.Severity)

	// Members now reference each other.
	stored, ok := f.engine.registry.Get(a1.ID)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{a2.ID, a3.ID}, stored.CorrelatedAlertIDs)

	assert.Equal(t, int64(1), f.engine.Stats().Incidents)
	assert.Equal(t, 1, f.hub.count("INCIDENT"))
}

func TestHealthSweepRaisesSystemAlert(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())
	ctx := context.Background()

	require.NoError(t, f.engine.ProcessAlert(ctx,
		testAlertEvent(models.SeverityCritical, "tx.failures", "ledger")))

	f.engine.healthSweep(time.Now())

	assert.Equal(t, 1, f.hub.count("HEALTH"))

	var systemAlert *models.Alert
	for _, a := range f.engine.ActiveAlerts() {
		if a.Metric == "system.health.score" {
			copied := a
			systemAlert = &copied
		}
	}
	require.NotNil(t, systemAlert, "score 0 synthesizes a system alert")
	assert.Equal(t, models.SeverityCritical, systemAlert.Severity)
	assert.Equal(t, "system", systemAlert.Service)
}

func TestResolveRemovesAlertAndMirrorsHistory(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())
	ctx := context.Background()

	alert := testAlertEvent(models.SeverityLow, "queue.depth", "billing")
	require.NoError(t, f.engine.ProcessAlert(ctx, alert))
	require.NoError(t, f.engine.Resolve(ctx, alert.ID))

	assert.Empty(t, f.engine.ActiveAlerts())
	assert.Equal(t, []string{alert.ID}, f.history.resolved)
	assert.Equal(t, 1, f.hub.count("ALERT_UPDATE"))

	err := f.engine.Resolve(ctx, alert.ID)
	assert.Error(t, err, "resolving twice reports not active")
}

func TestMetricObservationSynthesizesAnomalyAlert(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())
	ctx := context.Background()

	send := func(value float64) {
		raw, err := json.Marshal(map[string]interface{}{
			"eventType": models.EventMetric,
			"metric":    "payment.amount",
			"service":   "payments",
			"value":     value,
		})
		require.NoError(t, err)
		assert.True(t, f.engine.dispatcher.Dispatch(ctx, raw, "finmon/events"))
	}

	for i := 0; i < 10; i++ {
		send(10)
	}
	assert.Empty(t, f.engine.ActiveAlerts(), "stable samples raise nothing")

	send(100)

	active := f.engine.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, models.TypeAnomaly, active[0].Type)
	assert.Equal(t, "payment.amount", active[0].Metric)
	assert.Greater(t, active[0].AnomalyScore, 2.0)

	summary, ok := f.engine.BaselineSummary("payment.amount")
	require.True(t, ok)
	assert.Equal(t, int64(11), summary.SampleCount)
}

func TestMalformedEventReachesDeadLetterChannel(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())

	raw := []byte(`{"value": 10}`)
	assert.True(t, f.engine.dispatcher.Dispatch(context.Background(), raw, "finmon/events"))

	dead := f.publisher.topic("finmon/deadletter")
	require.Len(t, dead, 1)
	msg := dead[0].(models.DeadLetterMessage)
	assert.Equal(t, ReasonInvalidFormat, msg.ErrorReason)
	assert.Equal(t, string(raw), msg.OriginalMessage)

	f.dlq.mu.Lock()
	defer f.dlq.mu.Unlock()
	require.Len(t, f.dlq.msgs, 1, "audit copy persisted alongside the broker publish")
}

func TestSubmitThroughWorkerPool(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())
	f.engine.Start()

	raw, err := json.Marshal(map[string]interface{}{
		"eventType": models.EventThreshold,
		"severity":  models.SeverityHigh,
		"metric":    "api.latency",
		"service":   "payments",
		"value":     950.0,
		"threshold": 500.0,
	})
	require.NoError(t, err)

	f.engine.Submit(raw, "finmon/events")

	require.Eventually(t, func() bool {
		return len(f.engine.ActiveAlerts()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	alert := f.engine.ActiveAlerts()[0]
	assert.Equal(t, models.TypeThreshold, alert.Type)
	assert.Equal(t, 950.0, alert.Value)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f.engine.Shutdown(shutdownCtx)

	// After shutdown new submissions are dropped, not panicking on a
	// closed queue.
	f.engine.Submit(raw, "finmon/events")
}

func TestShutdownRunsFinalEscalationSweep(t *testing.T) {
	f := newEngineFixture(t, testEngineConfig())
	f.engine.Start()

	require.NoError(t, f.engine.ProcessAlert(context.Background(),
		testAlertEvent(models.SeverityCritical, "tx.failures", "ledger")))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f.engine.Shutdown(shutdownCtx)

	assert.NotEmpty(t, f.publisher.topic("finmon/escalations"),
		"open CRITICAL alert escalated before the engine stopped")
}
