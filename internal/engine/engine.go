// Package engine implements the streaming metric-baseline and
// alert-correlation core: deduplication, storm suppression, correlation,
// escalation and dispatch with dead-letter failure handling.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"FinMonitorAPI/internal/baseline"
	"FinMonitorAPI/internal/config"
	"FinMonitorAPI/internal/logger"
	"FinMonitorAPI/internal/models"

	"github.com/google/uuid"
)

// Publisher sends engine decisions to the outbound broker channels.
type Publisher interface {
	PublishJSON(topic string, payload interface{}) error
}

// Broadcaster pushes live updates to connected dashboards.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

// AlertHistory mirrors alert state into durable storage. Failures are
// logged and never roll back in-memory state.
type AlertHistory interface {
	Create(ctx context.Context, alert *models.Alert) error
	Acknowledge(ctx context.Context, id string) error
	Resolve(ctx context.Context, id string) error
	DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error)
}

// DeadLetterSink persists the audit copy of dead-lettered events.
type DeadLetterSink interface {
	Create(ctx context.Context, msg *models.DeadLetterMessage) error
}

// Topics names the outbound broker channels and this consumer's identity
// as recorded on dead-lettered events.
type Topics struct {
	DeadLetter   string
	Notify       string
	Incident     string
	Storm        string
	Escalation   string
	ConsumerName string
}

type inboundMessage struct {
	raw      []byte
	topic    string
	attempts int
}

// Engine owns the full inbound pipeline and the periodic sweeps. Sweeps
// run on their own goroutines, decoupled from inbound throughput, and are
// stopped first on shutdown; a final escalation sweep runs during drain so
// no open alert loses its escalation state.
type Engine struct {
	cfg    config.EngineConfig
	topics Topics
	log    *logger.Logger

	baselines   *baseline.Registry
	dedup       *DedupWindow
	storm       *StormDetector
	correlation *CorrelationWindow
	registry    *ActiveRegistry
	policy      EscalationPolicy
	health      *HealthMonitor
	dispatcher  *Dispatcher

	publisher Publisher
	hub       Broadcaster
	history   AlertHistory
	dlqStore  DeadLetterSink

	queue     chan inboundMessage
	queueMu   sync.RWMutex
	stopped   bool
	sweepCtx  context.Context
	sweepStop context.CancelFunc
	workCtx   context.Context
	workStop  context.CancelFunc
	sweepWG   sync.WaitGroup
	workerWG  sync.WaitGroup

	deduplicated atomic.Int64
	stormDropped atomic.Int64
	escalations  atomic.Int64
	incidents    atomic.Int64
}

func New(cfg config.EngineConfig, topics Topics, publisher Publisher, hub Broadcaster, history AlertHistory, dlqStore DeadLetterSink, judge CorrelationJudge, log *logger.Logger) *Engine {
	sweepCtx, sweepStop := context.WithCancel(context.Background())
	workCtx, workStop := context.WithCancel(context.Background())

	e := &Engine{
		cfg:       cfg,
		topics:    topics,
		log:       log,
		baselines: baseline.NewRegistry(cfg.BaselineWindowSize, cfg.BaselineMinSamples),
		dedup:     NewDedupWindow(cfg.DedupWindow),
		storm:     NewStormDetector(cfg.StormWindow, cfg.StormThreshold),
		correlation: NewCorrelationWindow(
			cfg.CorrelationWindow, cfg.CorrelationMinCluster, judge),
		registry: NewActiveRegistry(),
		policy: EscalationPolicy{
			HighAfter:   cfg.EscalateHighAfter,
			MediumAfter: cfg.EscalateMedAfter,
			LowAfter:    cfg.EscalateLowAfter,
		},
		health:    NewHealthMonitor(),
		publisher: publisher,
		hub:       hub,
		history:   history,
		dlqStore:  dlqStore,
		queue:     make(chan inboundMessage, 256),
		sweepCtx:  sweepCtx,
		sweepStop: sweepStop,
		workCtx:   workCtx,
		workStop:  workStop,
	}

	consumerName := topics.ConsumerName
	if consumerName == "" {
		consumerName = "fin-monitor-engine"
	}
	e.dispatcher = NewDispatcher(DispatcherConfig{
		Timeout:            cfg.DispatchTimeout,
		ConsumerName:       consumerName,
		BreakerMinRequests: cfg.BreakerMinRequests,
		BreakerFailureRate: cfg.BreakerFailureRate,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	}, e.sendDeadLetter, log)

	e.dispatcher.Register(models.EventMetric, e.handleMetric)
	for eventType, alertType := range alertEventTypes {
		at := alertType
		e.dispatcher.Register(eventType, func(ctx context.Context, env models.Envelope) error {
			return e.handleAlertEvent(ctx, env, at)
		})
	}

	return e
}

// Start launches the worker pool and the periodic sweeps.
func (e *Engine) Start() {
	workers := e.cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		e.workerWG.Add(1)
		go e.worker()
	}

	e.startSweep("dedup cleanup", e.cfg.DedupWindow, func(now time.Time) {
		if removed := e.dedup.Sweep(now); removed > 0 {
			e.log.Debug("Dedup sweep removed %d stale fingerprints", removed)
		}
	})
	e.startSweep("correlation analysis", e.cfg.CorrelationInterval, e.analyzeCorrelations)
	e.startSweep("escalation check", e.cfg.EscalationInterval, e.escalationSweep)
	e.startSweep("storm re-arm", e.cfg.StormWindow, func(now time.Time) {
		if e.storm.Rearm(now) {
			e.log.Info("Alert storm subsided, detection re-armed")
		}
	})
	e.startSweep("retention cleanup", e.cfg.RetentionInterval, e.retentionSweep)
	e.startSweep("health recompute", e.cfg.HealthInterval, e.healthSweep)

	e.log.Info("Alert engine started: %d workers, %d event types", workers, len(e.dispatcher.handlers))
}

func (e *Engine) startSweep(name string, interval time.Duration, fn func(now time.Time)) {
	if interval <= 0 {
		interval = time.Minute
	}
	e.sweepWG.Add(1)
	go func() {
		defer e.sweepWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.sweepCtx.Done():
				e.log.Debug("Sweep stopping: %s", name)
				return
			case now := <-ticker.C:
				fn(now)
			}
		}
	}()
}

// Shutdown stops sweepers first, gives in-flight dispatches a grace
// period, runs one final escalation sweep, then forces the workers down.
func (e *Engine) Shutdown(ctx context.Context) {
	e.log.Info("Shutting down alert engine...")

	e.sweepStop()
	e.sweepWG.Wait()

	e.queueMu.Lock()
	e.stopped = true
	e.queueMu.Unlock()
	close(e.queue)
	drained := make(chan struct{})
	go func() {
		e.workerWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		e.log.Warn("Grace period expired, forcing worker pool down")
	}
	e.workStop()

	e.escalationSweep(time.Now())

	e.log.Info("Alert engine stopped")
}

// Submit enqueues one raw broker message for asynchronous processing.
func (e *Engine) Submit(raw []byte, topic string) {
	e.enqueue(inboundMessage{raw: raw, topic: topic})
}

func (e *Engine) enqueue(msg inboundMessage) {
	e.queueMu.RLock()
	defer e.queueMu.RUnlock()

	if e.stopped {
		e.log.Warn("Engine stopped, dropping inbound message from %s", msg.topic)
		return
	}
	select {
	case e.queue <- msg:
	case <-e.workCtx.Done():
		e.log.Warn("Engine stopped, dropping inbound message from %s", msg.topic)
	}
}

// worker drains the inbound queue. A message whose dead-lettering failed
// is redelivered locally with a bounded number of attempts; MQTT QoS 1
// acknowledges on receipt, so redelivery is the engine's responsibility.
func (e *Engine) worker() {
	defer e.workerWG.Done()

	for msg := range e.queue {
		if acked := e.dispatcher.Dispatch(e.workCtx, msg.raw, msg.topic); !acked {
			if msg.attempts >= 3 {
				e.log.Error("Giving up on message after %d redeliveries", msg.attempts)
				continue
			}
			msg.attempts++
			go func(m inboundMessage) {
				select {
				case <-time.After(time.Duration(m.attempts) * time.Second):
					e.enqueue(m)
				case <-e.workCtx.Done():
				}
			}(msg)
		}
	}
}

// --- Inbound handlers ---

// handleMetric feeds a metric observation into its baseline and, once the
// sample is classified anomalous, synthesizes an ANOMALY alert carrying
// the Z-score.
func (e *Engine) handleMetric(ctx context.Context, env models.Envelope) error {
	obs, err := decodeMetricObservation(env)
	if err != nil {
		return err
	}

	anomalous, score := e.baselines.Observe(obs.Metric, obs.Value, e.cfg.AnomalyZScore)
	if !anomalous {
		return nil
	}

	severity := models.SeverityMedium
	if math.Abs(score) > e.cfg.AnomalyZScore*1.5 {
		severity = models.SeverityHigh
	}

	alert := e.newAlert(models.AlertEvent{
		Type:      models.TypeAnomaly,
		Severity:  severity,
		Metric:    obs.Metric,
		Service:   obs.Service,
		Message:   fmt.Sprintf("Anomalous value %.2f for %s (z-score %.2f)", obs.Value, obs.Metric, score),
		Value:     obs.Value,
		Threshold: e.cfg.AnomalyZScore,
	})
	alert.AnomalyScore = score

	return e.ProcessAlert(ctx, alert)
}

func (e *Engine) handleAlertEvent(ctx context.Context, env models.Envelope, alertType string) error {
	ev, err := decodeAlertEvent(env, alertType)
	if err != nil {
		return err
	}
	return e.ProcessAlert(ctx, e.newAlert(ev))
}

func (e *Engine) newAlert(ev models.AlertEvent) models.Alert {
	return models.Alert{
		ID:        uuid.NewString(),
		Type:      ev.Type,
		Severity:  ev.Severity,
		Status:    models.StatusOpen,
		Metric:    ev.Metric,
		Service:   ev.Service,
		Endpoint:  ev.Endpoint,
		Message:   ev.Message,
		Value:     ev.Value,
		Threshold: ev.Threshold,
		Tags:      ev.Tags,
		CreatedAt: time.Now(),
	}
}

// ProcessAlert runs the lifecycle pipeline: dedup check, storm check,
// registry upsert, correlation insert, then side effects. State mutation
// happens only after the decoded alert passed validation, so a failing
// event never corrupts state for other events.
func (e *Engine) ProcessAlert(ctx context.Context, alert models.Alert) error {
	now := time.Now()

	fp := alert.Fingerprint()
	if e.dedup.IsDuplicate(fp, now) {
		e.deduplicated.Add(1)
		return nil
	}
	e.dedup.Record(fp, now)

	e.storm.Record(now)
	if e.storm.TrySignal(now) {
		signal := models.StormSignal{
			Count:      e.storm.Count(now),
			Threshold:  e.storm.Threshold(),
			WindowSecs: int(e.storm.Window().Seconds()),
			DetectedAt: now,
		}
		e.log.Warn("Alert storm detected: %d alerts in %ds, suppressing individual alerts", signal.Count, signal.WindowSecs)
		e.publish(e.topics.Storm, signal)
		e.broadcast("STORM", signal)
	}
	if e.storm.InStorm() {
		e.stormDropped.Add(1)
		return nil
	}

	if related := e.correlation.RelatedIDs(alert, now); len(related) > 0 {
		alert = alert.WithCorrelated(related)
	}
	e.registry.Insert(alert)
	e.correlation.Record(alert, now)

	if e.history != nil {
		if err := e.history.Create(ctx, &alert); err != nil {
			e.log.Error("Failed to persist alert %s: %v", alert.ID, err)
		}
	}

	e.publish(e.topics.Notify, models.NotificationRequest{
		Recipient: NextTarget(0),
		Channels:  models.NotificationChannels(alert.Severity),
		Payload:   alert,
		Timestamp: now,
	})
	e.broadcast("ALERT", alert)

	e.log.Info("Alert created: id=%s type=%s severity=%s service=%s", alert.ID, alert.Type, alert.Severity, alert.Service)
	return nil
}

// --- Sweeps ---

func (e *Engine) escalationSweep(now time.Time) {
	for _, a := range e.registry.Open() {
		if !e.policy.Eligible(a, now) {
			continue
		}

		target := NextTarget(a.EscalationLevel)
		updated, ok := e.registry.Update(a.ID, func(cur models.Alert) models.Alert {
			if !e.policy.Eligible(cur, now) {
				return cur
			}
			return cur.Escalated(target, now)
		})
		if !ok || updated.EscalationLevel == a.EscalationLevel {
			continue
		}

		e.escalations.Add(1)
		e.publish(e.topics.Escalation, models.NotificationRequest{
			Recipient: target,
			Channels:  models.NotificationChannels(updated.Severity),
			Payload:   updated,
			Timestamp: now,
		})
		e.broadcast("ESCALATION", updated)
		e.log.Warn("Alert %s escalated to level %d (%s)", updated.ID, updated.EscalationLevel, target)
	}
}

func (e *Engine) analyzeCorrelations(now time.Time) {
	for _, incident := range e.correlation.Analyze(now) {
		e.incidents.Add(1)

		for _, id := range incident.AlertIDs {
			others := make([]string, 0, len(incident.AlertIDs)-1)
			for _, other := range incident.AlertIDs {
				if other != id {
					others = append(others, other)
				}
			}
			e.registry.Update(id, func(cur models.Alert) models.Alert {
				return cur.WithCorrelated(others)
			})
		}

		e.publish(e.topics.Incident, incident)
		e.broadcast("INCIDENT", incident)
		e.log.Info("Correlated incident %s: %d alerts for key %s", incident.IncidentID, len(incident.AlertIDs), incident.CorrelationKey)
	}
}

func (e *Engine) retentionSweep(now time.Time) {
	if removed := e.registry.SweepStale(e.cfg.RetentionAge, now); len(removed) > 0 {
		e.log.Info("Retention sweep evicted %d stale alerts from the active set", len(removed))
	}

	if e.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if count, err := e.history.DeleteOld(ctx, e.cfg.RetentionAge); err != nil {
			e.log.Error("Retention cleanup of alert history failed: %v", err)
		} else if count > 0 {
			e.log.Info("Retention sweep deleted %d resolved alerts from history", count)
		}
	}
}

func (e *Engine) healthSweep(now time.Time) {
	e.health.RecomputeFromAlerts(e.registry.Open())
	snap := e.health.Snapshot(now)
	e.broadcast("HEALTH", snap)

	if alert := SystemAlert(snap); alert != nil {
		alert.ID = uuid.NewString()
		if err := e.ProcessAlert(context.Background(), *alert); err != nil {
			e.log.Error("Failed to raise system health alert: %v", err)
		}
	}
}

// --- Administrative operations ---

// Acknowledge halts further escalation for the alert.
func (e *Engine) Acknowledge(ctx context.Context, id string) error {
	alert, ok := e.registry.Acknowledge(id, time.Now())
	if !ok {
		return fmt.Errorf("alert %s is not active", id)
	}

	if e.history != nil {
		if err := e.history.Acknowledge(ctx, id); err != nil {
			e.log.Error("Failed to persist acknowledgment for %s: %v", id, err)
		}
	}
	e.broadcast("ALERT_UPDATE", alert)
	return nil
}

// Resolve closes the alert and removes it from the active set.
func (e *Engine) Resolve(ctx context.Context, id string) error {
	alert, ok := e.registry.Resolve(id, time.Now())
	if !ok {
		return fmt.Errorf("alert %s is not active", id)
	}

	if e.history != nil {
		if err := e.history.Resolve(ctx, id); err != nil {
			e.log.Error("Failed to persist resolution for %s: %v", id, err)
		}
	}
	e.broadcast("ALERT_UPDATE", alert)
	return nil
}

// ActiveAlerts returns the current active set, newest first.
func (e *Engine) ActiveAlerts() []models.Alert {
	return e.registry.All()
}

// BaselineSummaries snapshots every tracked metric baseline.
func (e *Engine) BaselineSummaries() []models.BaselineSummary {
	return e.baselines.Summaries()
}

// BaselineSummary snapshots one metric, if tracked.
func (e *Engine) BaselineSummary(metric string) (models.BaselineSummary, bool) {
	b, ok := e.baselines.Lookup(metric)
	if !ok {
		return models.BaselineSummary{}, false
	}
	return b.Summary(), true
}

// SystemHealth returns the current aggregate health snapshot.
func (e *Engine) SystemHealth() models.SystemHealth {
	e.health.RecomputeFromAlerts(e.registry.Open())
	return e.health.Snapshot(time.Now())
}

// Stats returns the operational counters.
func (e *Engine) Stats() models.EngineStats {
	processed, errs, deadLettered := e.dispatcher.Counters()
	return models.EngineStats{
		Processed:    processed,
		Errors:       errs,
		DeadLettered: deadLettered,
		Deduplicated: e.deduplicated.Load(),
		StormDropped: e.stormDropped.Load(),
		Escalations:  e.escalations.Load(),
		Incidents:    e.incidents.Load(),
		BreakerState: e.dispatcher.BreakerState(),
	}
}

// --- Outbound plumbing ---

// sendDeadLetter forwards a failed event to the broker DLQ channel and
// mirrors it into the audit table. The broker publish decides the ack; the
// audit insert is best-effort on top of it.
func (e *Engine) sendDeadLetter(msg models.DeadLetterMessage) error {
	if e.publisher != nil {
		if err := e.publisher.PublishJSON(e.topics.DeadLetter, msg); err != nil {
			return fmt.Errorf("dead-letter publish failed: %w", err)
		}
	}

	if e.dlqStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.dlqStore.Create(ctx, &msg); err != nil {
			e.log.Error("Failed to persist dead-letter audit record: %v", err)
		}
	}
	return nil
}

func (e *Engine) publish(topic string, payload interface{}) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishJSON(topic, payload); err != nil {
		e.log.Error("Failed to publish to %s: %v", topic, err)
	}
}

func (e *Engine) broadcast(msgType string, payload interface{}) {
	if e.hub != nil {
		e.hub.Broadcast(msgType, payload)
	}
}
