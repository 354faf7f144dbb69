// internal/models/models.go

package models

import (
	"time"
)

// Event type tags carried in the inbound envelope.
const (
	EventMetric       = "metric"
	EventThreshold    = "threshold"
	EventAnomaly      = "anomaly"
	EventErrorRate    = "error_rate"
	EventLatency      = "latency"
	EventAvailability = "availability"
	EventCapacity     = "capacity"
	EventSecurity     = "security"
	EventCompliance   = "compliance"
	EventBusiness     = "business"
	EventCustom       = "custom"
)

// Envelope is the typed wrapper every inbound broker message must carry.
// Fields is the raw message body, decoded lazily by the per-type handler.
type Envelope struct {
	EventType string                 `json:"eventType"`
	Timestamp string                 `json:"timestamp"`
	Fields    map[string]interface{} `json:"-"`
	Raw       []byte                 `json:"-"`
}

// MetricObservation is a single sample destined for the baseline registry.
type MetricObservation struct {
	Metric    string  `json:"metric"`
	Service   string  `json:"service"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

// AlertEvent is an alert-shaped inbound event after per-type decoding.
type AlertEvent struct {
	Type      string            `json:"alert_type"`
	Severity  string            `json:"severity"`
	Metric    string            `json:"metric"`
	Service   string            `json:"service"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Message   string            `json:"message"`
	Value     float64           `json:"value"`
	Threshold float64           `json:"threshold"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// DeadLetterMessage carries a failed event plus diagnostics to the DLQ
// channel and audit table. OriginalMessage is the inbound payload
// byte-for-byte.
type DeadLetterMessage struct {
	OriginalMessage string    `json:"originalMessage"`
	OriginalTopic   string    `json:"originalTopic"`
	ErrorReason     string    `json:"errorReason"`
	ErrorClass      string    `json:"errorClass,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	ErrorTimestamp  time.Time `json:"errorTimestamp"`
	CorrelationID   string    `json:"correlationId"`
	TraceID         string    `json:"traceId"`
	ConsumerName    string    `json:"consumerName"`
}

// NotificationRequest is handed to the notification channel. Channels is
// the severity-derived hint: CRITICAL fans out the widest.
type NotificationRequest struct {
	Recipient string      `json:"recipient"`
	Channels  []string    `json:"channels"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NotificationChannels maps severity to the delivery channel hint.
func NotificationChannels(severity string) []string {
	switch severity {
	case SeverityCritical:
		return []string{"phone", "sms", "email", "chat"}
	case SeverityHigh:
		return []string{"sms", "email", "chat"}
	case SeverityMedium:
		return []string{"email", "chat"}
	default:
		return []string{"email"}
	}
}

// CorrelatedIncident references the member alerts of a significant cluster.
type CorrelatedIncident struct {
	IncidentID     string    `json:"incident_id"`
	CorrelationKey string    `json:"correlation_key"`
	AlertIDs       []string  `json:"alert_ids"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	DetectedAt     time.Time `json:"detected_at"`
}

// StormSignal is the single event emitted in place of individual alerts
// once the storm threshold is crossed.
type StormSignal struct {
	Count      int       `json:"count"`
	Threshold  int       `json:"threshold"`
	WindowSecs int       `json:"window_seconds"`
	DetectedAt time.Time `json:"detected_at"`
}

// BaselineSummary is the immutable per-metric snapshot served to dashboards.
type BaselineSummary struct {
	Metric        string    `json:"metric"`
	Mean          float64   `json:"mean"`
	StdDev        float64   `json:"std_dev"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	SampleCount   int64     `json:"sample_count"`
	WindowSize    int       `json:"current_window_size"`
	P50           float64   `json:"p50"`
	P95           float64   `json:"p95"`
	P99           float64   `json:"p99"`
	Trend         int       `json:"trend"`
	HasEnoughData bool      `json:"has_enough_data"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Service health states tracked by the health monitor.
const (
	HealthHealthy   = "HEALTHY"
	HealthDegraded  = "DEGRADED"
	HealthUnhealthy = "UNHEALTHY"
)

// SystemHealth is the aggregate snapshot: score in [0,100] per the
// (healthy*100 + degraded*50) / total formula.
type SystemHealth struct {
	Score          float64   `json:"score"`
	HealthyCount   int       `json:"healthy_count"`
	DegradedCount  int       `json:"degraded_count"`
	UnhealthyCount int       `json:"unhealthy_count"`
	ComputedAt     time.Time `json:"computed_at"`
}

// EngineStats exposes the operational counters for the admin surface.
type EngineStats struct {
	Processed    int64  `json:"processed"`
	Errors       int64  `json:"errors"`
	DeadLettered int64  `json:"dead_lettered"`
	Deduplicated int64  `json:"deduplicated"`
	StormDropped int64  `json:"storm_dropped"`
	Escalations  int64  `json:"escalations"`
	Incidents    int64  `json:"incidents"`
	BreakerState string `json:"breaker_state"`
}

// HealthResponse is the liveness payload for /healthz.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  struct {
		Database bool `json:"database"`
		MQTT     bool `json:"mqtt"`
	} `json:"services"`
}
