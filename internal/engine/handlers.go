package engine

import (
	"fmt"

	"FinMonitorAPI/internal/models"
)

// alertEventTypes maps inbound event-type tags to the alert type created
// for them. Metric observations are routed separately to the baseline
// registry.
var alertEventTypes = map[string]string{
	models.EventThreshold:    models.TypeThreshold,
	models.EventAnomaly:      models.TypeAnomaly,
	models.EventErrorRate:    models.TypeErrorRate,
	models.EventLatency:      models.TypeLatency,
	models.EventAvailability: models.TypeAvailability,
	models.EventCapacity:     models.TypeCapacity,
	models.EventSecurity:     models.TypeSecurity,
	models.EventCompliance:   models.TypeCompliance,
	models.EventBusiness:     models.TypeBusiness,
	models.EventCustom:       models.TypeCustom,
}

func decodeMetricObservation(env models.Envelope) (models.MetricObservation, error) {
	data := env.Fields

	metric, ok := data["metric"].(string)
	if !ok || metric == "" {
		return models.MetricObservation{}, fmt.Errorf("missing metric name")
	}

	value, ok := data["value"].(float64)
	if !ok {
		return models.MetricObservation{}, fmt.Errorf("missing or non-numeric value")
	}

	obs := models.MetricObservation{
		Metric:    metric,
		Value:     value,
		Timestamp: env.Timestamp,
	}
	if service, ok := data["service"].(string); ok {
		obs.Service = service
	}

	return obs, nil
}

func decodeAlertEvent(env models.Envelope, alertType string) (models.AlertEvent, error) {
	data := env.Fields

	ev := models.AlertEvent{Type: alertType}

	severity, _ := data["severity"].(string)
	if !models.ValidSeverity(severity) {
		return models.AlertEvent{}, fmt.Errorf("invalid severity %q", severity)
	}
	ev.Severity = severity

	metric, _ := data["metric"].(string)
	service, _ := data["service"].(string)
	if metric == "" && service == "" {
		return models.AlertEvent{}, fmt.Errorf("event carries neither metric nor service")
	}
	ev.Metric = metric
	ev.Service = service

	if endpoint, ok := data["endpoint"].(string); ok {
		ev.Endpoint = endpoint
	}
	if message, ok := data["message"].(string); ok {
		ev.Message = message
	}
	if value, ok := data["value"].(float64); ok {
		ev.Value = value
	}
	if threshold, ok := data["threshold"].(float64); ok {
		ev.Threshold = threshold
	}

	if rawTags, ok := data["tags"].(map[string]interface{}); ok {
		ev.Tags = make(map[string]string, len(rawTags))
		for k, v := range rawTags {
			if s, ok := v.(string); ok {
				ev.Tags[k] = s
			}
		}
	}

	// Type-specific numeric payloads ride along as tags so downstream
	// consumers keep them without a per-type schema.
	for _, key := range []string{"error_rate", "p95", "p99", "latency_ms", "capacity_pct", "availability_pct"} {
		if v, ok := data[key].(float64); ok {
			if ev.Tags == nil {
				ev.Tags = make(map[string]string)
			}
			ev.Tags[key] = fmt.Sprintf("%g", v)
		}
	}

	return ev, nil
}
