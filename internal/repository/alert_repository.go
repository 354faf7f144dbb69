package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinMonitorAPI/internal/models"

	"github.com/lib/pq"
)

// IAlertRepository is the durable history mirror of the in-memory active
// registry. The engine is the source of truth for live state; this table
// is the audit trail dashboards and reports read from.
type IAlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	GetHistory(ctx context.Context, limit int, offset int) ([]models.Alert, error)
	Acknowledge(ctx context.Context, id string) error
	Resolve(ctx context.Context, id string) error
	DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error)
	GetStatistics(ctx context.Context) (map[string]int, error)
}

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts the history row for a newly created alert.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (
			id, alert_type, severity, status, metric, service, endpoint,
			message, value, threshold, anomaly_score, escalation_level,
			escalation_target, correlated_alert_ids, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(
		ctx, query,
		alert.ID,
		alert.Type,
		alert.Severity,
		alert.Status,
		alert.Metric,
		alert.Service,
		alert.Endpoint,
		alert.Message,
		alert.Value,
		alert.Threshold,
		alert.AnomalyScore,
		alert.EscalationLevel,
		alert.EscalationTarget,
		pq.Array(alert.CorrelatedAlertIDs),
		alert.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// GetByID retrieves a single alert history row.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `
		SELECT id, alert_type, severity, status, metric, service, endpoint,
		       message, value, threshold, anomaly_score, escalation_level,
		       escalation_target, correlated_alert_ids, created_at,
		       acknowledged_at, resolved_at, escalated_at
		FROM alerts
		WHERE id = $1
	`

	alert := &models.Alert{}
	var correlated pq.StringArray
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&alert.ID,
		&alert.Type,
		&alert.Severity,
		&alert.Status,
		&alert.Metric,
		&alert.Service,
		&alert.Endpoint,
		&alert.Message,
		&alert.Value,
		&alert.Threshold,
		&alert.AnomalyScore,
		&alert.EscalationLevel,
		&alert.EscalationTarget,
		&correlated,
		&alert.CreatedAt,
		&alert.AcknowledgedAt,
		&alert.ResolvedAt,
		&alert.EscalatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert by id: %w", err)
	}

	alert.CorrelatedAlertIDs = correlated
	return alert, nil
}

// GetHistory returns a paginated list of all alerts, newest first.
func (r *AlertRepository) GetHistory(ctx context.Context, limit int, offset int) ([]models.Alert, error) {
	query := `
		SELECT id, alert_type, severity, status, metric, service, endpoint,
		       message, value, threshold, anomaly_score, escalation_level,
		       escalation_target, correlated_alert_ids, created_at,
		       acknowledged_at, resolved_at, escalated_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert history: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var correlated pq.StringArray
		err := rows.Scan(
			&a.ID, &a.Type, &a.Severity, &a.Status, &a.Metric, &a.Service,
			&a.Endpoint, &a.Message, &a.Value, &a.Threshold, &a.AnomalyScore,
			&a.EscalationLevel, &a.EscalationTarget, &correlated,
			&a.CreatedAt, &a.AcknowledgedAt, &a.ResolvedAt, &a.EscalatedAt,
		)
		if err != nil {
			return nil, err
		}
		a.CorrelatedAlertIDs = correlated
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Acknowledge mirrors the in-memory acknowledgment into history.
func (r *AlertRepository) Acknowledge(ctx context.Context, id string) error {
	query := `UPDATE alerts SET status = $1, acknowledged_at = $2 WHERE id = $3 AND status != $4`
	_, err := r.db.ExecContext(ctx, query, models.StatusAcknowledged, time.Now(), id, models.StatusResolved)
	return err
}

// Resolve mirrors the in-memory resolution into history.
func (r *AlertRepository) Resolve(ctx context.Context, id string) error {
	query := `UPDATE alerts SET status = $1, resolved_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, models.StatusResolved, time.Now(), id)
	return err
}

// DeleteOld removes resolved alerts older than the retention age.
func (r *AlertRepository) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM alerts WHERE status = $1 AND created_at < $2`
	cutoff := time.Now().Add(-olderThan)
	result, err := r.db.ExecContext(ctx, query, models.StatusResolved, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetStatistics returns a count of unresolved alerts grouped by severity.
func (r *AlertRepository) GetStatistics(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM alerts
		WHERE status != $1
		GROUP BY severity
	`
	rows, err := r.db.QueryContext(ctx, query, models.StatusResolved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var sev string
		var count int
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, err
		}
		stats[sev] = count
	}
	return stats, rows.Err()
}
