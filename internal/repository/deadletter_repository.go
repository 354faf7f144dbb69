package repository

import (
	"context"
	"database/sql"
	"fmt"

	"FinMonitorAPI/internal/models"
)

// IDeadLetterRepository is the audit table for events that failed
// processing, kept for manual or automated reprocessing.
type IDeadLetterRepository interface {
	Create(ctx context.Context, msg *models.DeadLetterMessage) error
	GetRecent(ctx context.Context, limit int) ([]models.DeadLetterMessage, error)
}

type DeadLetterRepository struct {
	db *sql.DB
}

func NewDeadLetterRepository(db *sql.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

// Create inserts the audit record. The original payload is stored
// byte-for-byte.
func (r *DeadLetterRepository) Create(ctx context.Context, msg *models.DeadLetterMessage) error {
	query := `
		INSERT INTO dead_letters (
			original_message, original_topic, error_reason, error_class,
			error_message, error_timestamp, correlation_id, trace_id, consumer_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(
		ctx, query,
		msg.OriginalMessage,
		msg.OriginalTopic,
		msg.ErrorReason,
		msg.ErrorClass,
		msg.ErrorMessage,
		msg.ErrorTimestamp,
		msg.CorrelationID,
		msg.TraceID,
		msg.ConsumerName,
	)

	if err != nil {
		return fmt.Errorf("failed to create dead letter record: %w", err)
	}

	return nil
}

// GetRecent returns the newest dead-lettered events.
func (r *DeadLetterRepository) GetRecent(ctx context.Context, limit int) ([]models.DeadLetterMessage, error) {
	query := `
		SELECT original_message, original_topic, error_reason, error_class,
		       error_message, error_timestamp, correlation_id, trace_id, consumer_name
		FROM dead_letters
		ORDER BY error_timestamp DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var msgs []models.DeadLetterMessage
	for rows.Next() {
		var m models.DeadLetterMessage
		err := rows.Scan(
			&m.OriginalMessage, &m.OriginalTopic, &m.ErrorReason, &m.ErrorClass,
			&m.ErrorMessage, &m.ErrorTimestamp, &m.CorrelationID, &m.TraceID, &m.ConsumerName,
		)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
