package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"
)

// EnqueueEvent records an event inside the caller's transaction.
func (tx *Tx) EnqueueEvent(ctx context.Context, eventType string, bookingID int64, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	query := `INSERT INTO event_outbox (event_type, booking_id, payload, status, retry_count, created_at)
              VALUES (?, ?, ?, ?, 0, ?)`
	if _, err := tx.tx.ExecContext(ctx, query, eventType, bookingID, string(data), models.OutboxPending, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}
	return nil
}

func scanOutbox(rows *sql.Rows) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	for rows.Next() {
		var e models.OutboxEvent
		var lastError sql.NullString
		var bookingID sql.NullInt64
		var processed, nextRetry sql.NullTime
		err := rows.Scan(&e.ID, &e.EventType, &bookingID, &e.Payload, &e.Status, &e.RetryCount,
			&lastError, &e.CreatedAt, &processed, &nextRetry)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		e.BookingID = bookingID.Int64
		if lastError.Valid {
			s := lastError.String
			e.LastError = &s
		}
		e.ProcessedAt = timePtr(processed)
		e.NextRetryAt = timePtr(nextRetry)
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetPendingEvents returns events due for delivery, oldest first.
func (db *DB) GetPendingEvents(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error) {
	query := `SELECT id, event_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM event_outbox
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY id ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.OutboxPending, models.OutboxRetry, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()
	return scanOutbox(rows)
}

func (db *DB) UpdateEventStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	switch status {
	case models.OutboxRetry:
		query = `UPDATE event_outbox SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, nullString(errMsg), nullTime(nextRetryAt), id}
	case models.OutboxCompleted, models.OutboxFailed:
		query = `UPDATE event_outbox SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
		args = []interface{}{status, nullString(errMsg), now, id}
	default:
		query = `UPDATE event_outbox SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, nullString(errMsg), nullTime(nextRetryAt), id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}
	return nil
}

func (db *DB) GetFailedEvents(ctx context.Context) ([]models.OutboxEvent, error) {
	query := `SELECT id, event_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM event_outbox WHERE status = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, models.OutboxFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed events: %w", err)
	}
	defer rows.Close()
	return scanOutbox(rows)
}

// RequeueEvent moves a failed event back to pending with a fresh retry budget.
func (db *DB) RequeueEvent(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx,
		`UPDATE event_outbox SET status = ?, retry_count = 0, last_error = NULL, next_retry_at = NULL, processed_at = NULL
         WHERE id = ? AND status = ?`,
		models.OutboxPending, id, models.OutboxFailed)
	if err != nil {
		return fmt.Errorf("failed to requeue event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("failed event", id)
	}
	return nil
}
