package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"
)

const paymentColumns = `id, booking_id, gateway, gateway_order_id, gateway_payment_id, method, amount, currency,
                        status, refund_amount, metadata, created_at, updated_at`

func scanPayment(scan func(dest ...interface{}) error) (*models.Payment, error) {
	var p models.Payment
	var gatewayPaymentID, method, metadata sql.NullString
	if err := scan(
		&p.ID, &p.BookingID, &p.Gateway, &p.GatewayOrderID, &gatewayPaymentID, &method, &p.Amount, &p.Currency,
		&p.Status, &p.RefundAmount, &metadata, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.GatewayPaymentID = gatewayPaymentID.String
	p.Method = method.String
	if metadata.Valid && metadata.String != "" {
		p.Metadata = json.RawMessage(metadata.String)
	}
	return &p, nil
}

func metadataValue(m json.RawMessage) sql.NullString {
	if len(m) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(m), Valid: true}
}

func (db *DB) CreatePayment(ctx context.Context, p *models.Payment) error {
	query := `INSERT INTO payments (booking_id, gateway, gateway_order_id, method, amount, currency, status,
                refund_amount, metadata, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		p.BookingID, p.Gateway, p.GatewayOrderID, nullString(p.Method), p.Amount, p.Currency, p.Status,
		metadataValue(p.Metadata), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func getPayment(ctx context.Context, q queryer, id int64) (*models.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("payment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func latestPayment(ctx context.Context, q queryer, bookingID int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = ? ORDER BY id DESC LIMIT 1`
	p, err := scanPayment(q.QueryRowContext(ctx, query, bookingID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("payment for booking", bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest payment: %w", err)
	}
	return p, nil
}

func (db *DB) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return getPayment(ctx, db, id)
}

func (tx *Tx) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return getPayment(ctx, tx.tx, id)
}

// LatestPayment returns the authoritative payment of a booking.
func (db *DB) LatestPayment(ctx context.Context, bookingID int64) (*models.Payment, error) {
	return latestPayment(ctx, db, bookingID)
}

func (tx *Tx) LatestPayment(ctx context.Context, bookingID int64) (*models.Payment, error) {
	return latestPayment(ctx, tx.tx, bookingID)
}

// MarkPaymentFailed records a declined attempt. A payment that was captured
// in the meantime is left alone.
func (db *DB) MarkPaymentFailed(ctx context.Context, id int64, gatewayPaymentID string, metadata json.RawMessage) error {
	return markPaymentFailed(ctx, db, id, gatewayPaymentID, metadata)
}

func (tx *Tx) MarkPaymentFailed(ctx context.Context, id int64, gatewayPaymentID string, metadata json.RawMessage) error {
	return markPaymentFailed(ctx, tx.tx, id, gatewayPaymentID, metadata)
}

func markPaymentFailed(ctx context.Context, q queryer, id int64, gatewayPaymentID string, metadata json.RawMessage) error {
	query := `UPDATE payments SET status = ?, gateway_payment_id = COALESCE(?, gateway_payment_id),
                metadata = COALESCE(?, metadata), updated_at = ?
              WHERE id = ? AND status IN (?, ?)`
	result, err := q.ExecContext(ctx, query,
		models.PaymentStatusFailed, nullString(gatewayPaymentID), metadataValue(metadata), time.Now().UTC(),
		id, models.PaymentStatusCreated, models.PaymentStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CapturePayment moves a created or failed payment to captured.
func (tx *Tx) CapturePayment(ctx context.Context, p *models.Payment, now time.Time) error {
	query := `UPDATE payments SET status = ?, gateway_payment_id = ?, method = COALESCE(?, method),
                metadata = COALESCE(?, metadata), updated_at = ?
              WHERE id = ? AND status IN (?, ?)`
	result, err := tx.tx.ExecContext(ctx, query,
		models.PaymentStatusCaptured, nullString(p.GatewayPaymentID), nullString(p.Method), metadataValue(p.Metadata),
		now.UTC(), p.ID, models.PaymentStatusCreated, models.PaymentStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to capture payment: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}
	p.Status = models.PaymentStatusCaptured
	p.UpdatedAt = now.UTC()
	return nil
}

// ReserveRefund adds amount to the cumulative refund if it still fits under
// the captured amount, and returns the updated payment.
func (tx *Tx) ReserveRefund(ctx context.Context, paymentID, amount int64) (*models.Payment, error) {
	p, err := getPayment(ctx, tx.tx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusCaptured && p.Status != models.PaymentStatusPartiallyRefunded {
		return nil, &domain.StateError{From: p.Status, Event: "refund"}
	}
	if amount > p.Refundable() {
		return nil, domain.Invalid("amount", "refund of %d exceeds refundable amount %d", amount, p.Refundable())
	}
	return tx.setRefunded(ctx, p, p.RefundAmount+amount)
}

// CompensateRefund undoes a reserved refund the gateway rejected.
func (tx *Tx) CompensateRefund(ctx context.Context, paymentID, amount int64) (*models.Payment, error) {
	p, err := getPayment(ctx, tx.tx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.RefundAmount < amount {
		return nil, ErrConcurrentModification
	}
	return tx.setRefunded(ctx, p, p.RefundAmount-amount)
}

// setRefunded stores the new cumulative refund of p if nobody changed it
// since p was read.
func (tx *Tx) setRefunded(ctx context.Context, p *models.Payment, refunded int64) (*models.Payment, error) {
	now := time.Now().UTC()
	status := models.RefundStatus(p.Amount, refunded)
	result, err := tx.tx.ExecContext(ctx,
		`UPDATE payments SET refund_amount = ?, status = ?, updated_at = ? WHERE id = ? AND refund_amount = ?`,
		refunded, status, now, p.ID, p.RefundAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update refund amount: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrConcurrentModification
	}
	p.RefundAmount = refunded
	p.Status = status
	p.UpdatedAt = now
	return p, nil
}
