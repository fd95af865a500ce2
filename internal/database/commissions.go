package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"
)

const commissionColumns = `c.id, c.booking_id, c.hotel_id, c.rate, c.gross_amount, c.commission_amount,
                           c.hotel_payout, c.refunded_amount, c.status, c.created_at, c.updated_at`

func scanCommission(scan func(dest ...interface{}) error) (*models.Commission, error) {
	var c models.Commission
	err := scan(&c.ID, &c.BookingID, &c.HotelID, &c.Rate, &c.GrossAmount, &c.CommissionAmount,
		&c.HotelPayout, &c.RefundedAmount, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertCommission writes the ledger row for a booking once. inserted is
// false when the row already existed.
func (tx *Tx) InsertCommission(ctx context.Context, b *models.Booking, now time.Time) (inserted bool, err error) {
	query := `INSERT OR IGNORE INTO commissions (booking_id, hotel_id, rate, gross_amount, commission_amount,
                hotel_payout, refunded_amount, status, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`
	result, err := tx.tx.ExecContext(ctx, query,
		b.ID, b.HotelID, b.CommissionRate, b.TotalAmount, b.CommissionAmount, b.HotelPayout,
		models.CommissionAccrued, now.UTC(), now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert commission: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// SetCommissionRefunded mirrors the cumulative refund onto the ledger row.
func (tx *Tx) SetCommissionRefunded(ctx context.Context, bookingID, refunded int64) error {
	query := `UPDATE commissions SET refunded_amount = ?,
                status = CASE WHEN ? >= gross_amount THEN ? ELSE ? END,
                updated_at = ?
              WHERE booking_id = ?`
	_, err := tx.tx.ExecContext(ctx, query, refunded, refunded, models.CommissionReversed, models.CommissionAccrued,
		time.Now().UTC(), bookingID)
	if err != nil {
		return fmt.Errorf("failed to update commission refund: %w", err)
	}
	return nil
}

func (db *DB) GetCommission(ctx context.Context, bookingID int64) (*models.Commission, error) {
	query := `SELECT ` + commissionColumns + ` FROM commissions c WHERE c.booking_id = ?`
	c, err := scanCommission(db.QueryRowContext(ctx, query, bookingID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("commission for booking", bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commission: %w", err)
	}
	return c, nil
}

// CountCommissions is used to check that confirmation never writes twice.
func (db *DB) CountCommissions(ctx context.Context, bookingID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commissions WHERE booking_id = ?`, bookingID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count commissions: %w", err)
	}
	return n, nil
}

// CommissionsForHotel returns ledger rows for bookings checking in within [from, to].
func (db *DB) CommissionsForHotel(ctx context.Context, hotelID int64, from, to time.Time) ([]*models.Commission, error) {
	query := `SELECT ` + commissionColumns + ` FROM commissions c
              JOIN bookings b ON b.id = c.booking_id
              WHERE c.hotel_id = ? AND b.check_in >= ? AND b.check_in <= ?
              ORDER BY b.check_in ASC, c.booking_id ASC`
	rows, err := db.QueryContext(ctx, query, hotelID, from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get commissions: %w", err)
	}
	defer rows.Close()

	var result []*models.Commission
	for rows.Next() {
		c, err := scanCommission(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commission: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
