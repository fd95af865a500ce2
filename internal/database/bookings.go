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

var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

const bookingColumns = `id, idempotency_key, guest_name, guest_email, guest_phone, hotel_id, room_type_id,
                        booking_type, check_in, check_out, start_time, num_hours, num_rooms, num_guests,
                        room_total, extra_guest_total, taxes, total_amount, commission_rate,
                        commission_amount, hotel_payout, status, payment_status, cancellation_reason,
                        inventory_released, expires_at, confirmed_at, cancelled_at, checked_in_at,
                        checked_out_at, created_at, updated_at, version`

func scanBooking(scan func(dest ...interface{}) error) (*models.Booking, error) {
	var b models.Booking
	var email, phone, startTime, reason sql.NullString
	var checkIn, checkOut string
	var expires, confirmed, cancelled, checkedIn, checkedOut sql.NullTime
	err := scan(
		&b.ID, &b.IdempotencyKey, &b.GuestName, &email, &phone, &b.HotelID, &b.RoomTypeID,
		&b.BookingType, &checkIn, &checkOut, &startTime, &b.NumHours, &b.NumRooms, &b.NumGuests,
		&b.RoomTotal, &b.ExtraGuestTotal, &b.Taxes, &b.TotalAmount, &b.CommissionRate,
		&b.CommissionAmount, &b.HotelPayout, &b.Status, &b.PaymentStatus, &reason,
		&b.InventoryReleased, &expires, &confirmed, &cancelled, &checkedIn,
		&checkedOut, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	if b.CheckIn, err = models.ParseDay(checkIn); err != nil {
		return nil, fmt.Errorf("failed to parse check-in %s: %w", checkIn, err)
	}
	if b.CheckOut, err = models.ParseDay(checkOut); err != nil {
		return nil, fmt.Errorf("failed to parse check-out %s: %w", checkOut, err)
	}
	b.GuestEmail = email.String
	b.GuestPhone = phone.String
	b.StartTime = startTime.String
	b.CancellationReason = reason.String
	b.ExpiresAt = timePtr(expires)
	b.ConfirmedAt = timePtr(confirmed)
	b.CancelledAt = timePtr(cancelled)
	b.CheckedInAt = timePtr(checkedIn)
	b.CheckedOutAt = timePtr(checkedOut)
	return &b, nil
}

func getBooking(ctx context.Context, q queryer, id int64) (*models.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("booking", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func bookingByKey(ctx context.Context, q queryer, key string) (*models.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key = ?`, key).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by idempotency key: %w", err)
	}
	return b, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func (tx *Tx) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, tx.tx, id)
}

// BookingByKey returns nil, nil when no booking carries the key.
func (db *DB) BookingByKey(ctx context.Context, key string) (*models.Booking, error) {
	return bookingByKey(ctx, db, key)
}

func (tx *Tx) BookingByKey(ctx context.Context, key string) (*models.Booking, error) {
	return bookingByKey(ctx, tx.tx, key)
}

// InsertBooking stores a new booking and fills in its id and version.
func (tx *Tx) InsertBooking(ctx context.Context, b *models.Booking) error {
	query := `INSERT INTO bookings (
                idempotency_key, guest_name, guest_email, guest_phone, hotel_id, room_type_id,
                booking_type, check_in, check_out, start_time, num_hours, num_rooms, num_guests,
                room_total, extra_guest_total, taxes, total_amount, commission_rate,
                commission_amount, hotel_payout, status, payment_status, inventory_released,
                expires_at, created_at, updated_at, version
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, 1)`
	now := b.CreatedAt.UTC()
	result, err := tx.tx.ExecContext(ctx, query,
		b.IdempotencyKey, b.GuestName, nullString(b.GuestEmail), nullString(b.GuestPhone), b.HotelID, b.RoomTypeID,
		b.BookingType, b.CheckIn.Format(models.DateLayout), b.CheckOut.Format(models.DateLayout),
		nullString(b.StartTime), b.NumHours, b.NumRooms, b.NumGuests,
		b.RoomTotal, b.ExtraGuestTotal, b.Taxes, b.TotalAmount, b.CommissionRate,
		b.CommissionAmount, b.HotelPayout, b.Status, b.PaymentStatus,
		nullTime(b.ExpiresAt), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	b.UpdatedAt = now
	b.Version = 1
	return nil
}

// UpdateBookingWithVersion persists the mutable lifecycle fields of b if the
// stored version still equals b.Version, then bumps b.Version.
func (tx *Tx) UpdateBookingWithVersion(ctx context.Context, b *models.Booking, now time.Time) error {
	query := `UPDATE bookings SET status = ?, payment_status = ?, cancellation_reason = ?, inventory_released = ?,
                confirmed_at = ?, cancelled_at = ?, checked_in_at = ?, checked_out_at = ?,
                updated_at = ?, version = version + 1
              WHERE id = ? AND version = ?`
	result, err := tx.tx.ExecContext(ctx, query,
		b.Status, b.PaymentStatus, nullString(b.CancellationReason), b.InventoryReleased,
		nullTime(b.ConfirmedAt), nullTime(b.CancelledAt), nullTime(b.CheckedInAt), nullTime(b.CheckedOutAt),
		now.UTC(), b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}
	b.Version++
	b.UpdatedAt = now.UTC()
	return nil
}

// SetBookingPaymentStatus updates only the payment mirror field.
func (db *DB) SetBookingPaymentStatus(ctx context.Context, id int64, status string) error {
	return setBookingPaymentStatus(ctx, db, id, status)
}

func (tx *Tx) SetBookingPaymentStatus(ctx context.Context, id int64, status string) error {
	return setBookingPaymentStatus(ctx, tx.tx, id, status)
}

func setBookingPaymentStatus(ctx context.Context, q queryer, id int64, status string) error {
	query := `UPDATE bookings SET payment_status = ?, updated_at = ?, version = version + 1 WHERE id = ?`
	result, err := q.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update booking payment status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.NotFound("booking", id)
	}
	return nil
}

// ExpiredPendingBookings lists ids of PENDING bookings whose hold ran out.
func (db *DB) ExpiredPendingBookings(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	query := `SELECT id FROM bookings
              WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?
              ORDER BY expires_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.StatusPending, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired bookings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan booking id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetBookingsByDateRange returns a hotel's bookings with check-in in [start, end].
func (db *DB) GetBookingsByDateRange(ctx context.Context, hotelID int64, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE hotel_id = ? AND check_in >= ? AND check_in <= ?
              ORDER BY check_in ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, hotelID, start.Format(models.DateLayout), end.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// ReservedRooms sums rooms held by non-terminal bookings on date. It is the
// cross-check for the inventory counters.
func (db *DB) ReservedRooms(ctx context.Context, roomTypeID int64, date time.Time) (int, error) {
	query := `SELECT COALESCE(SUM(num_rooms), 0) FROM bookings
              WHERE room_type_id = ? AND booking_type = ? AND check_in <= ? AND check_out > ?
              AND status IN (?, ?, ?)`
	d := date.Format(models.DateLayout)
	var count int
	err := db.QueryRowContext(ctx, query, roomTypeID, models.BookingTypeDaily, d, d,
		models.StatusPending, models.StatusConfirmed, models.StatusCheckedIn).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get reserved rooms: %w", err)
	}
	return count, nil
}
