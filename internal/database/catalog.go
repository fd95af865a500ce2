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

// UpsertHotel writes the hotel and its room types. Existing rows are updated
// in place; inventory rows are left untouched.
func (db *DB) UpsertHotel(ctx context.Context, hotel *models.Hotel) error {
	return db.InTx(ctx, func(tx *Tx) error {
		now := time.Now().UTC()
		query := `INSERT INTO hotels (id, name, commission_rate, hourly_min_hours, hourly_max_hours,
                    hourly_open_hour, hourly_close_hour, is_active, created_at, updated_at)
                  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                  ON CONFLICT(id) DO UPDATE SET
                    name = excluded.name,
                    commission_rate = excluded.commission_rate,
                    hourly_min_hours = excluded.hourly_min_hours,
                    hourly_max_hours = excluded.hourly_max_hours,
                    hourly_open_hour = excluded.hourly_open_hour,
                    hourly_close_hour = excluded.hourly_close_hour,
                    is_active = excluded.is_active,
                    updated_at = excluded.updated_at`
		if _, err := tx.tx.ExecContext(ctx, query,
			hotel.ID, hotel.Name, hotel.CommissionRate, hotel.HourlyMinHours, hotel.HourlyMaxHours,
			hotel.HourlyOpenHour, hotel.HourlyCloseHour, hotel.IsActive, now, now,
		); err != nil {
			return fmt.Errorf("failed to upsert hotel %d: %w", hotel.ID, err)
		}

		for i := range hotel.RoomTypes {
			rt := &hotel.RoomTypes[i]
			rt.HotelID = hotel.ID
			if err := upsertRoomType(ctx, tx.tx, rt, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertRoomType(ctx context.Context, q queryer, rt *models.RoomType, now time.Time) error {
	query := `INSERT INTO room_types (id, hotel_id, name, base_price_daily, base_price_hourly, max_guests,
                max_extra_guests, extra_guest_charge, total_rooms, min_hours, max_hours, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                hotel_id = excluded.hotel_id,
                name = excluded.name,
                base_price_daily = excluded.base_price_daily,
                base_price_hourly = excluded.base_price_hourly,
                max_guests = excluded.max_guests,
                max_extra_guests = excluded.max_extra_guests,
                extra_guest_charge = excluded.extra_guest_charge,
                total_rooms = excluded.total_rooms,
                min_hours = excluded.min_hours,
                max_hours = excluded.max_hours,
                is_active = excluded.is_active,
                updated_at = excluded.updated_at`
	_, err := q.ExecContext(ctx, query,
		rt.ID, rt.HotelID, rt.Name, rt.BasePriceDaily, nullInt64(rt.BasePriceHourly), rt.MaxGuests,
		rt.MaxExtraGuests, rt.ExtraGuestCharge, rt.TotalRooms, nullInt(rt.MinHours), nullInt(rt.MaxHours),
		rt.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert room type %d: %w", rt.ID, err)
	}
	return nil
}

func (db *DB) GetHotel(ctx context.Context, id int64) (*models.Hotel, error) {
	return getHotel(ctx, db, id)
}

func (tx *Tx) GetHotel(ctx context.Context, id int64) (*models.Hotel, error) {
	return getHotel(ctx, tx.tx, id)
}

func getHotel(ctx context.Context, q queryer, id int64) (*models.Hotel, error) {
	var h models.Hotel
	query := `SELECT id, name, commission_rate, hourly_min_hours, hourly_max_hours, hourly_open_hour,
                     hourly_close_hour, is_active, created_at, updated_at
              FROM hotels WHERE id = ?`
	err := q.QueryRowContext(ctx, query, id).Scan(
		&h.ID, &h.Name, &h.CommissionRate, &h.HourlyMinHours, &h.HourlyMaxHours, &h.HourlyOpenHour,
		&h.HourlyCloseHour, &h.IsActive, &h.CreatedAt, &h.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("hotel", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hotel: %w", err)
	}
	return &h, nil
}

func (db *DB) ListHotels(ctx context.Context) ([]*models.Hotel, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM hotels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hotels: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan hotel id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hotels := make([]*models.Hotel, 0, len(ids))
	for _, id := range ids {
		h, err := db.GetHotel(ctx, id)
		if err != nil {
			return nil, err
		}
		hotels = append(hotels, h)
	}
	return hotels, nil
}

const roomTypeColumns = `id, hotel_id, name, base_price_daily, base_price_hourly, max_guests, max_extra_guests,
                         extra_guest_charge, total_rooms, min_hours, max_hours, is_active, created_at, updated_at`

func scanRoomType(scan func(dest ...interface{}) error) (*models.RoomType, error) {
	var rt models.RoomType
	var hourly, minHours, maxHours sql.NullInt64
	if err := scan(
		&rt.ID, &rt.HotelID, &rt.Name, &rt.BasePriceDaily, &hourly, &rt.MaxGuests, &rt.MaxExtraGuests,
		&rt.ExtraGuestCharge, &rt.TotalRooms, &minHours, &maxHours, &rt.IsActive, &rt.CreatedAt, &rt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if hourly.Valid {
		v := hourly.Int64
		rt.BasePriceHourly = &v
	}
	if minHours.Valid {
		v := int(minHours.Int64)
		rt.MinHours = &v
	}
	if maxHours.Valid {
		v := int(maxHours.Int64)
		rt.MaxHours = &v
	}
	return &rt, nil
}

func (db *DB) GetRoomType(ctx context.Context, id int64) (*models.RoomType, error) {
	return getRoomType(ctx, db, id)
}

func (tx *Tx) GetRoomType(ctx context.Context, id int64) (*models.RoomType, error) {
	return getRoomType(ctx, tx.tx, id)
}

func getRoomType(ctx context.Context, q queryer, id int64) (*models.RoomType, error) {
	query := `SELECT ` + roomTypeColumns + ` FROM room_types WHERE id = ?`
	rt, err := scanRoomType(q.QueryRowContext(ctx, query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("room type", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room type: %w", err)
	}
	return rt, nil
}

// ListRoomTypes returns the hotel's room types, optionally only active ones.
func (db *DB) ListRoomTypes(ctx context.Context, hotelID int64, activeOnly bool) ([]*models.RoomType, error) {
	query := `SELECT ` + roomTypeColumns + ` FROM room_types WHERE hotel_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, hotelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room types: %w", err)
	}
	defer rows.Close()

	var roomTypes []*models.RoomType
	for rows.Next() {
		rt, err := scanRoomType(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room type: %w", err)
		}
		roomTypes = append(roomTypes, rt)
	}
	return roomTypes, rows.Err()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
