package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"
)

func scanInventory(scan func(dest ...interface{}) error) (models.RoomInventory, error) {
	var inv models.RoomInventory
	var dateStr string
	var price sql.NullInt64
	if err := scan(&inv.RoomTypeID, &dateStr, &inv.AvailableCount, &price, &inv.MinStayNights, &inv.IsClosed, &inv.Version); err != nil {
		return inv, err
	}
	d, err := models.ParseDay(dateStr)
	if err != nil {
		return inv, fmt.Errorf("failed to parse inventory date %s: %w", dateStr, err)
	}
	inv.Date = d
	if price.Valid {
		v := price.Int64
		inv.PriceOverride = &v
	}
	return inv, nil
}

func scanSlot(scan func(dest ...interface{}) error) (models.HourlySlot, error) {
	var s models.HourlySlot
	var dateStr string
	var price sql.NullInt64
	if err := scan(&s.RoomTypeID, &dateStr, &s.SlotStart, &s.SlotEnd, &s.AvailableCount, &price, &s.IsClosed, &s.Version); err != nil {
		return s, err
	}
	d, err := models.ParseDay(dateStr)
	if err != nil {
		return s, fmt.Errorf("failed to parse slot date %s: %w", dateStr, err)
	}
	s.Date = d
	if price.Valid {
		v := price.Int64
		s.PriceOverride = &v
	}
	return s, nil
}

// DailyInventory returns stored rows for [from, to) keyed by date. Days
// without a row are absent from the map.
func (db *DB) DailyInventory(ctx context.Context, roomTypeID int64, from, to time.Time) (map[string]models.RoomInventory, error) {
	query := `SELECT room_type_id, date, available_count, price_override, min_stay_nights, is_closed, version
              FROM room_inventory WHERE room_type_id = ? AND date >= ? AND date < ?`
	rows, err := db.QueryContext(ctx, query, roomTypeID, from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	defer rows.Close()

	result := make(map[string]models.RoomInventory)
	for rows.Next() {
		inv, err := scanInventory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		result[inv.Date.Format(models.DateLayout)] = inv
	}
	return result, rows.Err()
}

// HourlySlots returns stored cells of one day keyed by slot start.
func (db *DB) HourlySlots(ctx context.Context, roomTypeID int64, date time.Time) (map[string]models.HourlySlot, error) {
	query := `SELECT room_type_id, date, slot_start, slot_end, available_count, price_override, is_closed, version
              FROM hourly_slots WHERE room_type_id = ? AND date = ?`
	rows, err := db.QueryContext(ctx, query, roomTypeID, date.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get hourly slots: %w", err)
	}
	defer rows.Close()

	result := make(map[string]models.HourlySlot)
	for rows.Next() {
		s, err := scanSlot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hourly slot: %w", err)
		}
		result[s.SlotStart] = s
	}
	return result, rows.Err()
}

// SetDailyOverride changes price, closure and minimum stay of one night.
// A new row starts with the full room count; an existing counter is kept.
func (db *DB) SetDailyOverride(ctx context.Context, rt *models.RoomType, o models.InventoryOverride) error {
	if o.PriceOverride != nil && *o.PriceOverride < 0 {
		return domain.Invalid("price_override", "must not be negative")
	}
	if o.MinStayNights < 1 {
		o.MinStayNights = 1
	}
	query := `INSERT INTO room_inventory (room_type_id, date, available_count, price_override, min_stay_nights, is_closed, version)
              VALUES (?, ?, ?, ?, ?, ?, 1)
              ON CONFLICT(room_type_id, date) DO UPDATE SET
                price_override = excluded.price_override,
                min_stay_nights = excluded.min_stay_nights,
                is_closed = excluded.is_closed,
                version = version + 1`
	_, err := db.ExecContext(ctx, query, rt.ID, o.Date.Format(models.DateLayout), rt.TotalRooms,
		nullInt64(o.PriceOverride), o.MinStayNights, o.IsClosed)
	if err != nil {
		return fmt.Errorf("failed to set inventory override: %w", err)
	}
	return nil
}

// SetHourlyOverride changes price and closure of one hour cell, keeping
// whatever is already held in it.
func (db *DB) SetHourlyOverride(ctx context.Context, rt *models.RoomType, o models.InventoryOverride) error {
	if o.PriceOverride != nil && *o.PriceOverride < 0 {
		return domain.Invalid("price_override", "must not be negative")
	}
	hour, err := models.ParseHour(o.SlotStart)
	if err != nil {
		return domain.Invalid("slot_start", "%v", err)
	}
	query := `INSERT INTO hourly_slots (room_type_id, date, slot_start, slot_end, available_count, price_override, is_closed, version)
              VALUES (?, ?, ?, ?, ?, ?, ?, 1)
              ON CONFLICT(room_type_id, date, slot_start) DO UPDATE SET
                price_override = excluded.price_override,
                is_closed = excluded.is_closed,
                version = version + 1`
	_, err = db.ExecContext(ctx, query, rt.ID, o.Date.Format(models.DateLayout), models.HourLabel(hour),
		models.HourLabel(hour+1), rt.TotalRooms, nullInt64(o.PriceOverride), o.IsClosed)
	if err != nil {
		return fmt.Errorf("failed to set hourly override: %w", err)
	}
	return nil
}

// ReserveNights takes numRooms from every night in one transaction. The
// returned rows are the state read before the decrement and are used for
// pricing. Any night that cannot be taken aborts with a ConflictError.
func (tx *Tx) ReserveNights(ctx context.Context, rt *models.RoomType, nights []time.Time, numRooms int) ([]models.RoomInventory, error) {
	rows := make([]models.RoomInventory, 0, len(nights))
	for _, night := range nights {
		date := night.Format(models.DateLayout)

		// Materialize the implied default row so the conditional update has a target.
		if _, err := tx.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_inventory (room_type_id, date, available_count, min_stay_nights, is_closed, version)
             VALUES (?, ?, ?, 1, 0, 1)`, rt.ID, date, rt.TotalRooms); err != nil {
			return nil, fmt.Errorf("failed to ensure inventory row %s: %w", date, err)
		}

		inv, err := scanInventory(tx.tx.QueryRowContext(ctx,
			`SELECT room_type_id, date, available_count, price_override, min_stay_nights, is_closed, version
             FROM room_inventory WHERE room_type_id = ? AND date = ?`, rt.ID, date).Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to read inventory row %s: %w", date, err)
		}
		if inv.IsClosed {
			return nil, &domain.ConflictError{Code: domain.CodeClosed, Date: night}
		}
		if len(nights) < inv.MinStayNights {
			return nil, &domain.ConflictError{Code: domain.CodeMinStay, Date: night}
		}

		res, err := tx.tx.ExecContext(ctx,
			`UPDATE room_inventory SET available_count = available_count - ?, version = version + 1
             WHERE room_type_id = ? AND date = ? AND available_count >= ? AND is_closed = 0`,
			numRooms, rt.ID, date, numRooms)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement inventory %s: %w", date, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, &domain.ConflictError{Code: domain.CodeSoldOut, Date: night}
		}
		rows = append(rows, inv)
	}
	return rows, nil
}

// ReserveHourCells takes numRooms from each one-hour cell starting at startHour.
func (tx *Tx) ReserveHourCells(ctx context.Context, rt *models.RoomType, date time.Time, startHour, numHours, numRooms int) ([]models.HourlySlot, error) {
	day := date.Format(models.DateLayout)
	cells := make([]models.HourlySlot, 0, numHours)
	for h := startHour; h < startHour+numHours; h++ {
		start := models.HourLabel(h)

		if _, err := tx.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO hourly_slots (room_type_id, date, slot_start, slot_end, available_count, is_closed, version)
             VALUES (?, ?, ?, ?, ?, 0, 1)`, rt.ID, day, start, models.HourLabel(h+1), rt.TotalRooms); err != nil {
			return nil, fmt.Errorf("failed to ensure hourly slot %s %s: %w", day, start, err)
		}

		slot, err := scanSlot(tx.tx.QueryRowContext(ctx,
			`SELECT room_type_id, date, slot_start, slot_end, available_count, price_override, is_closed, version
             FROM hourly_slots WHERE room_type_id = ? AND date = ? AND slot_start = ?`, rt.ID, day, start).Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to read hourly slot %s %s: %w", day, start, err)
		}
		if slot.IsClosed {
			return nil, &domain.ConflictError{Code: domain.CodeClosed, Date: date, Slot: start}
		}

		res, err := tx.tx.ExecContext(ctx,
			`UPDATE hourly_slots SET available_count = available_count - ?, version = version + 1
             WHERE room_type_id = ? AND date = ? AND slot_start = ? AND available_count >= ? AND is_closed = 0`,
			numRooms, rt.ID, day, start, numRooms)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement hourly slot %s %s: %w", day, start, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, &domain.ConflictError{Code: domain.CodeSoldOut, Date: date, Slot: start}
		}
		cells = append(cells, slot)
	}
	return cells, nil
}

// ReleaseNights gives numRooms back to each night, never above totalRooms.
func (tx *Tx) ReleaseNights(ctx context.Context, rt *models.RoomType, nights []time.Time, numRooms int) error {
	for _, night := range nights {
		_, err := tx.tx.ExecContext(ctx,
			`UPDATE room_inventory SET available_count = MIN(available_count + ?, ?), version = version + 1
             WHERE room_type_id = ? AND date = ?`,
			numRooms, rt.TotalRooms, rt.ID, night.Format(models.DateLayout))
		if err != nil {
			return fmt.Errorf("failed to release inventory %s: %w", night.Format(models.DateLayout), err)
		}
	}
	return nil
}

// ReleaseHourCells gives numRooms back to the cells an hourly booking held.
func (tx *Tx) ReleaseHourCells(ctx context.Context, rt *models.RoomType, date time.Time, cells []string, numRooms int) error {
	day := date.Format(models.DateLayout)
	for _, start := range cells {
		_, err := tx.tx.ExecContext(ctx,
			`UPDATE hourly_slots SET available_count = MIN(available_count + ?, ?), version = version + 1
             WHERE room_type_id = ? AND date = ? AND slot_start = ?`,
			numRooms, rt.TotalRooms, rt.ID, day, start)
		if err != nil {
			return fmt.Errorf("failed to release hourly slot %s %s: %w", day, start, err)
		}
	}
	return nil
}
