package models

import "time"

// RoomInventory is the per-day counter for a room type. A missing row means
// the defaults from the room type apply.
type RoomInventory struct {
	RoomTypeID     int64     `json:"room_type_id"`
	Date           time.Time `json:"date"`
	AvailableCount int       `json:"available_count"`
	PriceOverride  *int64    `json:"price_override,omitempty"`
	MinStayNights  int       `json:"min_stay_nights"`
	IsClosed       bool      `json:"is_closed"`
	Version        int64     `json:"version"`
}

// HourlySlot is a one-hour capacity cell. Bookings of N hours claim N
// consecutive cells.
type HourlySlot struct {
	RoomTypeID     int64     `json:"room_type_id"`
	Date           time.Time `json:"date"`
	SlotStart      string    `json:"slot_start"`
	SlotEnd        string    `json:"slot_end"`
	AvailableCount int       `json:"available_count"`
	PriceOverride  *int64    `json:"price_override,omitempty"`
	IsClosed       bool      `json:"is_closed"`
	Version        int64     `json:"version"`
}

// InventoryOverride is an admin change to one night, or to one hour cell
// when SlotStart is set. It never touches the available counter, which only
// reservations and releases move.
type InventoryOverride struct {
	Date          time.Time `json:"date"`
	SlotStart     string    `json:"slot_start,omitempty"`
	PriceOverride *int64    `json:"price_override,omitempty"`
	MinStayNights int       `json:"min_stay_nights,omitempty"`
	IsClosed      bool      `json:"is_closed"`
}

// DefaultInventory returns the implied row for a day with no stored override.
func DefaultInventory(rt *RoomType, date time.Time) RoomInventory {
	return RoomInventory{
		RoomTypeID:     rt.ID,
		Date:           date,
		AvailableCount: rt.TotalRooms,
		MinStayNights:  1,
	}
}

// NightPrice returns the override when present, else the room type base price.
func (inv *RoomInventory) NightPrice(rt *RoomType) int64 {
	if inv.PriceOverride != nil {
		return *inv.PriceOverride
	}
	return rt.BasePriceDaily
}

// DefaultHourlySlot returns the implied cell for an hour with no stored override.
func DefaultHourlySlot(rt *RoomType, date time.Time, hour int) HourlySlot {
	return HourlySlot{
		RoomTypeID:     rt.ID,
		Date:           date,
		SlotStart:      HourLabel(hour),
		SlotEnd:        HourLabel(hour + 1),
		AvailableCount: rt.TotalRooms,
	}
}

// CellPrice returns the override when present, else the hourly base price.
func (s *HourlySlot) CellPrice(rt *RoomType) int64 {
	if s.PriceOverride != nil {
		return *s.PriceOverride
	}
	if rt.BasePriceHourly == nil {
		return 0
	}
	return *rt.BasePriceHourly
}
