package models

import "time"

// Hotel carries the defaults that room types fall back to.
type Hotel struct {
	ID              int64      `yaml:"id" json:"id"`
	Name            string     `yaml:"name" json:"name"`
	CommissionRate  float64    `yaml:"commission_rate" json:"commission_rate"` // percent of booking total
	HourlyMinHours  int        `yaml:"hourly_min_hours" json:"hourly_min_hours"`
	HourlyMaxHours  int        `yaml:"hourly_max_hours" json:"hourly_max_hours"`
	HourlyOpenHour  int        `yaml:"hourly_open_hour" json:"hourly_open_hour"`
	HourlyCloseHour int        `yaml:"hourly_close_hour" json:"hourly_close_hour"`
	IsActive        bool       `yaml:"is_active" json:"is_active"`
	RoomTypes       []RoomType `yaml:"room_types" json:"room_types,omitempty"`
	CreatedAt       time.Time  `yaml:"-" json:"created_at"`
	UpdatedAt       time.Time  `yaml:"-" json:"updated_at"`
}

// RoomType is the pricing and capacity template for a bookable room category.
type RoomType struct {
	ID               int64     `yaml:"id" json:"id"`
	HotelID          int64     `yaml:"-" json:"hotel_id"`
	Name             string    `yaml:"name" json:"name"`
	BasePriceDaily   int64     `yaml:"base_price_daily" json:"base_price_daily"`
	BasePriceHourly  *int64    `yaml:"base_price_hourly" json:"base_price_hourly,omitempty"`
	MaxGuests        int       `yaml:"max_guests" json:"max_guests"`
	MaxExtraGuests   int       `yaml:"max_extra_guests" json:"max_extra_guests"`
	ExtraGuestCharge int64     `yaml:"extra_guest_charge" json:"extra_guest_charge"`
	TotalRooms       int       `yaml:"total_rooms" json:"total_rooms"`
	MinHours         *int      `yaml:"min_hours" json:"min_hours,omitempty"`
	MaxHours         *int      `yaml:"max_hours" json:"max_hours,omitempty"`
	IsActive         bool      `yaml:"is_active" json:"is_active"`
	CreatedAt        time.Time `yaml:"-" json:"created_at"`
	UpdatedAt        time.Time `yaml:"-" json:"updated_at"`
}

// HourlyEnabled reports whether the room type can be sold by the hour.
func (rt *RoomType) HourlyEnabled() bool {
	return rt.BasePriceHourly != nil && *rt.BasePriceHourly > 0
}

// HourBounds resolves min/max hours, preferring the room type override.
func (rt *RoomType) HourBounds(h *Hotel) (minHours, maxHours int) {
	minHours, maxHours = DefaultHourlyMinHours, DefaultHourlyMaxHours
	if h != nil {
		if h.HourlyMinHours > 0 {
			minHours = h.HourlyMinHours
		}
		if h.HourlyMaxHours > 0 {
			maxHours = h.HourlyMaxHours
		}
	}
	if rt.MinHours != nil && *rt.MinHours > 0 {
		minHours = *rt.MinHours
	}
	if rt.MaxHours != nil && *rt.MaxHours > 0 {
		maxHours = *rt.MaxHours
	}
	return minHours, maxHours
}

// GuestCapacity is the most guests numRooms rooms can take, extra beds included.
func (rt *RoomType) GuestCapacity(numRooms int) int {
	return numRooms * (rt.MaxGuests + rt.MaxExtraGuests)
}

// ExtraGuests returns how many guests exceed the base occupancy of numRooms rooms.
func (rt *RoomType) ExtraGuests(numRooms, numGuests int) int {
	extra := numGuests - numRooms*rt.MaxGuests
	if extra < 0 {
		return 0
	}
	return extra
}
