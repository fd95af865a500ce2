package models

import "time"

type Booking struct {
	ID                 int64      `json:"id"`
	IdempotencyKey     string     `json:"idempotency_key"`
	GuestName          string     `json:"guest_name"`
	GuestEmail         string     `json:"guest_email"`
	GuestPhone         string     `json:"guest_phone"`
	HotelID            int64      `json:"hotel_id"`
	RoomTypeID         int64      `json:"room_type_id"`
	BookingType        string     `json:"booking_type"` // daily, hourly
	CheckIn            time.Time  `json:"check_in"`
	CheckOut           time.Time  `json:"check_out"`
	StartTime          string     `json:"start_time,omitempty"`
	NumHours           int        `json:"num_hours,omitempty"`
	NumRooms           int        `json:"num_rooms"`
	NumGuests          int        `json:"num_guests"`
	RoomTotal          int64      `json:"room_total"`
	ExtraGuestTotal    int64      `json:"extra_guest_total"`
	Taxes              int64      `json:"taxes"`
	TotalAmount        int64      `json:"total_amount"`
	CommissionRate     float64    `json:"commission_rate"`
	CommissionAmount   int64      `json:"commission_amount"`
	HotelPayout        int64      `json:"hotel_payout"`
	Status             string     `json:"status"` // pending, confirmed, checked_in, checked_out, cancelled, no_show
	PaymentStatus      string     `json:"payment_status"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	InventoryReleased  bool       `json:"inventory_released"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CheckedInAt        *time.Time `json:"checked_in_at,omitempty"`
	CheckedOutAt       *time.Time `json:"checked_out_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Version            int64      `json:"version"`
}

// Nights returns the reserved days of a daily booking, or the single day of
// an hourly one.
func (b *Booking) Nights() []time.Time {
	if b.BookingType == BookingTypeHourly {
		return []time.Time{Day(b.CheckIn)}
	}
	return StayNights(b.CheckIn, b.CheckOut)
}

// HourCells lists the HH:00 cells an hourly booking holds.
func (b *Booking) HourCells() []string {
	if b.BookingType != BookingTypeHourly {
		return nil
	}
	start, err := ParseHour(b.StartTime)
	if err != nil {
		return nil
	}
	cells := make([]string, 0, b.NumHours)
	for h := start; h < start+b.NumHours; h++ {
		cells = append(cells, HourLabel(h))
	}
	return cells
}

// IsTerminal reports whether no further lifecycle event applies.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case StatusCheckedOut, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// ReservationRequest is what a caller submits to hold capacity.
type ReservationRequest struct {
	HotelID     int64     `json:"hotel_id"`
	RoomTypeID  int64     `json:"room_type_id"`
	BookingType string    `json:"booking_type"`
	CheckIn     time.Time `json:"check_in"`
	CheckOut    time.Time `json:"check_out"`
	StartTime   string    `json:"start_time,omitempty"`
	NumHours    int       `json:"num_hours,omitempty"`
	NumRooms    int       `json:"num_rooms"`
	NumGuests   int       `json:"num_guests"`
	GuestName   string    `json:"guest_name"`
	GuestEmail  string    `json:"guest_email"`
	GuestPhone  string    `json:"guest_phone"`
}
