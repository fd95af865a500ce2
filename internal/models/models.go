package models

import "time"

// DailyQuery is the input of a daily availability check.
type DailyQuery struct {
	HotelID    int64
	RoomTypeID int64 // 0 means all room types of the hotel
	CheckIn    time.Time
	CheckOut   time.Time // zero means CheckIn + 1 day
	NumRooms   int
	NumGuests  int
}

// HourlyQuery is the input of an hourly availability check.
type HourlyQuery struct {
	HotelID    int64
	RoomTypeID int64
	Date       time.Time
	StartTime  string // optional HH:MM
	NumHours   int
	NumRooms   int
}

type NightRate struct {
	Date      time.Time `json:"date"`
	Available int       `json:"available"`
	Price     int64     `json:"price"`
	IsClosed  bool      `json:"is_closed"`
	MinStay   int       `json:"min_stay"`
}

// Quote is the price breakdown that is frozen into a booking.
type Quote struct {
	RoomTotal       int64 `json:"room_total"`
	ExtraGuestTotal int64 `json:"extra_guest_total"`
	Taxes           int64 `json:"taxes"`
	TotalAmount     int64 `json:"total_amount"`
}

type DailyRoomAvailability struct {
	RoomTypeID    int64       `json:"room_type_id"`
	RoomTypeName  string      `json:"room_type_name"`
	Nights        int         `json:"nights"`
	MinAvailable  int         `json:"min_available"`
	IsAvailable   bool        `json:"is_available"`
	Reason        string      `json:"reason,omitempty"`
	TotalPrice    int64       `json:"total_price"`
	PricePerNight int64       `json:"price_per_night"`
	Quote         Quote       `json:"quote"`
	NightlyRates  []NightRate `json:"nightly_rates"`
}

type DailyAvailability struct {
	HotelID     int64                   `json:"hotel_id"`
	CheckIn     time.Time               `json:"check_in"`
	CheckOut    time.Time               `json:"check_out"`
	Nights      int                     `json:"nights"`
	NumRooms    int                     `json:"num_rooms"`
	NumGuests   int                     `json:"num_guests"`
	Available   []DailyRoomAvailability `json:"available"`
	Unavailable []DailyRoomAvailability `json:"unavailable"`
}

type HourlySlotOption struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available int    `json:"available"`
	Price     int64  `json:"price"`
}

type HourlyRoomAvailability struct {
	RoomTypeID   int64              `json:"room_type_id"`
	RoomTypeName string             `json:"room_type_name"`
	MinHours     int                `json:"min_hours"`
	MaxHours     int                `json:"max_hours"`
	IsAvailable  bool               `json:"is_available"`
	Reason       string             `json:"reason,omitempty"`
	Slots        []HourlySlotOption `json:"slots"`
}

type HourlyAvailability struct {
	HotelID     int64                    `json:"hotel_id"`
	Date        time.Time                `json:"date"`
	NumHours    int                      `json:"num_hours"`
	NumRooms    int                      `json:"num_rooms"`
	Available   []HourlyRoomAvailability `json:"available"`
	Unavailable []HourlyRoomAvailability `json:"unavailable"`
}
