package models

const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusCheckedIn  = "checked_in"
	StatusCheckedOut = "checked_out"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

const (
	BookingTypeDaily  = "daily"
	BookingTypeHourly = "hourly"
)

// Booking.PaymentStatus values.
const (
	PaymentUnpaid            = "unpaid"
	PaymentPaid              = "paid"
	PaymentFailed            = "failed"
	PaymentPartiallyRefunded = "partially_refunded"
	PaymentRefunded          = "refunded"
)

// Payment.Status values.
const (
	PaymentStatusCreated           = "created"
	PaymentStatusCaptured          = "captured"
	PaymentStatusFailed            = "failed"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusRefunded          = "refunded"
)

// Commission ledger statuses.
const (
	CommissionAccrued  = "accrued"
	CommissionReversed = "reversed"
)

const (
	// DefaultHourlyMinHours применяется, если у отеля не задан минимум
	DefaultHourlyMinHours = 1

	// DefaultHourlyMaxHours применяется, если у отеля не задан максимум
	DefaultHourlyMaxHours = 12

	// DefaultHourlyOpenHour первый час почасовой продажи
	DefaultHourlyOpenHour = 6

	// DefaultHourlyCloseHour час, к которому почасовая бронь должна закончиться
	DefaultHourlyCloseHour = 23

	// DefaultPendingTimeoutMinutes сколько держим номер без оплаты
	DefaultPendingTimeoutMinutes = 15

	// DefaultMaxBookingDays горизонт бронирования
	DefaultMaxBookingDays = 365

	// MaxStayNights верхняя граница длины проживания в одной брони
	MaxStayNights = 90

	// DefaultRelayMaxRetries попытки доставки события в брокер
	DefaultRelayMaxRetries = 5
)
