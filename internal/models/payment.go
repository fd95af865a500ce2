package models

import (
	"encoding/json"
	"time"
)

type Payment struct {
	ID               int64           `json:"id"`
	BookingID        int64           `json:"booking_id"`
	Gateway          string          `json:"gateway"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	Method           string          `json:"method"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	RefundAmount     int64           `json:"refund_amount"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Refundable is the captured amount not yet refunded.
func (p *Payment) Refundable() int64 {
	return p.Amount - p.RefundAmount
}

// RefundStatus derives the payment status after refundAmount has been returned.
func RefundStatus(amount, refundAmount int64) string {
	switch {
	case refundAmount <= 0:
		return PaymentStatusCaptured
	case refundAmount >= amount:
		return PaymentStatusRefunded
	default:
		return PaymentStatusPartiallyRefunded
	}
}

// BookingPaymentStatus maps a payment status onto the booking's mirror field.
func BookingPaymentStatus(paymentStatus string) string {
	switch paymentStatus {
	case PaymentStatusCaptured:
		return PaymentPaid
	case PaymentStatusFailed:
		return PaymentFailed
	case PaymentStatusPartiallyRefunded:
		return PaymentPartiallyRefunded
	case PaymentStatusRefunded:
		return PaymentRefunded
	default:
		return PaymentUnpaid
	}
}

// Commission is the settlement ledger row written when a booking is confirmed.
// Amounts are copied from the booking snapshot, never recomputed.
type Commission struct {
	ID               int64     `json:"id"`
	BookingID        int64     `json:"booking_id"`
	HotelID          int64     `json:"hotel_id"`
	Rate             float64   `json:"rate"`
	GrossAmount      int64     `json:"gross_amount"`
	CommissionAmount int64     `json:"commission_amount"`
	HotelPayout      int64     `json:"hotel_payout"`
	RefundedAmount   int64     `json:"refunded_amount"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// OrderDescriptor is returned to the client so it can complete payment with
// the gateway.
type OrderDescriptor struct {
	PaymentID      int64  `json:"payment_id"`
	BookingID      int64  `json:"booking_id"`
	Gateway        string `json:"gateway"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id,omitempty"`
}

type ConfirmResult struct {
	Success bool     `json:"success"`
	Booking *Booking `json:"booking"`
	Payment *Payment `json:"payment"`
}

type RefundResult struct {
	BookingID        int64  `json:"booking_id"`
	PaymentID        int64  `json:"payment_id"`
	GatewayRefundID  string `json:"gateway_refund_id"`
	Amount           int64  `json:"amount"`
	TotalRefunded    int64  `json:"total_refunded"`
	PaymentStatus    string `json:"payment_status"`
	BookingPayStatus string `json:"booking_payment_status"`
}
