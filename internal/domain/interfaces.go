package domain

import (
	"context"
	"encoding/json"
	"time"
)

// PaymentGateway is the external payment processor. Implementations are
// selected once at startup and passed to the settlement service.
type PaymentGateway interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
	VerifyPayment(ctx context.Context, req VerifyRequest) (*Verification, error)
	ProcessRefund(ctx context.Context, req RefundRequest) (*GatewayRefund, error)
}

type OrderRequest struct {
	BookingID int64
	Amount    int64
	Currency  string
	Receipt   string
	Method    string
}

type GatewayOrder struct {
	OrderID  string
	KeyID    string
	Metadata json.RawMessage
}

type VerifyRequest struct {
	OrderID   string
	PaymentID string
	Signature string
	Amount    int64
}

// Verification is the gateway's verdict on a payment attempt. A declined
// payment is Success=false with a nil error; transport failures return an error.
type Verification struct {
	Success   bool
	PaymentID string
	Method    string
	Reason    string
	Metadata  json.RawMessage
}

type RefundRequest struct {
	PaymentID string
	Amount    int64
	Currency  string
	Reason    string
}

type GatewayRefund struct {
	RefundID string
	Status   string
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// AvailabilityCache stores rendered availability answers per hotel. It is a
// read-path optimization only; Invalidate drops every entry of a hotel.
type AvailabilityCache interface {
	Get(ctx context.Context, hotelID int64, key string) ([]byte, bool, error)
	Set(ctx context.Context, hotelID int64, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, hotelID int64) error
}
