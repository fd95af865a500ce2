package events

import (
	"encoding/json"
	"sync"
	"time"

	"staybook/internal/models"
)

const (
	EventBookingCreated    = "booking_created"
	EventBookingConfirmed  = "booking_confirmed"
	EventBookingCancelled  = "booking_cancelled"
	EventBookingCheckedIn  = "booking_checked_in"
	EventBookingCheckedOut = "booking_checked_out"
	EventBookingNoShow     = "booking_no_show"
	EventPaymentFailed     = "payment_failed"
	EventPaymentRefunded   = "payment_refunded"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     int64     `json:"booking_id"`
	HotelID       int64     `json:"hotel_id"`
	RoomTypeID    int64     `json:"room_type_id"`
	BookingType   string    `json:"booking_type"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	StartTime     string    `json:"start_time,omitempty"`
	NumRooms      int       `json:"num_rooms"`
	TotalAmount   int64     `json:"total_amount"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PaymentEventPayload describes a payment outcome.
type PaymentEventPayload struct {
	BookingID    int64     `json:"booking_id"`
	PaymentID    int64     `json:"payment_id"`
	Gateway      string    `json:"gateway"`
	Status       string    `json:"status"`
	Amount       int64     `json:"amount"`
	RefundAmount int64     `json:"refund_amount,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewBookingPayload snapshots b for an event.
func NewBookingPayload(b *models.Booking, reason string, at time.Time) BookingEventPayload {
	return BookingEventPayload{
		BookingID:     b.ID,
		HotelID:       b.HotelID,
		RoomTypeID:    b.RoomTypeID,
		BookingType:   b.BookingType,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		CheckIn:       b.CheckIn.Format(models.DateLayout),
		CheckOut:      b.CheckOut.Format(models.DateLayout),
		StartTime:     b.StartTime,
		NumRooms:      b.NumRooms,
		TotalAmount:   b.TotalAmount,
		Reason:        reason,
		OccurredAt:    at,
	}
}

// NewPaymentPayload snapshots p for an event.
func NewPaymentPayload(p *models.Payment, reason string, at time.Time) PaymentEventPayload {
	return PaymentEventPayload{
		BookingID:    p.BookingID,
		PaymentID:    p.ID,
		Gateway:      p.Gateway,
		Status:       p.Status,
		Amount:       p.Amount,
		RefundAmount: p.RefundAmount,
		Reason:       reason,
		OccurredAt:   at,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type, or AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
