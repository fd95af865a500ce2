package service

import (
	"context"
	"errors"
	"fmt"

	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/events"
	"staybook/internal/metrics"
	"staybook/internal/models"

	"github.com/rs/zerolog"
)

// SettlementService moves money for bookings through the configured gateway.
// Gateway calls never run inside a database transaction.
type SettlementService struct {
	db        *database.DB
	gateway   domain.PaymentGateway
	lifecycle *LifecycleService
	events    domain.EventPublisher
	currency  string
	clock     domain.Clock
	logger    *zerolog.Logger
}

func NewSettlementService(db *database.DB, gateway domain.PaymentGateway, lifecycle *LifecycleService, publisher domain.EventPublisher, currency string, clock domain.Clock, logger *zerolog.Logger) *SettlementService {
	if currency == "" {
		currency = "INR"
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &SettlementService{
		db:        db,
		gateway:   gateway,
		lifecycle: lifecycle,
		events:    publisher,
		currency:  currency,
		clock:     clock,
		logger:    logger,
	}
}

// InitiatePayment opens a gateway order for a PENDING booking and records a
// CREATED payment for it.
func (s *SettlementService) InitiatePayment(ctx context.Context, bookingID int64, method string) (*models.OrderDescriptor, error) {
	b, err := s.db.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusPending {
		return nil, &domain.StateError{From: b.Status, Event: "initiate_payment"}
	}

	order, err := s.gateway.CreateOrder(ctx, domain.OrderRequest{
		BookingID: b.ID,
		Amount:    b.TotalAmount,
		Currency:  s.currency,
		Receipt:   fmt.Sprintf("booking_%d", b.ID),
		Method:    method,
	})
	if err != nil {
		metrics.IncPayment(s.gateway.Name(), "order_failed")
		return nil, &domain.GatewayError{Op: "create_order", Err: err}
	}

	p := &models.Payment{
		BookingID:      b.ID,
		Gateway:        s.gateway.Name(),
		GatewayOrderID: order.OrderID,
		Method:         method,
		Amount:         b.TotalAmount,
		Currency:       s.currency,
		Status:         models.PaymentStatusCreated,
		Metadata:       order.Metadata,
	}
	if err := s.db.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("booking_id", b.ID).Int64("payment_id", p.ID).Str("order_id", order.OrderID).Msg("Payment initiated")
	return &models.OrderDescriptor{
		PaymentID:      p.ID,
		BookingID:      b.ID,
		Gateway:        p.Gateway,
		GatewayOrderID: p.GatewayOrderID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		KeyID:          order.KeyID,
	}, nil
}

// ConfirmPayment verifies a payment with the gateway and, on success,
// captures it and confirms the booking in one transaction. Confirming a
// booking whose latest payment is already captured returns the stored result.
func (s *SettlementService) ConfirmPayment(ctx context.Context, paymentID int64, gatewayPaymentID, signature string) (*models.ConfirmResult, error) {
	p, err := s.db.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	latest, err := s.db.LatestPayment(ctx, p.BookingID)
	if err != nil {
		return nil, err
	}
	if latest.Status == models.PaymentStatusCaptured {
		return s.storedResult(ctx, latest)
	}
	if latest.ID != p.ID {
		return nil, domain.Invalid("payment_id", "payment %d was superseded by payment %d", p.ID, latest.ID)
	}
	if p.Status != models.PaymentStatusCreated && p.Status != models.PaymentStatusFailed {
		return nil, &domain.StateError{From: p.Status, Event: models.EventPaymentCaptured}
	}

	b, err := s.db.GetBooking(ctx, p.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusPending {
		return nil, &domain.StateError{From: b.Status, Event: models.EventPaymentCaptured}
	}

	verification, err := s.gateway.VerifyPayment(ctx, domain.VerifyRequest{
		OrderID:   p.GatewayOrderID,
		PaymentID: gatewayPaymentID,
		Signature: signature,
		Amount:    p.Amount,
	})
	if err != nil {
		metrics.IncPayment(p.Gateway, "unreachable")
		return nil, &domain.GatewayError{Op: "verify", Err: err}
	}
	if !verification.Success {
		return nil, s.recordFailure(ctx, p, b, gatewayPaymentID, verification)
	}

	now := s.clock.Now().UTC()
	var already bool
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		current, err := tx.GetPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		if current.Status == models.PaymentStatusCaptured {
			already = true
			return nil
		}
		// a new attempt may have been started while the gateway was verifying
		newest, err := tx.LatestPayment(ctx, p.BookingID)
		if err != nil {
			return err
		}
		if newest.ID != current.ID {
			return domain.Invalid("payment_id", "payment %d was superseded by payment %d", current.ID, newest.ID)
		}
		booking, err := tx.GetBooking(ctx, p.BookingID)
		if err != nil {
			return err
		}

		current.GatewayPaymentID = verification.PaymentID
		if current.GatewayPaymentID == "" {
			current.GatewayPaymentID = gatewayPaymentID
		}
		if verification.Method != "" {
			current.Method = verification.Method
		}
		current.Metadata = verification.Metadata
		if err := tx.CapturePayment(ctx, current, now); err != nil {
			return err
		}
		if err := s.lifecycle.Confirm(ctx, tx, booking, now); err != nil {
			return err
		}
		p, b = current, booking
		return nil
	})
	if err != nil {
		var stateErr *domain.StateError
		if errors.As(err, &stateErr) {
			s.logger.Warn().Int64("payment_id", p.ID).Str("booking_status", stateErr.From).
				Msg("Gateway approved payment for a booking that can no longer be confirmed")
		}
		return nil, err
	}
	if already {
		captured, err := s.db.GetPayment(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return s.storedResult(ctx, captured)
	}

	metrics.IncPayment(p.Gateway, "captured")
	s.logger.Info().Int64("booking_id", b.ID).Int64("payment_id", p.ID).Int64("amount", p.Amount).Msg("Payment captured")
	publish(s.events, s.logger, events.EventBookingConfirmed, events.NewBookingPayload(b, "", now))
	return &models.ConfirmResult{Success: true, Booking: b, Payment: p}, nil
}

// recordFailure marks the attempt FAILED and mirrors it onto the booking,
// which stays PENDING so the guest can retry.
func (s *SettlementService) recordFailure(ctx context.Context, p *models.Payment, b *models.Booking, gatewayPaymentID string, v *domain.Verification) error {
	now := s.clock.Now().UTC()
	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		if err := tx.MarkPaymentFailed(ctx, p.ID, gatewayPaymentID, v.Metadata); err != nil {
			return err
		}
		if err := tx.SetBookingPaymentStatus(ctx, b.ID, models.PaymentFailed); err != nil {
			return err
		}
		p.Status = models.PaymentStatusFailed
		return tx.EnqueueEvent(ctx, events.EventPaymentFailed, b.ID, events.NewPaymentPayload(p, v.Reason, now))
	})
	if errors.Is(err, database.ErrConcurrentModification) {
		return fmt.Errorf("payment %d changed during verification: %w", p.ID, err)
	}
	if err != nil {
		return err
	}

	metrics.IncPayment(p.Gateway, "declined")
	s.logger.Warn().Int64("booking_id", b.ID).Int64("payment_id", p.ID).Str("reason", v.Reason).Msg("Payment declined")
	publish(s.events, s.logger, events.EventPaymentFailed, events.NewPaymentPayload(p, v.Reason, now))

	reason := v.Reason
	if reason == "" {
		reason = "payment declined"
	}
	return &domain.GatewayError{Op: "verify", Err: errors.New(reason)}
}

func (s *SettlementService) storedResult(ctx context.Context, p *models.Payment) (*models.ConfirmResult, error) {
	b, err := s.db.GetBooking(ctx, p.BookingID)
	if err != nil {
		return nil, err
	}
	return &models.ConfirmResult{Success: true, Booking: b, Payment: p}, nil
}

// ProcessRefund returns amount of the captured payment to the guest; zero
// means everything still refundable. The amount is reserved before the
// gateway call and given back if the gateway fails, so concurrent refunds can
// never exceed the captured amount. Booking status is not touched.
func (s *SettlementService) ProcessRefund(ctx context.Context, bookingID, amount int64) (*models.RefundResult, error) {
	if amount < 0 {
		return nil, domain.Invalid("amount", "must not be negative")
	}
	b, err := s.db.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	p, err := s.db.LatestPayment(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusCaptured && p.Status != models.PaymentStatusPartiallyRefunded {
		return nil, &domain.StateError{From: p.Status, Event: "refund"}
	}
	if amount == 0 {
		amount = p.Refundable()
	}
	if amount <= 0 || amount > p.Refundable() {
		return nil, domain.Invalid("amount", "refund of %d exceeds refundable amount %d", amount, p.Refundable())
	}

	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		reserved, err := tx.ReserveRefund(ctx, p.ID, amount)
		if err != nil {
			return err
		}
		return mirrorRefund(ctx, tx, reserved)
	})
	if err != nil {
		metrics.IncRefund("rejected")
		return nil, err
	}

	refund, gwErr := s.gateway.ProcessRefund(ctx, domain.RefundRequest{
		PaymentID: p.GatewayPaymentID,
		Amount:    amount,
		Currency:  p.Currency,
		Reason:    b.CancellationReason,
	})
	if gwErr != nil {
		metrics.IncRefund("failed")
		cerr := s.db.InTx(ctx, func(tx *database.Tx) error {
			restored, err := tx.CompensateRefund(ctx, p.ID, amount)
			if err != nil {
				return err
			}
			return mirrorRefund(ctx, tx, restored)
		})
		if cerr != nil {
			s.logger.Error().Err(cerr).Int64("payment_id", p.ID).Int64("amount", amount).Msg("Failed to compensate refund reservation")
		}
		return nil, &domain.GatewayError{Op: "refund", Err: gwErr}
	}

	now := s.clock.Now().UTC()
	var updated *models.Payment
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		updated, err = tx.GetPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, events.EventPaymentRefunded, b.ID, events.NewPaymentPayload(updated, "", now))
	})
	if err != nil {
		return nil, err
	}

	metrics.IncRefund("success")
	s.logger.Info().Int64("booking_id", b.ID).Int64("payment_id", p.ID).Int64("amount", amount).
		Str("refund_id", refund.RefundID).Msg("Refund processed")
	publish(s.events, s.logger, events.EventPaymentRefunded, events.NewPaymentPayload(updated, "", now))

	return &models.RefundResult{
		BookingID:        b.ID,
		PaymentID:        updated.ID,
		GatewayRefundID:  refund.RefundID,
		Amount:           amount,
		TotalRefunded:    updated.RefundAmount,
		PaymentStatus:    updated.Status,
		BookingPayStatus: models.BookingPaymentStatus(updated.Status),
	}, nil
}

// mirrorRefund copies the payment's refund state onto the booking and the
// commission ledger.
func mirrorRefund(ctx context.Context, tx *database.Tx, p *models.Payment) error {
	if err := tx.SetBookingPaymentStatus(ctx, p.BookingID, models.BookingPaymentStatus(p.Status)); err != nil {
		return err
	}
	return tx.SetCommissionRefunded(ctx, p.BookingID, p.RefundAmount)
}
