package service

import (
	"context"
	"time"

	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/events"
	"staybook/internal/models"

	"github.com/rs/zerolog"
)

// LifecycleService applies booking state transitions. Every transition is a
// version-checked write; cancellation and no-show give capacity back at most
// once per booking.
type LifecycleService struct {
	db     *database.DB
	cache  domain.AvailabilityCache
	events domain.EventPublisher
	clock  domain.Clock
	logger *zerolog.Logger
}

func NewLifecycleService(db *database.DB, cache domain.AvailabilityCache, publisher domain.EventPublisher, clock domain.Clock, logger *zerolog.Logger) *LifecycleService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &LifecycleService{db: db, cache: cache, events: publisher, clock: clock, logger: logger}
}

// Confirm moves a PENDING booking to CONFIRMED inside the settlement
// transaction and writes its commission ledger row.
func (s *LifecycleService) Confirm(ctx context.Context, tx *database.Tx, b *models.Booking, now time.Time) error {
	to, ok := models.NextStatus(b.Status, models.EventPaymentCaptured)
	if !ok {
		return &domain.StateError{From: b.Status, Event: models.EventPaymentCaptured}
	}
	b.Status = to
	b.PaymentStatus = models.PaymentPaid
	b.ConfirmedAt = &now
	if err := tx.UpdateBookingWithVersion(ctx, b, now); err != nil {
		return err
	}
	if _, err := tx.InsertCommission(ctx, b, now); err != nil {
		return err
	}
	return tx.EnqueueEvent(ctx, events.EventBookingConfirmed, b.ID, events.NewBookingPayload(b, "", now))
}

// Cancel cancels a PENDING or CONFIRMED booking and releases its capacity.
// Cancelling an already cancelled booking returns it unchanged.
func (s *LifecycleService) Cancel(ctx context.Context, bookingID int64, reason string) (*models.Booking, error) {
	return s.cancel(ctx, bookingID, reason, false)
}

// CancelExpired cancels a booking only while it is still PENDING with an
// expired hold. It reports nil, nil when the booking no longer qualifies.
func (s *LifecycleService) CancelExpired(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return s.cancel(ctx, bookingID, "payment timeout", true)
}

func (s *LifecycleService) cancel(ctx context.Context, bookingID int64, reason string, onlyExpired bool) (*models.Booking, error) {
	var booking *models.Booking
	var changed, released bool
	now := s.clock.Now().UTC()

	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		booking = b

		if onlyExpired && (b.Status != models.StatusPending || b.ExpiresAt == nil || b.ExpiresAt.After(now)) {
			booking = nil
			return nil
		}
		if b.Status == models.StatusCancelled {
			return nil
		}

		to, ok := models.NextStatus(b.Status, models.EventCancel)
		if !ok {
			return &domain.StateError{From: b.Status, Event: models.EventCancel}
		}
		b.Status = to
		b.CancellationReason = reason
		b.CancelledAt = &now

		if models.ReleasesCapacity(to) && !b.InventoryReleased {
			if err := releaseCapacity(ctx, tx, b, time.Time{}); err != nil {
				return err
			}
			b.InventoryReleased = true
			released = true
		}

		if err := tx.UpdateBookingWithVersion(ctx, b, now); err != nil {
			return err
		}
		changed = true
		return tx.EnqueueEvent(ctx, events.EventBookingCancelled, b.ID, events.NewBookingPayload(b, reason, now))
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info().Int64("booking_id", booking.ID).Str("reason", reason).Bool("released", released).Msg("Booking cancelled")
		if released {
			invalidateAvailability(ctx, s.cache, booking.HotelID, s.logger)
		}
		publish(s.events, s.logger, events.EventBookingCancelled, events.NewBookingPayload(booking, reason, now))
	}
	return booking, nil
}

func (s *LifecycleService) CheckIn(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.EventCheckIn, events.EventBookingCheckedIn, func(_ *database.Tx, b *models.Booking, now time.Time) error {
		b.CheckedInAt = &now
		return nil
	})
}

func (s *LifecycleService) CheckOut(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.EventCheckOut, events.EventBookingCheckedOut, func(_ *database.Tx, b *models.Booking, now time.Time) error {
		b.CheckedOutAt = &now
		return nil
	})
}

// MarkNoShow records that a CONFIRMED guest never arrived. It is legal once
// the check-in date has begun and gives back the nights (or hour cells) that
// have not passed yet.
func (s *LifecycleService) MarkNoShow(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.EventNoShow, events.EventBookingNoShow, func(_ *database.Tx, b *models.Booking, now time.Time) error {
		if models.Day(now).Before(b.CheckIn) {
			return domain.Invalid("check_in", "no-show can only be recorded from %s", b.CheckIn.Format(models.DateLayout))
		}
		return nil
	})
}

func (s *LifecycleService) transition(ctx context.Context, bookingID int64, event, eventType string, apply func(tx *database.Tx, b *models.Booking, now time.Time) error) (*models.Booking, error) {
	var booking *models.Booking
	var released bool
	now := s.clock.Now().UTC()

	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		to, ok := models.NextStatus(b.Status, event)
		if !ok {
			return &domain.StateError{From: b.Status, Event: event}
		}
		if err := apply(tx, b, now); err != nil {
			return err
		}
		// отдаём только то, что ещё не прошло
		if models.ReleasesCapacity(to) && !b.InventoryReleased {
			if err := releaseCapacity(ctx, tx, b, now); err != nil {
				return err
			}
			b.InventoryReleased = true
			released = true
		}
		b.Status = to
		if err := tx.UpdateBookingWithVersion(ctx, b, now); err != nil {
			return err
		}
		booking = b
		return tx.EnqueueEvent(ctx, eventType, b.ID, events.NewBookingPayload(b, "", now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("booking_id", booking.ID).Str("status", booking.Status).Bool("released", released).Msg("Booking status changed")
	if released {
		invalidateAvailability(ctx, s.cache, booking.HotelID, s.logger)
	}
	publish(s.events, s.logger, eventType, events.NewBookingPayload(booking, "", now))
	return booking, nil
}

// releaseCapacity increments back the rows b holds. With a non-zero from,
// only nights (or hour cells) starting at or after from are released.
func releaseCapacity(ctx context.Context, tx *database.Tx, b *models.Booking, from time.Time) error {
	rt, err := tx.GetRoomType(ctx, b.RoomTypeID)
	if err != nil {
		return err
	}

	if b.BookingType == models.BookingTypeHourly {
		cells := b.HourCells()
		if !from.IsZero() {
			kept := cells[:0]
			for _, cell := range cells {
				h, _ := models.ParseHour(cell)
				if !b.CheckIn.Add(time.Duration(h) * time.Hour).Before(from) {
					kept = append(kept, cell)
				}
			}
			cells = kept
		}
		return tx.ReleaseHourCells(ctx, rt, b.CheckIn, cells, b.NumRooms)
	}

	nights := b.Nights()
	if !from.IsZero() {
		today := models.Day(from)
		kept := nights[:0]
		for _, night := range nights {
			if !night.Before(today) {
				kept = append(kept, night)
			}
		}
		nights = kept
	}
	return tx.ReleaseNights(ctx, rt, nights, b.NumRooms)
}
