package worker

import (
	"context"
	"time"

	"staybook/internal/config"
	"staybook/internal/domain"
	"staybook/internal/metrics"
	"staybook/internal/models"

	"github.com/rs/zerolog"
)

// ExpiredLister finds PENDING bookings whose hold has run out.
type ExpiredLister interface {
	ExpiredPendingBookings(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// ExpiryCanceller cancels a booking only if it is still PENDING and expired.
type ExpiryCanceller interface {
	CancelExpired(ctx context.Context, bookingID int64) (*models.Booking, error)
}

// Reaper releases capacity held by unpaid bookings.
type Reaper struct {
	bookings  ExpiredLister
	canceller ExpiryCanceller
	interval  time.Duration
	batchSize int
	clock     domain.Clock
	logger    *zerolog.Logger
}

func NewReaper(bookings ExpiredLister, canceller ExpiryCanceller, cfg config.BookingConfig, clock domain.Clock, logger *zerolog.Logger) *Reaper {
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = time.Minute
	}
	if cfg.ReaperBatchSize <= 0 {
		cfg.ReaperBatchSize = 100
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Reaper{
		bookings:  bookings,
		canceller: canceller,
		interval:  cfg.ReaperInterval,
		batchSize: cfg.ReaperBatchSize,
		clock:     clock,
		logger:    logger,
	}
}

// Start runs the reaper until ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("Reaper started")
	defer r.logger.Info().Msg("Reaper stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("Reaper pass failed")
			}
		}
	}
}

// ReapOnce cancels one batch of expired bookings and returns how many were
// cancelled. A booking paid in the meantime is skipped by CancelExpired.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	ids, err := r.bookings.ExpiredPendingBookings(ctx, r.clock.Now(), r.batchSize)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		b, err := r.canceller.CancelExpired(ctx, id)
		if err != nil {
			// одна неудачная бронь не должна останавливать весь проход
			r.logger.Warn().Err(err).Int64("booking_id", id).Msg("Failed to cancel expired booking")
			continue
		}
		if b != nil {
			reaped++
		}
	}

	if reaped > 0 {
		metrics.IncReaped(reaped)
		r.logger.Info().Int("count", reaped).Msg("Expired bookings cancelled")
	}
	return reaped, nil
}
