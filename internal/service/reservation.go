package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/events"
	"staybook/internal/metrics"
	"staybook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReservationService holds capacity for a stay or an hourly slot and records
// the PENDING booking in the same transaction.
type ReservationService struct {
	db     *database.DB
	cache  domain.AvailabilityCache
	events domain.EventPublisher
	pricer Pricer
	cfg    config.BookingConfig
	clock  domain.Clock
	logger *zerolog.Logger
}

func NewReservationService(db *database.DB, cache domain.AvailabilityCache, publisher domain.EventPublisher, cfg config.BookingConfig, clock domain.Clock, logger *zerolog.Logger) *ReservationService {
	if cfg.MaxBookingDays <= 0 {
		cfg.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = models.DefaultPendingTimeoutMinutes * time.Minute
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &ReservationService{
		db:     db,
		cache:  cache,
		events: publisher,
		pricer: NewPricer(cfg.TaxRate),
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// CreateBooking reserves capacity and creates a PENDING booking. A call with
// an idempotency key that was already used returns the stored booking and
// reserves nothing. An empty key is replaced with a generated one.
func (s *ReservationService) CreateBooking(ctx context.Context, idempotencyKey string, req models.ReservationRequest) (*models.Booking, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = uuid.NewString()
	} else {
		// повтор по ключу отдаём до валидации: окно бронирования могло уже закрыться
		existing, err := s.db.BookingByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			metrics.IncReservation(existing.BookingType, "replayed")
			s.logger.Debug().Str("idempotency_key", key).Int64("booking_id", existing.ID).Msg("Idempotent reservation replayed")
			return existing, nil
		}
	}

	now := s.clock.Now().UTC()
	if err := s.validateRequest(&req, now); err != nil {
		metrics.IncReservation(req.BookingType, "invalid")
		return nil, err
	}

	var booking, replay *models.Booking
	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		existing, err := tx.BookingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			replay = existing
			return nil
		}

		b, err := s.reserve(ctx, tx, key, req, now)
		if err != nil {
			return err
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		return tx.EnqueueEvent(ctx, events.EventBookingCreated, b.ID, events.NewBookingPayload(b, "", now))
	})

	if errors.Is(err, database.ErrDuplicateIdempotencyKey) {
		replay, err = s.db.BookingByKey(ctx, key)
		if err == nil && replay == nil {
			err = domain.NotFound("booking with idempotency key", key)
		}
	}
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			metrics.IncReservation(req.BookingType, "conflict")
			s.logger.Info().
				Str("code", conflict.Code).
				Str("date", conflict.Date.Format(models.DateLayout)).
				Int64("room_type_id", req.RoomTypeID).
				Msg("Reservation rejected")
		} else {
			metrics.IncReservation(req.BookingType, "error")
		}
		return nil, err
	}

	if replay != nil {
		metrics.IncReservation(req.BookingType, "replayed")
		s.logger.Debug().Str("idempotency_key", key).Int64("booking_id", replay.ID).Msg("Idempotent reservation replayed")
		return replay, nil
	}

	metrics.IncReservation(req.BookingType, "success")
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("room_type_id", booking.RoomTypeID).
		Str("type", booking.BookingType).
		Int("rooms", booking.NumRooms).
		Int64("total", booking.TotalAmount).
		Msg("Booking reserved")

	invalidateAvailability(ctx, s.cache, booking.HotelID, s.logger)
	publish(s.events, s.logger, events.EventBookingCreated, events.NewBookingPayload(booking, "", now))
	return booking, nil
}

// reserve takes the capacity and prices the booking from the rows it read
// inside tx.
func (s *ReservationService) reserve(ctx context.Context, tx *database.Tx, key string, req models.ReservationRequest, now time.Time) (*models.Booking, error) {
	hotel, err := tx.GetHotel(ctx, req.HotelID)
	if err != nil {
		return nil, err
	}
	if !hotel.IsActive {
		return nil, domain.NotFound("hotel", req.HotelID)
	}
	rt, err := tx.GetRoomType(ctx, req.RoomTypeID)
	if err != nil {
		return nil, err
	}
	if rt.HotelID != hotel.ID || !rt.IsActive {
		return nil, domain.NotFound("room type", req.RoomTypeID)
	}
	if req.NumGuests > rt.GuestCapacity(req.NumRooms) {
		return nil, domain.Invalid("num_guests", "%d rooms fit at most %d guests", req.NumRooms, rt.GuestCapacity(req.NumRooms))
	}

	var roomTotal, extra int64
	switch req.BookingType {
	case models.BookingTypeHourly:
		if !rt.HourlyEnabled() {
			return nil, domain.Invalid("room_type_id", "room type %d is not bookable by the hour", rt.ID)
		}
		minHours, maxHours := rt.HourBounds(hotel)
		if req.NumHours < minHours || req.NumHours > maxHours {
			return nil, domain.Invalid("num_hours", "duration of %d hours is outside the allowed %d-%d hours", req.NumHours, minHours, maxHours)
		}
		start, _ := models.ParseHour(req.StartTime)
		open, closing := operatingWindow(hotel, s.cfg)
		if start < open || start+req.NumHours > closing {
			return nil, domain.Invalid("start_time", "slot must fit between %s and %s", models.HourLabel(open), models.HourLabel(closing))
		}

		cells, err := tx.ReserveHourCells(ctx, rt, req.CheckIn, start, req.NumHours, req.NumRooms)
		if err != nil {
			return nil, err
		}
		var sum int64
		for i := range cells {
			sum += cells[i].CellPrice(rt)
		}
		roomTotal = sum * int64(req.NumRooms)
		extra = extraGuestTotal(rt, req.NumRooms, req.NumGuests, 1)

	default:
		nights := models.StayNights(req.CheckIn, req.CheckOut)
		rows, err := tx.ReserveNights(ctx, rt, nights, req.NumRooms)
		if err != nil {
			return nil, err
		}
		var sum int64
		for i := range rows {
			sum += rows[i].NightPrice(rt)
		}
		roomTotal = sum * int64(req.NumRooms)
		extra = extraGuestTotal(rt, req.NumRooms, req.NumGuests, len(nights))
	}

	quote := s.pricer.Quote(roomTotal, extra)
	commission, payout := Commission(quote.TotalAmount, hotel.CommissionRate)
	expires := now.Add(s.cfg.PendingTimeout)

	return &models.Booking{
		IdempotencyKey:   key,
		GuestName:        req.GuestName,
		GuestEmail:       req.GuestEmail,
		GuestPhone:       req.GuestPhone,
		HotelID:          hotel.ID,
		RoomTypeID:       rt.ID,
		BookingType:      req.BookingType,
		CheckIn:          req.CheckIn,
		CheckOut:         req.CheckOut,
		StartTime:        req.StartTime,
		NumHours:         req.NumHours,
		NumRooms:         req.NumRooms,
		NumGuests:        req.NumGuests,
		RoomTotal:        quote.RoomTotal,
		ExtraGuestTotal:  quote.ExtraGuestTotal,
		Taxes:            quote.Taxes,
		TotalAmount:      quote.TotalAmount,
		CommissionRate:   hotel.CommissionRate,
		CommissionAmount: commission,
		HotelPayout:      payout,
		Status:           models.StatusPending,
		PaymentStatus:    models.PaymentUnpaid,
		ExpiresAt:        &expires,
		CreatedAt:        now,
	}, nil
}

// validateRequest normalizes req and checks everything that does not need the store.
func (s *ReservationService) validateRequest(req *models.ReservationRequest, now time.Time) error {
	if req.BookingType == "" {
		req.BookingType = models.BookingTypeDaily
	}
	if req.BookingType != models.BookingTypeDaily && req.BookingType != models.BookingTypeHourly {
		return domain.Invalid("booking_type", "unknown booking type %q", req.BookingType)
	}
	if strings.TrimSpace(req.GuestName) == "" {
		return domain.Invalid("guest_name", "is required")
	}
	if req.NumRooms < 1 {
		return domain.Invalid("num_rooms", "must be at least 1")
	}
	if req.NumGuests == 0 {
		req.NumGuests = req.NumRooms
	}
	if req.NumGuests < 1 {
		return domain.Invalid("num_guests", "must be at least 1")
	}
	if req.CheckIn.IsZero() {
		return domain.Invalid("check_in", "is required")
	}
	req.CheckIn = models.Day(req.CheckIn)

	// Проверяем окно бронирования
	today := models.Day(now)
	if req.CheckIn.Before(today) {
		return domain.Invalid("check_in", "date %s is in the past", req.CheckIn.Format(models.DateLayout))
	}
	if req.CheckIn.After(today.AddDate(0, 0, s.cfg.MaxBookingDays)) {
		return domain.Invalid("check_in", "date is more than %d days ahead", s.cfg.MaxBookingDays)
	}

	if req.BookingType == models.BookingTypeHourly {
		if req.NumHours < 1 {
			return domain.Invalid("num_hours", "must be at least 1")
		}
		start, err := models.ParseHour(req.StartTime)
		if err != nil {
			return domain.Invalid("start_time", "%v", err)
		}
		if req.CheckIn.Equal(today) && start <= now.Hour() {
			return domain.Invalid("start_time", "slot %s has already started", req.StartTime)
		}
		req.CheckOut = req.CheckIn
		return nil
	}

	req.StartTime = ""
	req.NumHours = 0
	if req.CheckOut.IsZero() {
		req.CheckOut = req.CheckIn.AddDate(0, 0, 1)
	}
	req.CheckOut = models.Day(req.CheckOut)
	nights := models.DaysBetween(req.CheckOut, req.CheckIn)
	if nights < 1 {
		return domain.Invalid("check_out", "must be after check-in")
	}
	if nights > models.MaxStayNights {
		return domain.Invalid("check_out", "stay of %d nights exceeds %d", nights, models.MaxStayNights)
	}
	return nil
}

// publish fans an event out in-process after the transaction that recorded
// it has committed.
func publish(publisher domain.EventPublisher, logger *zerolog.Logger, eventType string, payload interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
