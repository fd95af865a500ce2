package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/metrics"
	"staybook/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityService answers read-only availability and price questions.
// Answers may be served from the cache and can be slightly stale; the
// reservation path never consults it.
type AvailabilityService struct {
	db     *database.DB
	cache  domain.AvailabilityCache
	pricer Pricer
	cfg    config.BookingConfig
	clock  domain.Clock
	logger *zerolog.Logger
}

func NewAvailabilityService(db *database.DB, cache domain.AvailabilityCache, cfg config.BookingConfig, clock domain.Clock, logger *zerolog.Logger) *AvailabilityService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &AvailabilityService{
		db:     db,
		cache:  cache,
		pricer: NewPricer(cfg.TaxRate),
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

func (s *AvailabilityService) CheckDaily(ctx context.Context, q models.DailyQuery) (*models.DailyAvailability, error) {
	if q.CheckIn.IsZero() {
		return nil, domain.Invalid("check_in", "is required")
	}
	q.CheckIn = models.Day(q.CheckIn)
	if q.CheckOut.IsZero() {
		q.CheckOut = q.CheckIn.AddDate(0, 0, 1)
	}
	q.CheckOut = models.Day(q.CheckOut)

	nights := models.DaysBetween(q.CheckOut, q.CheckIn)
	if nights < 1 {
		return nil, domain.Invalid("check_out", "must be after check-in")
	}
	if nights > models.MaxStayNights {
		return nil, domain.Invalid("check_out", "stay of %d nights exceeds %d", nights, models.MaxStayNights)
	}
	if q.NumRooms < 1 {
		return nil, domain.Invalid("num_rooms", "must be at least 1")
	}
	if q.NumGuests < 0 {
		return nil, domain.Invalid("num_guests", "must not be negative")
	}

	hotel, err := s.activeHotel(ctx, q.HotelID)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("daily:%d:%s:%s:%d:%d", q.RoomTypeID, q.CheckIn.Format(models.DateLayout),
		q.CheckOut.Format(models.DateLayout), q.NumRooms, q.NumGuests)
	var cached models.DailyAvailability
	if s.fromCache(ctx, hotel.ID, cacheKey, &cached) {
		return &cached, nil
	}

	roomTypes, err := s.candidates(ctx, hotel.ID, q.RoomTypeID)
	if err != nil {
		return nil, err
	}

	result := &models.DailyAvailability{
		HotelID:     hotel.ID,
		CheckIn:     q.CheckIn,
		CheckOut:    q.CheckOut,
		Nights:      nights,
		NumRooms:    q.NumRooms,
		NumGuests:   q.NumGuests,
		Available:   []models.DailyRoomAvailability{},
		Unavailable: []models.DailyRoomAvailability{},
	}
	stay := models.StayNights(q.CheckIn, q.CheckOut)

	for _, rt := range roomTypes {
		rows, err := s.db.DailyInventory(ctx, rt.ID, q.CheckIn, q.CheckOut)
		if err != nil {
			return nil, err
		}
		view := dailyView(rt, stay, rows, q.NumRooms, q.NumGuests, s.pricer)
		if view.IsAvailable {
			result.Available = append(result.Available, view)
		} else {
			result.Unavailable = append(result.Unavailable, view)
		}
	}

	s.toCache(ctx, hotel.ID, cacheKey, result)
	return result, nil
}

// dailyView evaluates one room type over the stay. Days without an inventory
// row fall back to the room type defaults.
func dailyView(rt *models.RoomType, stay []time.Time, rows map[string]models.RoomInventory, numRooms, numGuests int, pricer Pricer) models.DailyRoomAvailability {
	view := models.DailyRoomAvailability{
		RoomTypeID:   rt.ID,
		RoomTypeName: rt.Name,
		Nights:       len(stay),
		MinAvailable: math.MaxInt32,
		NightlyRates: make([]models.NightRate, 0, len(stay)),
	}

	var sum int64
	maxMinStay := 1
	var closedOn, shortOn string
	for _, night := range stay {
		key := night.Format(models.DateLayout)
		inv, ok := rows[key]
		if !ok {
			inv = models.DefaultInventory(rt, night)
		}
		price := inv.NightPrice(rt)
		sum += price

		if inv.AvailableCount < view.MinAvailable {
			view.MinAvailable = inv.AvailableCount
		}
		if inv.IsClosed && closedOn == "" {
			closedOn = key
		}
		if inv.AvailableCount < numRooms && shortOn == "" {
			shortOn = key
		}
		if inv.MinStayNights > maxMinStay {
			maxMinStay = inv.MinStayNights
		}
		view.NightlyRates = append(view.NightlyRates, models.NightRate{
			Date:      night,
			Available: inv.AvailableCount,
			Price:     price,
			IsClosed:  inv.IsClosed,
			MinStay:   inv.MinStayNights,
		})
	}
	if len(stay) == 0 {
		view.MinAvailable = 0
	}

	view.TotalPrice = int64(numRooms) * sum
	if len(stay) > 0 {
		view.PricePerNight = view.TotalPrice / int64(len(stay))
	}
	view.Quote = pricer.Quote(view.TotalPrice, extraGuestTotal(rt, numRooms, numGuests, len(stay)))

	switch {
	case closedOn != "":
		view.Reason = "closed on " + closedOn
	case shortOn != "":
		view.Reason = fmt.Sprintf("only %d rooms left on %s", view.MinAvailable, shortOn)
	case len(stay) < maxMinStay:
		view.Reason = fmt.Sprintf("minimum stay is %d nights", maxMinStay)
	case numGuests > rt.GuestCapacity(numRooms):
		view.Reason = fmt.Sprintf("%d rooms fit at most %d guests", numRooms, rt.GuestCapacity(numRooms))
	default:
		view.IsAvailable = true
	}
	return view
}

func (s *AvailabilityService) CheckHourly(ctx context.Context, q models.HourlyQuery) (*models.HourlyAvailability, error) {
	if q.Date.IsZero() {
		return nil, domain.Invalid("date", "is required")
	}
	q.Date = models.Day(q.Date)
	if q.NumHours < 1 {
		return nil, domain.Invalid("num_hours", "must be at least 1")
	}
	if q.NumRooms < 1 {
		return nil, domain.Invalid("num_rooms", "must be at least 1")
	}
	startHour := -1
	if q.StartTime != "" {
		h, err := models.ParseHour(q.StartTime)
		if err != nil {
			return nil, domain.Invalid("start_time", "%v", err)
		}
		startHour = h
	}

	hotel, err := s.activeHotel(ctx, q.HotelID)
	if err != nil {
		return nil, err
	}

	// starts up to this hour have already begun
	startedUpTo := -1
	now := s.clock.Now().UTC()
	switch today := models.Day(now); {
	case q.Date.Before(today):
		startedUpTo = 23
	case q.Date.Equal(today):
		startedUpTo = now.Hour()
	}

	cacheKey := fmt.Sprintf("hourly:%d:%s:%s:%d:%d:%d", q.RoomTypeID, q.Date.Format(models.DateLayout),
		q.StartTime, q.NumHours, q.NumRooms, startedUpTo)
	var cached models.HourlyAvailability
	if s.fromCache(ctx, hotel.ID, cacheKey, &cached) {
		return &cached, nil
	}

	roomTypes, err := s.candidates(ctx, hotel.ID, q.RoomTypeID)
	if err != nil {
		return nil, err
	}

	open, closing := operatingWindow(hotel, s.cfg)
	result := &models.HourlyAvailability{
		HotelID:     hotel.ID,
		Date:        q.Date,
		NumHours:    q.NumHours,
		NumRooms:    q.NumRooms,
		Available:   []models.HourlyRoomAvailability{},
		Unavailable: []models.HourlyRoomAvailability{},
	}

	for _, rt := range roomTypes {
		if !rt.HourlyEnabled() {
			continue
		}
		minHours, maxHours := rt.HourBounds(hotel)
		view := models.HourlyRoomAvailability{
			RoomTypeID:   rt.ID,
			RoomTypeName: rt.Name,
			MinHours:     minHours,
			MaxHours:     maxHours,
			Slots:        []models.HourlySlotOption{},
		}

		if q.NumHours < minHours || q.NumHours > maxHours {
			view.Reason = fmt.Sprintf("duration of %d hours is outside the allowed %d-%d hours", q.NumHours, minHours, maxHours)
			result.Unavailable = append(result.Unavailable, view)
			continue
		}

		cells, err := s.db.HourlySlots(ctx, rt.ID, q.Date)
		if err != nil {
			return nil, err
		}
		view.Slots = hourlyOptions(rt, q.Date, cells, open, closing, q.NumHours, q.NumRooms, startHour, startedUpTo)
		if len(view.Slots) > 0 {
			view.IsAvailable = true
			result.Available = append(result.Available, view)
		} else {
			view.Reason = "no free slots"
			result.Unavailable = append(result.Unavailable, view)
		}
	}

	s.toCache(ctx, hotel.ID, cacheKey, result)
	return result, nil
}

// hourlyOptions lists the start times in [open, closing-numHours] whose cells
// all have numRooms free and are open. startHour < 0 means any start; starts
// at or before startedUpTo are skipped.
func hourlyOptions(rt *models.RoomType, date time.Time, cells map[string]models.HourlySlot, open, closing, numHours, numRooms, startHour, startedUpTo int) []models.HourlySlotOption {
	options := []models.HourlySlotOption{}
	for start := open; start+numHours <= closing; start++ {
		if startHour >= 0 && start != startHour {
			continue
		}
		if start <= startedUpTo {
			continue
		}

		available := math.MaxInt32
		closed := false
		var price int64
		for h := start; h < start+numHours; h++ {
			cell, ok := cells[models.HourLabel(h)]
			if !ok {
				cell = models.DefaultHourlySlot(rt, date, h)
			}
			if cell.AvailableCount < available {
				available = cell.AvailableCount
			}
			closed = closed || cell.IsClosed
			price += cell.CellPrice(rt)
		}

		if closed || available < numRooms {
			continue
		}
		options = append(options, models.HourlySlotOption{
			StartTime: models.HourLabel(start),
			EndTime:   models.HourLabel(start + numHours),
			Available: available,
			Price:     price * int64(numRooms),
		})
	}
	return options
}

// operatingWindow returns the hotel's hourly window, or the configured default
// when the hotel does not set one.
func operatingWindow(hotel *models.Hotel, cfg config.BookingConfig) (open, closing int) {
	if hotel.HourlyCloseHour > hotel.HourlyOpenHour {
		return hotel.HourlyOpenHour, hotel.HourlyCloseHour
	}
	if cfg.HourlyCloseHour > cfg.HourlyOpenHour {
		return cfg.HourlyOpenHour, cfg.HourlyCloseHour
	}
	return models.DefaultHourlyOpenHour, models.DefaultHourlyCloseHour
}

// SetOverride applies an admin price, closure or minimum-stay change to a
// night or, when SlotStart is set, to an hour cell. Held rooms are kept.
func (s *AvailabilityService) SetOverride(ctx context.Context, roomTypeID int64, o models.InventoryOverride) error {
	if o.Date.IsZero() {
		return domain.Invalid("date", "is required")
	}
	o.Date = models.Day(o.Date)
	rt, err := s.db.GetRoomType(ctx, roomTypeID)
	if err != nil {
		return err
	}

	if o.SlotStart != "" {
		if !rt.HourlyEnabled() {
			return domain.Invalid("slot_start", "room type %d has no hourly rate", rt.ID)
		}
		if o.MinStayNights > 0 {
			return domain.Invalid("min_stay_nights", "does not apply to hour cells")
		}
		err = s.db.SetHourlyOverride(ctx, rt, o)
	} else {
		err = s.db.SetDailyOverride(ctx, rt, o)
	}
	if err != nil {
		return err
	}

	s.logger.Info().
		Int64("room_type_id", rt.ID).
		Str("date", o.Date.Format(models.DateLayout)).
		Str("slot", o.SlotStart).
		Bool("closed", o.IsClosed).
		Msg("Inventory override set")
	invalidateAvailability(ctx, s.cache, rt.HotelID, s.logger)
	return nil
}

func (s *AvailabilityService) activeHotel(ctx context.Context, hotelID int64) (*models.Hotel, error) {
	hotel, err := s.db.GetHotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}
	if !hotel.IsActive {
		return nil, domain.NotFound("hotel", hotelID)
	}
	return hotel, nil
}

func (s *AvailabilityService) candidates(ctx context.Context, hotelID, roomTypeID int64) ([]*models.RoomType, error) {
	roomTypes, err := s.db.ListRoomTypes(ctx, hotelID, true)
	if err != nil {
		return nil, err
	}
	if roomTypeID == 0 {
		return roomTypes, nil
	}
	for _, rt := range roomTypes {
		if rt.ID == roomTypeID {
			return []*models.RoomType{rt}, nil
		}
	}
	return nil, domain.NotFound("room type", roomTypeID)
}

func (s *AvailabilityService) fromCache(ctx context.Context, hotelID int64, key string, dst interface{}) bool {
	if s.cache == nil {
		return false
	}
	raw, ok, err := s.cache.Get(ctx, hotelID, key)
	if err != nil {
		metrics.IncAvailabilityCache("error")
		s.logger.Warn().Err(err).Int64("hotel_id", hotelID).Msg("Availability cache read failed")
		return false
	}
	if !ok {
		metrics.IncAvailabilityCache("miss")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		metrics.IncAvailabilityCache("error")
		return false
	}
	metrics.IncAvailabilityCache("hit")
	return true
}

func (s *AvailabilityService) toCache(ctx context.Context, hotelID int64, key string, value interface{}) {
	if s.cache == nil || s.cfg.AvailabilityCacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, hotelID, key, raw, s.cfg.AvailabilityCacheTTL); err != nil {
		s.logger.Warn().Err(err).Int64("hotel_id", hotelID).Msg("Availability cache write failed")
	}
}

// invalidateAvailability drops cached answers of a hotel after its inventory changed.
func invalidateAvailability(ctx context.Context, cache domain.AvailabilityCache, hotelID int64, logger *zerolog.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, hotelID); err != nil {
		logger.Warn().Err(err).Int64("hotel_id", hotelID).Msg("Availability cache invalidation failed")
	}
}
