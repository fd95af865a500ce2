package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"staybook/internal/domain"
	"staybook/internal/events"
	"staybook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking_Daily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b, err := env.reservation.CreateBooking(ctx, "key-1", dailyRequest(testDeluxeID, "2026-03-05", 2, 1, 3))
	require.NoError(t, err)

	assert.NotZero(t, b.ID)
	assert.Equal(t, "key-1", b.IdempotencyKey)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, models.PaymentUnpaid, b.PaymentStatus)
	assert.Equal(t, int64(1000000), b.RoomTotal)
	assert.Equal(t, int64(200000), b.ExtraGuestTotal)
	assert.Equal(t, int64(144000), b.Taxes)
	assert.Equal(t, int64(1344000), b.TotalAmount)
	assert.Equal(t, b.RoomTotal+b.ExtraGuestTotal+b.Taxes, b.TotalAmount)
	assert.Equal(t, 15.0, b.CommissionRate)
	assert.Equal(t, int64(201600), b.CommissionAmount)
	assert.Equal(t, int64(1142400), b.HotelPayout)
	require.NotNil(t, b.ExpiresAt)
	assert.Equal(t, env.clock.Now().Add(env.cfg.PendingTimeout), *b.ExpiresAt)

	assert.Equal(t, 9, availableOn(t, env.db, testDeluxeID, "2026-03-05", 10))
	assert.Equal(t, 9, availableOn(t, env.db, testDeluxeID, "2026-03-06", 10))
	assert.Equal(t, 10, availableOn(t, env.db, testDeluxeID, "2026-03-07", 10))

	assert.Contains(t, env.published, events.EventBookingCreated)
	assert.Equal(t, 1, env.cache.invalidations)

	pending, err := env.db.GetPendingEvents(ctx, env.clock.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events.EventBookingCreated, pending[0].EventType)
	assert.Equal(t, b.ID, pending[0].BookingID)

	t.Run("IdempotentReplay", func(t *testing.T) {
		again, err := env.reservation.CreateBooking(ctx, "key-1", dailyRequest(testDeluxeID, "2026-03-05", 2, 1, 3))
		require.NoError(t, err)
		assert.Equal(t, b.ID, again.ID)
		assert.Equal(t, 9, availableOn(t, env.db, testDeluxeID, "2026-03-05", 10))
	})

	t.Run("GeneratedKey", func(t *testing.T) {
		other, err := env.reservation.CreateBooking(ctx, "", dailyRequest(testDeluxeID, "2026-03-05", 1, 1, 1))
		require.NoError(t, err)
		assert.NotEmpty(t, other.IdempotencyKey)
		assert.NotEqual(t, b.ID, other.ID)
		assert.Equal(t, 8, availableOn(t, env.db, testDeluxeID, "2026-03-05", 10))
	})

	t.Run("CommissionSnapshot", func(t *testing.T) {
		hotel, err := env.db.GetHotel(ctx, testHotelID)
		require.NoError(t, err)
		hotel.CommissionRate = 25
		roomTypes, err := env.db.ListRoomTypes(ctx, testHotelID, false)
		require.NoError(t, err)
		for _, rt := range roomTypes {
			hotel.RoomTypes = append(hotel.RoomTypes, *rt)
		}
		require.NoError(t, env.db.UpsertHotel(ctx, hotel))

		stored, err := env.db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(201600), stored.CommissionAmount)
		assert.Equal(t, 15.0, stored.CommissionRate)
	})
}

func TestCreateBooking_SoldOutLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sellOut(t, env.db, testSuiteID, "2026-03-07")

	_, err := env.reservation.CreateBooking(ctx, "k", dailyRequest(testSuiteID, "2026-03-05", 3, 1, 2))
	require.Error(t, err)

	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, domain.CodeSoldOut, conflict.Code)
	assert.Equal(t, "2026-03-07", conflict.Date.Format(models.DateLayout))

	// nights before the sold-out one were rolled back
	assert.Equal(t, 2, availableOn(t, env.db, testSuiteID, "2026-03-05", 2))
	assert.Equal(t, 2, availableOn(t, env.db, testSuiteID, "2026-03-06", 2))

	existing, err := env.db.BookingByKey(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, existing)

	t.Run("TooManyRooms", func(t *testing.T) {
		_, err := env.reservation.CreateBooking(ctx, "", dailyRequest(testSuiteID, "2026-04-01", 1, 3, 3))
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})

	t.Run("ClosedNight", func(t *testing.T) {
		require.NoError(t, env.availability.SetOverride(ctx, testSuiteID, models.InventoryOverride{Date: day("2026-04-10"), IsClosed: true}))
		_, err := env.reservation.CreateBooking(ctx, "", dailyRequest(testSuiteID, "2026-04-10", 1, 1, 1))
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, domain.CodeClosed, conflict.Code)
	})
}

func TestCreateBooking_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, soldOut int

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.reservation.CreateBooking(ctx, fmt.Sprintf("guest-%d", i), dailyRequest(testSuiteID, "2026-03-05", 2, 1, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrConflict):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, attempts-2, soldOut)
	assert.Equal(t, 0, availableOn(t, env.db, testSuiteID, "2026-03-05", 2))
	assert.Equal(t, 0, availableOn(t, env.db, testSuiteID, "2026-03-06", 2))

	reserved, err := env.db.ReservedRooms(ctx, testSuiteID, day("2026-03-05"))
	require.NoError(t, err)
	assert.Equal(t, 2, reserved)
}

func TestCreateBooking_Hourly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := models.ReservationRequest{
		HotelID:     testHotelID,
		RoomTypeID:  testDeluxeID,
		BookingType: models.BookingTypeHourly,
		CheckIn:     day("2026-03-05"),
		StartTime:   "14:00",
		NumHours:    3,
		NumRooms:    1,
		NumGuests:   2,
		GuestName:   "Hour Guest",
	}
	b, err := env.reservation.CreateBooking(ctx, "hourly-1", req)
	require.NoError(t, err)
	assert.Equal(t, int64(180000), b.RoomTotal)
	assert.Equal(t, int64(21600), b.Taxes)
	assert.Equal(t, int64(201600), b.TotalAmount)
	assert.Equal(t, b.CheckIn, b.CheckOut)

	cells, err := env.db.HourlySlots(ctx, testDeluxeID, day("2026-03-05"))
	require.NoError(t, err)
	require.Len(t, cells, 3)
	for _, start := range []string{"14:00", "15:00", "16:00"} {
		assert.Equal(t, 9, cells[start].AvailableCount, start)
	}

	t.Run("BoundsViolation", func(t *testing.T) {
		short := req
		short.NumHours = 2
		_, err := env.reservation.CreateBooking(ctx, "", short)
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("OutsideOperatingWindow", func(t *testing.T) {
		late := req
		late.StartTime = "21:00"
		_, err := env.reservation.CreateBooking(ctx, "", late)
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("RoomTypeWithoutHourlyRate", func(t *testing.T) {
		suite := req
		suite.RoomTypeID = testSuiteID
		_, err := env.reservation.CreateBooking(ctx, "", suite)
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})
}

func TestCreateBooking_ReplayAfterWindowClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hourly := models.ReservationRequest{
		HotelID:     testHotelID,
		RoomTypeID:  testDeluxeID,
		BookingType: models.BookingTypeHourly,
		CheckIn:     day("2026-03-01"),
		StartTime:   "14:00",
		NumHours:    3,
		NumRooms:    1,
		NumGuests:   1,
		GuestName:   "Late Retry",
	}
	slot, err := env.reservation.CreateBooking(ctx, "late-hourly", hourly)
	require.NoError(t, err)
	stay, err := env.reservation.CreateBooking(ctx, "late-daily", dailyRequest(testSuiteID, "2026-03-01", 1, 1, 1))
	require.NoError(t, err)

	env.clock.Set(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC))

	again, err := env.reservation.CreateBooking(ctx, "late-hourly", hourly)
	require.NoError(t, err)
	assert.Equal(t, slot.ID, again.ID)

	again, err = env.reservation.CreateBooking(ctx, " late-daily ", dailyRequest(testSuiteID, "2026-03-01", 1, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, stay.ID, again.ID)
	assert.Equal(t, 1, availableOn(t, env.db, testSuiteID, "2026-03-01", 2))

	_, err = env.reservation.CreateBooking(ctx, "fresh", dailyRequest(testSuiteID, "2026-03-01", 1, 1, 1))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCreateBooking_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *models.ReservationRequest)
	}{
		{"PastDate", func(r *models.ReservationRequest) {
			r.CheckIn, r.CheckOut = day("2026-02-28"), day("2026-03-01")
		}},
		{"TooFarAhead", func(r *models.ReservationRequest) {
			r.CheckIn, r.CheckOut = day("2027-03-02"), day("2027-03-03")
		}},
		{"EmptyRange", func(r *models.ReservationRequest) { r.CheckOut = r.CheckIn }},
		{"NoGuestName", func(r *models.ReservationRequest) { r.GuestName = " " }},
		{"NoRooms", func(r *models.ReservationRequest) { r.NumRooms = 0 }},
		{"TooManyGuests", func(r *models.ReservationRequest) { r.NumGuests = 4 }},
		{"UnknownType", func(r *models.ReservationRequest) { r.BookingType = "weekly" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := dailyRequest(testDeluxeID, "2026-03-05", 1, 1, 2)
			tt.mutate(&req)
			_, err := env.reservation.CreateBooking(ctx, "", req)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
		})
	}

	_, err := env.reservation.CreateBooking(ctx, "", dailyRequest(99, "2026-03-05", 1, 1, 1))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
