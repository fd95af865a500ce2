package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/events"
	"staybook/internal/models"
	"staybook/internal/payment"
	"staybook/internal/report"
	"staybook/internal/repository"
	"staybook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

const (
	testHotelID = int64(1)
	testRoomID  = int64(10)
	testAPIKey  = "front-desk"
	testExtra   = "s3cret"
)

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: testAPIKey, Extra: testExtra, Name: "desk"},
				{Key: "search", Extra: "ro", Name: "search", Permissions: []string{PermReadAvailability}},
			},
		},
	}
}

func newTestServer(t *testing.T, cfg config.APIConfig) (http.Handler, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hourly := int64(60000)
	require.NoError(t, db.UpsertHotel(context.Background(), &models.Hotel{
		ID: testHotelID, Name: "Harbor View", CommissionRate: 10, HourlyMinHours: 2, HourlyMaxHours: 6, IsActive: true,
		RoomTypes: []models.RoomType{{
			ID: testRoomID, Name: "Deluxe", BasePriceDaily: 500000, BasePriceHourly: &hourly,
			MaxGuests: 2, TotalRooms: 1, IsActive: true,
		}},
	}))

	bookingCfg := config.BookingConfig{
		TaxRate: 12, PendingTimeout: 15 * time.Minute, MaxBookingDays: 365,
		AvailabilityCacheTTL: time.Minute, HourlyOpenHour: 6, HourlyCloseHour: 23,
	}
	clock := fixedClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	cache := repository.NewAvailabilityCache(nil, &logger)
	bus := events.NewEventBus()

	availability := service.NewAvailabilityService(db, cache, bookingCfg, clock, &logger)
	lifecycle := service.NewLifecycleService(db, cache, bus, clock, &logger)
	svc := Services{
		Availability: availability,
		Inventory:    availability,
		Reservations: service.NewReservationService(db, cache, bus, bookingCfg, clock, &logger),
		Lifecycle:    lifecycle,
		Payments:     service.NewSettlementService(db, payment.NewDemoGateway(), lifecycle, bus, "INR", clock, &logger),
		Store:        db,
		Exporter:     report.NewSettlementExporter(db, t.TempDir(), &logger),
	}
	return NewHTTPServer(cfg, svc, &logger).Handler(), db
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("X-API-Extra", testExtra)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestHTTP_BookingFlow(t *testing.T) {
	h, _ := newTestServer(t, testAPIConfig())

	rec := doRequest(t, h, http.MethodGet, "/api/v1/hotels/1/availability/daily?check_in=2026-03-05&check_out=2026-03-07&guests=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var avail models.DailyAvailability
	decode(t, rec, &avail)
	assert.Equal(t, 2, avail.Nights)
	require.Len(t, avail.Available, 1)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	create := map[string]interface{}{
		"hotel_id": testHotelID, "room_type_id": testRoomID, "booking_type": "daily",
		"check_in": "2026-03-05", "check_out": "2026-03-07", "num_rooms": 1, "num_guests": 2,
		"guest_name": "Ann Guest",
	}
	rec = doRequest(t, h, http.MethodPost, "/api/v1/bookings", create, map[string]string{idempotencyHeader: "order-77"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "order-77", rec.Header().Get(idempotencyHeader))
	var booking models.Booking
	decode(t, rec, &booking)
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, int64(1120000), booking.TotalAmount)

	t.Run("Replay", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/api/v1/bookings", create, map[string]string{idempotencyHeader: "order-77"})
		require.Equal(t, http.StatusCreated, rec.Code)
		var again models.Booking
		decode(t, rec, &again)
		assert.Equal(t, booking.ID, again.ID)
	})

	t.Run("SoldOut", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/api/v1/bookings", create, nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		var resp errorResponse
		decode(t, rec, &resp)
		assert.Equal(t, "SOLD_OUT", resp.Code)
		assert.Equal(t, "2026-03-05", resp.Date)
	})

	id := strconv.FormatInt(booking.ID, 10)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/check-in", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "pending bookings cannot check in")

	rec = doRequest(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/payments", map[string]string{"method": "upi"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order models.OrderDescriptor
	decode(t, rec, &order)
	assert.Equal(t, booking.TotalAmount, order.Amount)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/payments/"+strconv.FormatInt(order.PaymentID, 10)+"/confirm", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmed models.ConfirmResult
	decode(t, rec, &confirmed)
	assert.True(t, confirmed.Success)
	assert.Equal(t, models.StatusConfirmed, confirmed.Booking.Status)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/refunds", map[string]int64{"amount": 120000}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refund models.RefundResult
	decode(t, rec, &refund)
	assert.Equal(t, int64(120000), refund.TotalRefunded)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/cancel", map[string]string{"reason": "plans changed"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/api/v1/bookings/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &booking)
	assert.Equal(t, models.StatusCancelled, booking.Status)
	assert.Equal(t, "plans changed", booking.CancellationReason)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/hotels/1/settlements/export?from=2026-03-01&to=2026-03-31", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "settlement_1_2026-03-01_to_2026-03-31.xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	title, err := f.GetCellValue("Settlement", "A1")
	require.NoError(t, err)
	assert.Contains(t, title, "Harbor View")
}

func TestHTTP_Hourly(t *testing.T) {
	h, _ := newTestServer(t, testAPIConfig())

	rec := doRequest(t, h, http.MethodGet, "/api/v1/hotels/1/availability/hourly?date=2026-03-05&room_type_id=10&start_time=10:00&hours=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, h, http.MethodPost, "/api/v1/bookings", map[string]interface{}{
		"hotel_id": testHotelID, "room_type_id": testRoomID, "booking_type": "hourly",
		"check_in": "2026-03-05", "start_time": "10:00", "num_hours": 2, "num_rooms": 1, "guest_name": "Hour Guest",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(idempotencyHeader), "generated key is echoed")
}

func TestHTTP_InventoryOverride(t *testing.T) {
	h, db := newTestServer(t, testAPIConfig())

	rec := doRequest(t, h, http.MethodPost, "/api/v1/bookings", map[string]interface{}{
		"hotel_id": testHotelID, "room_type_id": testRoomID, "booking_type": "daily",
		"check_in": "2026-03-05", "check_out": "2026-03-06", "num_rooms": 1, "guest_name": "Held",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, h, http.MethodPut, "/api/v1/room-types/10/inventory", map[string]interface{}{
		"date": "2026-03-05", "price_override": 450000,
	}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rows, err := db.DailyInventory(context.Background(), testRoomID, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, rows["2026-03-05"].AvailableCount, "the held room stays held")

	rec = doRequest(t, h, http.MethodPut, "/api/v1/room-types/10/inventory", map[string]interface{}{
		"date": "2026-03-06", "is_closed": true,
	}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/api/v1/hotels/1/availability/daily?check_in=2026-03-06", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.DailyAvailability
	decode(t, rec, &res)
	require.Len(t, res.Unavailable, 1)
	assert.Equal(t, "closed on 2026-03-06", res.Unavailable[0].Reason)

	rec = doRequest(t, h, http.MethodPut, "/api/v1/room-types/10/inventory", map[string]interface{}{"is_closed": true}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_RequestErrors(t *testing.T) {
	h, _ := newTestServer(t, testAPIConfig())

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		code   int
		errTag string
	}{
		{"BadDate", http.MethodGet, "/api/v1/hotels/1/availability/daily?check_in=05.03.2026", nil, http.StatusBadRequest, "validation_error"},
		{"MissingCheckIn", http.MethodGet, "/api/v1/hotels/1/availability/daily", nil, http.StatusBadRequest, "validation_error"},
		{"BadID", http.MethodGet, "/api/v1/bookings/abc", nil, http.StatusBadRequest, "validation_error"},
		{"UnknownBooking", http.MethodGet, "/api/v1/bookings/999", nil, http.StatusNotFound, "not_found"},
		{"UnknownHotel", http.MethodGet, "/api/v1/hotels/7/availability/daily?check_in=2026-03-05", nil, http.StatusNotFound, "not_found"},
		{"ExportRange", http.MethodGet, "/api/v1/hotels/1/settlements/export?from=2026-03-10&to=2026-03-01", nil, http.StatusBadRequest, "validation_error"},
		{"PastCheckIn", http.MethodPost, "/api/v1/bookings", map[string]interface{}{
			"hotel_id": 1, "room_type_id": 10, "booking_type": "daily", "check_in": "2026-02-01", "check_out": "2026-02-02",
			"num_rooms": 1, "guest_name": "Late",
		}, http.StatusBadRequest, "validation_error"},
		{"UnknownPayment", http.MethodPost, "/api/v1/payments/42/confirm", nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, tt.method, tt.path, tt.body, nil)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			var resp errorResponse
			decode(t, rec, &resp)
			assert.Equal(t, tt.errTag, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestHTTP_Probes(t *testing.T) {
	h, db := newTestServer(t, testAPIConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "probes need no api key")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, db.Close())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
