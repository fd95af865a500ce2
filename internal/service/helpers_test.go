package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/events"
	"staybook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testHotelID  = int64(1)
	testDeluxeID = int64(10)
	testSuiteID  = int64(11)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.GatewayOrder, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayOrder), args.Error(1)
}

func (m *mockGateway) VerifyPayment(ctx context.Context, req domain.VerifyRequest) (*domain.Verification, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Verification), args.Error(1)
}

func (m *mockGateway) ProcessRefund(ctx context.Context, req domain.RefundRequest) (*domain.GatewayRefund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayRefund), args.Error(1)
}

// fakeCache is a map-backed AvailabilityCache that counts invalidations.
type fakeCache struct {
	mu            sync.Mutex
	entries       map[string][]byte
	invalidations int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, _ int64, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, _ int64, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, _ int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
	c.invalidations++
	return nil
}

type testEnv struct {
	db           *database.DB
	clock        *fakeClock
	cache        *fakeCache
	bus          *events.EventBus
	published    []string
	availability *AvailabilityService
	reservation  *ReservationService
	lifecycle    *LifecycleService
	cfg          config.BookingConfig
	logger       *zerolog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "staybook.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	seedCatalog(t, db)

	env := &testEnv{
		db:     db,
		clock:  &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		cache:  newFakeCache(),
		bus:    events.NewEventBus(),
		logger: &logger,
		cfg: config.BookingConfig{
			TaxRate:              12,
			PendingTimeout:       15 * time.Minute,
			MaxBookingDays:       365,
			AvailabilityCacheTTL: time.Minute,
			HourlyOpenHour:       6,
			HourlyCloseHour:      23,
		},
	}
	var mu sync.Mutex
	env.bus.Subscribe(events.AllEvents, func(e *events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		env.published = append(env.published, e.Type)
		return nil
	})

	env.availability = NewAvailabilityService(db, env.cache, env.cfg, env.clock, &logger)
	env.reservation = NewReservationService(db, env.cache, env.bus, env.cfg, env.clock, &logger)
	env.lifecycle = NewLifecycleService(db, env.cache, env.bus, env.clock, &logger)
	return env
}

func (e *testEnv) settlement(gateway domain.PaymentGateway) *SettlementService {
	return NewSettlementService(e.db, gateway, e.lifecycle, e.bus, "INR", e.clock, e.logger)
}

func seedCatalog(t *testing.T, db *database.DB) {
	t.Helper()
	hourly := int64(60000)
	hotel := &models.Hotel{
		ID:             testHotelID,
		Name:           "Harbor View",
		CommissionRate: 15,
		HourlyMinHours: 3,
		HourlyMaxHours: 8,
		IsActive:       true,
		RoomTypes: []models.RoomType{
			{ID: testDeluxeID, Name: "Deluxe", BasePriceDaily: 500000, BasePriceHourly: &hourly, MaxGuests: 2,
				MaxExtraGuests: 1, ExtraGuestCharge: 100000, TotalRooms: 10, IsActive: true},
			{ID: testSuiteID, Name: "Suite", BasePriceDaily: 900000, MaxGuests: 3, TotalRooms: 2, IsActive: true},
		},
	}
	require.NoError(t, db.UpsertHotel(context.Background(), hotel))
}

func day(s string) time.Time {
	d, err := models.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dailyRequest(roomTypeID int64, checkIn string, nights, rooms, guests int) models.ReservationRequest {
	in := day(checkIn)
	return models.ReservationRequest{
		HotelID:     testHotelID,
		RoomTypeID:  roomTypeID,
		BookingType: models.BookingTypeDaily,
		CheckIn:     in,
		CheckOut:    in.AddDate(0, 0, nights),
		NumRooms:    rooms,
		NumGuests:   guests,
		GuestName:   "Ann Guest",
		GuestEmail:  "ann@example.com",
	}
}

// availableOn reads the stored counter for a night, or totalRooms when no row exists.
func availableOn(t *testing.T, db *database.DB, roomTypeID int64, date string, totalRooms int) int {
	t.Helper()
	rows, err := db.DailyInventory(context.Background(), roomTypeID, day(date), day(date).AddDate(0, 0, 1))
	require.NoError(t, err)
	if inv, ok := rows[date]; ok {
		return inv.AvailableCount
	}
	return totalRooms
}

// sellOut takes every room still free on a night straight from the store.
func sellOut(t *testing.T, db *database.DB, roomTypeID int64, date string) {
	t.Helper()
	ctx := context.Background()
	rt, err := db.GetRoomType(ctx, roomTypeID)
	require.NoError(t, err)
	left := availableOn(t, db, roomTypeID, date, rt.TotalRooms)
	require.NoError(t, db.InTx(ctx, func(tx *database.Tx) error {
		_, err := tx.ReserveNights(ctx, rt, []time.Time{day(date)}, left)
		return err
	}))
}
