package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"staybook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHotelID  = int64(1)
	testDeluxeID = int64(10)
	testSuiteID  = int64(11)
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	return db
}

func seedCatalog(t *testing.T, db *DB) *models.Hotel {
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
	return hotel
}

func day(s string) time.Time {
	d, err := models.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger, WithBusyTimeout(1000))
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	assert.NoError(t, db.PingContext(context.Background()))
}

func TestCatalog(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	seedCatalog(t, db)

	hotel, err := db.GetHotel(ctx, testHotelID)
	require.NoError(t, err)
	assert.Equal(t, 15.0, hotel.CommissionRate)
	assert.Equal(t, 3, hotel.HourlyMinHours)

	roomTypes, err := db.ListRoomTypes(ctx, testHotelID, true)
	require.NoError(t, err)
	require.Len(t, roomTypes, 2)
	assert.True(t, roomTypes[0].HourlyEnabled())
	assert.False(t, roomTypes[1].HourlyEnabled())

	t.Run("UpsertUpdatesInPlace", func(t *testing.T) {
		hotel.CommissionRate = 20
		hotel.RoomTypes = []models.RoomType{{ID: testSuiteID, Name: "Suite", BasePriceDaily: 950000, MaxGuests: 3, TotalRooms: 2}}
		require.NoError(t, db.UpsertHotel(ctx, hotel))

		h, err := db.GetHotel(ctx, testHotelID)
		require.NoError(t, err)
		assert.Equal(t, 20.0, h.CommissionRate)

		active, err := db.ListRoomTypes(ctx, testHotelID, true)
		require.NoError(t, err)
		assert.Len(t, active, 1)

		rt, err := db.GetRoomType(ctx, testSuiteID)
		require.NoError(t, err)
		assert.Equal(t, int64(950000), rt.BasePriceDaily)
		assert.False(t, rt.IsActive)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := db.GetHotel(ctx, 99)
		assert.Error(t, err)
		_, err = db.GetRoomType(ctx, 99)
		assert.Error(t, err)
	})

	hotels, err := db.ListHotels(ctx)
	require.NoError(t, err)
	assert.Len(t, hotels, 1)
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	_, err = db.GetBooking(ctx, 1)
	assert.Error(t, err)
	_, err = db.DailyInventory(ctx, 1, time.Now(), time.Now())
	assert.Error(t, err)
	_, err = db.ExpiredPendingBookings(ctx, time.Now(), 10)
	assert.Error(t, err)
	err = db.InTx(ctx, func(tx *Tx) error { return nil })
	assert.Error(t, err)
}
