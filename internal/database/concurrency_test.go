package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"staybook/internal/domain"
	"staybook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReservation(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger, WithBusyTimeout(10000))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	seedCatalog(t, db)

	rt, err := db.GetRoomType(ctx, testSuiteID)
	require.NoError(t, err)
	capacity := rt.TotalRooms
	nights := models.StayNights(day("2026-03-05"), day("2026-03-07"))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			results <- db.InTx(ctx, func(tx *Tx) error {
				if _, err := tx.ReserveNights(ctx, rt, nights, 1); err != nil {
					return err
				}
				return tx.InsertBooking(ctx, newTestBooking(fmt.Sprintf("concurrent-%d", id), nights[0], len(nights)))
			})
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	soldOut := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, domain.ErrConflict):
			soldOut++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, capacity, successCount)
	assert.Equal(t, numGoroutines-capacity, soldOut)

	inv, err := db.DailyInventory(ctx, rt.ID, nights[0], nights[len(nights)-1].AddDate(0, 0, 1))
	require.NoError(t, err)
	for date, row := range inv {
		assert.Equal(t, 0, row.AvailableCount, date)
	}

	for _, night := range nights {
		reserved, err := db.ReservedRooms(ctx, rt.ID, night)
		require.NoError(t, err)
		assert.Equal(t, capacity, reserved)
	}
}
