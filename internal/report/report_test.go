package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"staybook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeSource struct {
	hotelErr error
}

func (f fakeSource) GetHotel(_ context.Context, id int64) (*models.Hotel, error) {
	if f.hotelErr != nil {
		return nil, f.hotelErr
	}
	return &models.Hotel{ID: id, Name: "Harbor View"}, nil
}

func (fakeSource) CommissionsForHotel(context.Context, int64, time.Time, time.Time) ([]*models.Commission, error) {
	return []*models.Commission{
		{BookingID: 1, HotelID: 1, Rate: 15, GrossAmount: 1344000, CommissionAmount: 201600, HotelPayout: 1142400, Status: models.CommissionAccrued},
		{BookingID: 2, HotelID: 1, Rate: 15, GrossAmount: 100000, CommissionAmount: 15000, HotelPayout: 85000, RefundedAmount: 100000, Status: models.CommissionReversed},
	}, nil
}

func (fakeSource) GetBookingsByDateRange(context.Context, int64, time.Time, time.Time) ([]*models.Booking, error) {
	return []*models.Booking{
		{ID: 1, GuestName: "Ann Guest", BookingType: models.BookingTypeDaily,
			CheckIn: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), CheckOut: time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)},
	}, nil
}

func TestSettlementExporter_Write(t *testing.T) {
	logger := zerolog.New(io.Discard)
	exp := NewSettlementExporter(fakeSource{}, t.TempDir(), &logger)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	totals, err := exp.Write(context.Background(), &buf, 1, from, to)
	require.NoError(t, err)
	assert.Equal(t, Totals{Bookings: 2, Gross: 1444000, Commission: 216600, Payout: 1227400, Refunded: 100000}, totals)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	title, _ := f.GetCellValue(sheetName, "A1")
	assert.Equal(t, "Harbor View: 01.03.2026 - 31.03.2026", title)
	guest, _ := f.GetCellValue(sheetName, "B3")
	assert.Equal(t, "Ann Guest", guest)
	status, _ := f.GetCellValue(sheetName, "K4")
	assert.Equal(t, models.CommissionReversed, status)
	total, _ := f.GetCellValue(sheetName, "A5")
	assert.Equal(t, "Total", total)
}

func TestSettlementExporter_ExportToFile(t *testing.T) {
	logger := zerolog.New(io.Discard)
	exp := NewSettlementExporter(fakeSource{}, t.TempDir(), &logger)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	path, _, err := exp.ExportToFile(context.Background(), 1, from, from.AddDate(0, 1, -1))
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Contains(t, path, "settlement_1_2026-03-01_to_2026-03-31.xlsx")

	exp = NewSettlementExporter(fakeSource{hotelErr: errors.New("hotel 1 not found")}, t.TempDir(), &logger)
	_, _, err = exp.ExportToFile(context.Background(), 1, from, from)
	assert.Error(t, err)
}
