package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"staybook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Settlement"

// Source is what the exporter reads from the store.
type Source interface {
	GetHotel(ctx context.Context, id int64) (*models.Hotel, error)
	CommissionsForHotel(ctx context.Context, hotelID int64, from, to time.Time) ([]*models.Commission, error)
	GetBookingsByDateRange(ctx context.Context, hotelID int64, start, end time.Time) ([]*models.Booking, error)
}

// Totals sums the ledger rows of one export.
type Totals struct {
	Bookings   int
	Gross      int64
	Commission int64
	Payout     int64
	Refunded   int64
}

// SettlementExporter renders the commission ledger of a hotel into XLSX.
type SettlementExporter struct {
	source Source
	path   string
	logger *zerolog.Logger
}

func NewSettlementExporter(source Source, exportPath string, logger *zerolog.Logger) *SettlementExporter {
	return &SettlementExporter{source: source, path: exportPath, logger: logger}
}

// ExportToFile writes the workbook under the export directory and returns its path.
func (e *SettlementExporter) ExportToFile(ctx context.Context, hotelID int64, from, to time.Time) (string, Totals, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", Totals{}, fmt.Errorf("error creating export directory: %w", err)
	}

	f, totals, err := e.build(ctx, hotelID, from, to)
	if err != nil {
		return "", Totals{}, err
	}
	defer f.Close()

	fileName := fmt.Sprintf("settlement_%d_%s_to_%s.xlsx", hotelID, from.Format(models.DateLayout), to.Format(models.DateLayout))
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", Totals{}, fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", totals.Bookings).Msg("Settlement export created")
	return filePath, totals, nil
}

// Write streams the workbook to w.
func (e *SettlementExporter) Write(ctx context.Context, w io.Writer, hotelID int64, from, to time.Time) (Totals, error) {
	f, totals, err := e.build(ctx, hotelID, from, to)
	if err != nil {
		return Totals{}, err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return Totals{}, fmt.Errorf("error writing workbook: %w", err)
	}
	return totals, nil
}

var headers = []string{
	"Booking", "Guest", "Type", "Check-in", "Check-out", "Gross", "Rate, %",
	"Commission", "Hotel payout", "Refunded", "Status",
}

func (e *SettlementExporter) build(ctx context.Context, hotelID int64, from, to time.Time) (*excelize.File, Totals, error) {
	hotel, err := e.source.GetHotel(ctx, hotelID)
	if err != nil {
		return nil, Totals{}, err
	}
	rows, err := e.source.CommissionsForHotel(ctx, hotelID, from, to)
	if err != nil {
		return nil, Totals{}, err
	}
	bookings, err := e.source.GetBookingsByDateRange(ctx, hotelID, from, to)
	if err != nil {
		return nil, Totals{}, err
	}
	byID := make(map[int64]*models.Booking, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, Totals{}, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s: %s - %s",
		hotel.Name, from.Format("02.01.2006"), to.Format("02.01.2006")))
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	moneyFmt := "#,##0.00"
	moneyStyle, _ := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})

	var totals Totals
	row := 3
	for _, c := range rows {
		b := byID[c.BookingID]
		values := []interface{}{c.BookingID, "", "", "", "", major(c.GrossAmount), c.Rate,
			major(c.CommissionAmount), major(c.HotelPayout), major(c.RefundedAmount), c.Status}
		if b != nil {
			values[1] = b.GuestName
			values[2] = b.BookingType
			values[3] = b.CheckIn.Format(models.DateLayout)
			values[4] = b.CheckOut.Format(models.DateLayout)
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
		_ = f.SetCellStyle(sheetName, fmt.Sprintf("F%d", row), fmt.Sprintf("J%d", row), moneyStyle)

		totals.Bookings++
		totals.Gross += c.GrossAmount
		totals.Commission += c.CommissionAmount
		totals.Payout += c.HotelPayout
		totals.Refunded += c.RefundedAmount
		row++
	}

	// итоговая строка
	totalStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, CustomNumFmt: &moneyFmt})
	_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "Total")
	_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), major(totals.Gross))
	_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), major(totals.Commission))
	_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), major(totals.Payout))
	_ = f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), major(totals.Refunded))
	_ = f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("J%d", row), totalStyle)

	_ = f.SetColWidth(sheetName, "A", "A", 10)
	_ = f.SetColWidth(sheetName, "B", "B", 25)
	_ = f.SetColWidth(sheetName, "C", "K", 14)

	return f, totals, nil
}

// major converts minor currency units for display.
func major(amount int64) float64 {
	return float64(amount) / 100
}
