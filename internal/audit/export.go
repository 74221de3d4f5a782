package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"nextslot/internal/notify"
)

// DeliverySource provides the persisted delivery log.
type DeliverySource interface {
	ListDeliveries(ctx context.Context, since time.Time) ([]notify.DeliveryRecord, error)
}

var deliveryColumns = []string{
	"Sent At", "Appointment", "Recipient Kind", "Recipient",
	"Event", "Channel", "Status", "Detail",
}

// ExportDeliveries writes the notification delivery log since the given
// moment as an XLSX workbook.
func ExportDeliveries(ctx context.Context, src DeliverySource, since time.Time, w io.Writer) error {
	records, err := src.ListDeliveries(ctx, since)
	if err != nil {
		return fmt.Errorf("load delivery log: %w", err)
	}

	file := excelize.NewFile()
	defer file.Close()

	const sheet = "Deliveries"
	file.SetSheetName("Sheet1", sheet)

	for i, col := range deliveryColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}

	// Bold header
	style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(deliveryColumns), 1)
		_ = file.SetCellStyle(sheet, startCell, endCell, style)
	}

	for rowIdx, rec := range records {
		row := []any{
			rec.SentAt.Format(time.RFC3339),
			rec.AppointmentID,
			rec.RecipientKind,
			rec.RecipientID,
			rec.Event,
			rec.Channel,
			rec.Status,
			rec.Detail,
		}
		for colIdx, val := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := file.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}

	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
