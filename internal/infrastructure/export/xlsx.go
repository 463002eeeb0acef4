// Package export writes the bill list as a spreadsheet.
package export

import (
	"fmt"
	"io"

	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SheetName is the worksheet holding the bills
const SheetName = "Notes de frais"

// ContentType is the MIME type of the produced workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []interface{}{"Type", "Nom", "Date", "Montant", "TVA", "%", "Statut", "Commentaire", "Justificatif"}

// XLSXExporter renders bills into an Excel workbook
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new exporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// Write renders bills, one row each in the given order, followed by a total row
func (e *XLSXExporter) Write(w io.Writer, bills []entity.BillViewModel) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := e.setRow(f, 1, header); err != nil {
		return err
	}

	total := 0.0
	for i, b := range bills {
		row := []interface{}{
			b.Type,
			b.Name,
			b.DisplayDate,
			b.Amount,
			b.VAT,
			b.Pct,
			b.StatusLabel,
			b.Commentary,
			b.FileURL,
		}
		if err := e.setRow(f, i+2, row); err != nil {
			return err
		}
		total += b.Amount
	}

	if err := e.setRow(f, len(bills)+2, []interface{}{"Total", "", "", total}); err != nil {
		return err
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, style)
		_ = f.SetRowStyle(SheetName, len(bills)+2, len(bills)+2, style)
	} else {
		e.logger.Warn("Failed to create header style", zap.Error(err))
	}
	_ = f.SetColWidth(SheetName, "A", "B", 24)
	_ = f.SetColWidth(SheetName, "I", "I", 60)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Bills exported", zap.Int("count", len(bills)), zap.Float64("total", total))
	return nil
}

func (e *XLSXExporter) setRow(f *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("invalid row %d: %w", row, err)
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
