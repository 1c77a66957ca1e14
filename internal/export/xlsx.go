// Package export renders catalog products as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/spherical/flyer-extractor/internal/domain"
)

// SheetName is the worksheet holding the products.
const SheetName = "Prodotti"

// ContentType is the MIME type of the workbook produced by WriteXLSX.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{
	"ID", "Job", "Supermercato", "Pagina", "Nome", "Marca", "Categoria",
	"Prezzo", "Prezzo (€)", "Descrizione", "Volantino", "Validità", "URL volantino", "Card",
}

// WriteXLSX writes records as a single-sheet workbook to w.
func WriteXLSX(w io.Writer, records []domain.ProductRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet so the workbook has exactly one.
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for i, r := range records {
		row := i + 2
		values := []any{
			r.ID, r.JobID, r.Retailer, r.Page, r.Name, r.Brand, r.Category,
			r.PriceText, r.PriceValue, r.Description, r.FlyerName, r.FlyerValidity, r.FlyerURL, r.CardImage,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(SheetName, "C", "C", 22)
	_ = f.SetColWidth(SheetName, "E", "G", 28)
	_ = f.SetColWidth(SheetName, "J", "J", 48)
	_ = f.SetColWidth(SheetName, "K", "M", 32)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
