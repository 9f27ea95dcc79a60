package workbook

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// WriteXLSX renders the workbook as an Excel file with bold, shaded headers.
func WriteXLSX(w io.Writer, wb *Workbook) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	keepDefault := false
	for i, sheet := range wb.Sheets() {
		if sheet.Name == defaultSheet {
			keepDefault = true
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("new sheet %s: %w", sheet.Name, err)
		}
		if i == 0 {
			idx, err := f.GetSheetIndex(sheet.Name)
			if err == nil {
				f.SetActiveSheet(idx)
			}
		}
		if err := writeSheet(f, sheet, headerStyle); err != nil {
			return err
		}
	}
	if !keepDefault && len(wb.Sheets()) > 0 {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("delete default sheet: %w", err)
		}
	}
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet *Sheet, headerStyle int) error {
	for col, header := range sheet.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet.Name, cell, header); err != nil {
			return fmt.Errorf("set header %s!%s: %w", sheet.Name, cell, err)
		}
	}
	if len(sheet.Headers) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(sheet.Headers), 1)
		if err := f.SetCellStyle(sheet.Name, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("style headers of %s: %w", sheet.Name, err)
		}
		lastCol, _ := excelize.ColumnNumberToName(len(sheet.Headers))
		if err := f.SetColWidth(sheet.Name, "A", lastCol, 24); err != nil {
			return fmt.Errorf("column width of %s: %w", sheet.Name, err)
		}
	}
	for i, row := range sheet.Rows {
		for col, header := range sheet.Headers {
			value, ok := row.Values[header]
			if !ok || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet.Name, cell, value); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet.Name, cell, err)
			}
		}
	}
	return nil
}
