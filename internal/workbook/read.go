package workbook

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Open reads the workbook at path, choosing the reader by extension.
func Open(path string) (*Workbook, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- caller supplied submission path
	if err != nil {
		return nil, fmt.Errorf("read workbook %s: %w", path, err)
	}
	return Decode(filepath.Base(path), data)
}

// Decode parses workbook bytes; name supplies the extension and the
// workbook's reported file name.
func Decode(name string, data []byte) (*Workbook, error) {
	kind, err := KindOf(name)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindCSV:
		return ReadDelimited(bytes.NewReader(data), name, ',')
	case KindTSV:
		return ReadDelimited(bytes.NewReader(data), name, '\t')
	default:
		return ReadXLSX(bytes.NewReader(data), name)
	}
}

// ReadXLSX reads every sheet of an Excel workbook. Cell values are read raw,
// so dates arrive as Excel serial numbers unless stored as text.
func ReadXLSX(r io.Reader, name string) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	wb := &Workbook{Name: name}
	for _, sheetName := range f.GetSheetList() {
		grid, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s of %s: %w", sheetName, name, err)
		}
		wb.AddSheet(fromGrid(sheetName, grid, nil))
	}
	return wb, nil
}

// ReadDelimited reads a single sheet csv or tsv file. The sheet is named after
// the file stem.
func ReadDelimited(r io.Reader, name string, sep rune) (*Workbook, error) {
	reader := csv.NewReader(r)
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	var (
		grid  [][]string
		lines []int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		line, _ := reader.FieldPos(0)
		grid = append(grid, record)
		lines = append(lines, line)
	}
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	wb := &Workbook{Name: name, Delimited: true}
	wb.AddSheet(fromGrid(stem, grid, lines))
	return wb, nil
}
