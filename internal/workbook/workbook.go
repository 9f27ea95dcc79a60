// Package workbook provides the abstract workbook consumed by the loaders:
// named sheets of ordered rows keyed by header, independent of whether the
// source was .xlsx, .csv or .tsv.
package workbook

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Row is one data row. Number is the 1-based spreadsheet row, counting the
// header row, so it can be reported back to users verbatim.
type Row struct {
	Number int
	Values map[string]string
}

// Get returns the trimmed value of header, or "" when absent.
func (r Row) Get(header string) string {
	return strings.TrimSpace(r.Values[header])
}

// Empty reports whether every cell of the row is blank.
func (r Row) Empty() bool {
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Sheet is an ordered sequence of rows sharing one header line. Headers keeps
// duplicates so structural checks can report them; Values keeps the first
// occurrence.
type Sheet struct {
	Name    string
	Headers []string
	Rows    []Row
}

// NewSheet builds a sheet from a header line and positional cell values.
func NewSheet(name string, headers []string, rows ...[]string) *Sheet {
	s := &Sheet{Name: name, Headers: append([]string(nil), headers...)}
	for i, cells := range rows {
		s.AppendCells(i+2, cells)
	}
	return s
}

// AppendCells adds a row from positional cells aligned with Headers.
func (s *Sheet) AppendCells(number int, cells []string) {
	values := make(map[string]string, len(s.Headers))
	for i, h := range s.Headers {
		if h == "" {
			continue
		}
		if _, seen := values[h]; seen {
			continue
		}
		if i < len(cells) {
			values[h] = cells[i]
		} else {
			values[h] = ""
		}
	}
	s.Rows = append(s.Rows, Row{Number: number, Values: values})
}

// HasHeader reports whether the sheet declares header.
func (s *Sheet) HasHeader(header string) bool {
	for _, h := range s.Headers {
		if h == header {
			return true
		}
	}
	return false
}

// Column returns every value of header in row order.
func (s *Sheet) Column(header string) []string {
	out := make([]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		out = append(out, r.Get(header))
	}
	return out
}

// Workbook is an ordered set of named sheets.
type Workbook struct {
	// Name is the file name the workbook was read from.
	Name string
	// Delimited is set for csv/tsv sources, which carry a single sheet and
	// therefore no sheet name evidence.
	Delimited bool
	sheets    []*Sheet
}

// New constructs a workbook from sheets.
func New(name string, sheets ...*Sheet) *Workbook {
	wb := &Workbook{Name: name}
	for _, s := range sheets {
		wb.AddSheet(s)
	}
	return wb
}

// AddSheet appends or replaces a sheet with the same name.
func (w *Workbook) AddSheet(s *Sheet) {
	for i, existing := range w.sheets {
		if existing.Name == s.Name {
			w.sheets[i] = s
			return
		}
	}
	w.sheets = append(w.sheets, s)
}

// Sheet looks a sheet up by exact name.
func (w *Workbook) Sheet(name string) (*Sheet, bool) {
	for _, s := range w.sheets {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// SheetFold looks a sheet up ignoring case.
func (w *Workbook) SheetFold(name string) (*Sheet, bool) {
	for _, s := range w.sheets {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return nil, false
}

// Sheets returns the sheets in workbook order.
func (w *Workbook) Sheets() []*Sheet {
	out := make([]*Sheet, len(w.sheets))
	copy(out, w.sheets)
	return out
}

// SheetNames returns the sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	out := make([]string, len(w.sheets))
	for i, s := range w.sheets {
		out[i] = s.Name
	}
	return out
}

// Kind classifies a file name by extension.
type Kind string

// Supported source kinds.
const (
	KindXLSX Kind = "xlsx"
	KindCSV  Kind = "csv"
	KindTSV  Kind = "tsv"
)

// KindOf returns the source kind of a file name.
func KindOf(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return KindXLSX, nil
	case ".csv":
		return KindCSV, nil
	case ".tsv", ".txt":
		return KindTSV, nil
	default:
		return "", fmt.Errorf("unsupported workbook extension %q", filepath.Ext(name))
	}
}

func normalizeHeaders(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(strings.TrimPrefix(c, "\uFEFF"))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// fromGrid builds a sheet from raw rows, using the first non-blank row as the
// header line and skipping blank data rows. lines holds the source line of
// each grid row; nil means grid rows are consecutive from line 1.
func fromGrid(name string, grid [][]string, lines []int) *Sheet {
	s := &Sheet{Name: name}
	headerAt := -1
	for i, cells := range grid {
		if blank(cells) {
			continue
		}
		if headerAt < 0 {
			headerAt = i
			s.Headers = normalizeHeaders(cells)
			continue
		}
		number := i + 1
		if lines != nil {
			number = lines[i]
		}
		s.AppendCells(number, cells)
	}
	return s
}
