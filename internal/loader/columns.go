package loader

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tracebase/internal/exceptions"
	"tracebase/internal/workbook"
	"tracebase/pkg/domain"
)

// ColumnType is the semantic type of a sheet column. It drives parsing and
// validation of every cell in the column.
type ColumnType int

// Column types.
const (
	TypeString ColumnType = iota
	TypeInteger
	TypeNumber
	TypeDate
	TypeBoolean
	TypeEnum
	TypeList
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "an integer"
	case TypeNumber:
		return "a number"
	case TypeDate:
		return "a date (YYYY-MM-DD)"
	case TypeBoolean:
		return "true or false"
	case TypeEnum:
		return "one of the allowed values"
	case TypeList:
		return "a delimited list"
	default:
		return "text"
	}
}

// Column declares one sheet column.
type Column struct {
	Header         string
	Type           ColumnType
	HeaderRequired bool
	ValueRequired  bool
	// Delimiter splits TypeList cells.
	Delimiter string
	// Allowed lists the canonical TypeEnum values, matched case-insensitively.
	Allowed []string
}

// Schema declares the columns of one sheet and the column combinations that
// must be unique within it.
type Schema struct {
	Sheet      string
	Columns    []Column
	UniqueKeys [][]string
	// Entity and KeyColumn name the record a row produces, so rows that fail
	// before reaching the store still mark their key as failed.
	Entity    domain.EntityType
	KeyColumn string
}

// Headers returns the declared headers in order.
func (s Schema) Headers() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Header
	}
	return out
}

// Fields holds the typed values of one row. Absent or blank cells read as
// zero values.
type Fields struct {
	Row    int
	values map[string]any
}

func (f Fields) Str(header string) string {
	s, _ := f.values[header].(string)
	return s
}

func (f Fields) Int(header string) *int {
	v, ok := f.values[header].(int)
	if !ok {
		return nil
	}
	return &v
}

func (f Fields) Num(header string) *float64 {
	v, ok := f.values[header].(float64)
	if !ok {
		return nil
	}
	return &v
}

func (f Fields) Date(header string) *time.Time {
	v, ok := f.values[header].(time.Time)
	if !ok {
		return nil
	}
	return &v
}

func (f Fields) Bool(header string) bool {
	v, _ := f.values[header].(bool)
	return v
}

func (f Fields) List(header string) []string {
	v, _ := f.values[header].([]string)
	return v
}

// checkHeaders reports the structural problems of sheet. Any returned error
// aborts the sheet.
func checkHeaders(sheet *workbook.Sheet, schema Schema) []error {
	var errs []error
	declared := make(map[string]struct{}, len(schema.Columns))
	for _, c := range schema.Columns {
		declared[c.Header] = struct{}{}
	}
	seen := make(map[string]int)
	var dupes, unknown []string
	for _, h := range sheet.Headers {
		if h == "" {
			continue
		}
		seen[h]++
		if seen[h] == 2 {
			dupes = append(dupes, h)
		}
		if _, ok := declared[h]; !ok && seen[h] == 1 {
			unknown = append(unknown, h)
		}
	}
	if len(dupes) > 0 {
		errs = append(errs, &exceptions.DuplicateHeadersError{Sheet: schema.Sheet, Duplicates: dupes})
	}
	var missing []string
	for _, c := range schema.Columns {
		if c.HeaderRequired && seen[c.Header] == 0 {
			missing = append(missing, c.Header)
		}
	}
	if len(missing) > 0 {
		errs = append(errs, &exceptions.RequiredHeadersError{Sheet: schema.Sheet, Missing: missing})
	}
	if len(unknown) > 0 {
		errs = append(errs, &exceptions.UnknownHeadersError{Sheet: schema.Sheet, Unknown: unknown})
	}
	return errs
}

// parseRow converts every declared cell of row. Each problem is reported to
// agg at its cell; ok is false when any cell failed.
func parseRow(schema Schema, row workbook.Row, loc exceptions.Location, agg *exceptions.Aggregator) (Fields, bool) {
	f := Fields{Row: row.Number, values: make(map[string]any, len(schema.Columns))}
	ok := true
	loc = loc.WithRow(row.Number)
	for _, c := range schema.Columns {
		raw, present := row.Values[c.Header]
		raw = strings.TrimSpace(raw)
		if raw == "" {
			if c.ValueRequired && (present || c.HeaderRequired) {
				agg.Error(&exceptions.RequiredValueError{Sheet: schema.Sheet, Column: c.Header, Row: row.Number}, loc.WithColumn(c.Header))
				ok = false
			}
			continue
		}
		v, err := convert(c, raw)
		if err != nil {
			agg.Error(err, loc.WithColumn(c.Header))
			ok = false
			continue
		}
		f.values[c.Header] = v
	}
	return f, ok
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"1/2/2006",
	"01/02/2006",
	"2006/01/02",
}

func convert(c Column, raw string) (any, error) {
	invalid := &exceptions.InvalidValueError{Column: c.Header, Value: raw, Expected: c.Type.String()}
	switch c.Type {
	case TypeInteger:
		if n, err := strconv.Atoi(raw); err == nil {
			return n, nil
		}
		// Excel stores integers as floats.
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int(f)) {
			return int(f), nil
		}
		return nil, invalid
	case TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, invalid
		}
		return f, nil
	case TypeDate:
		return parseDate(raw, invalid)
	case TypeBoolean:
		switch strings.ToLower(raw) {
		case "true", "t", "yes", "y", "1", "x", "skip":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
		return nil, invalid
	case TypeEnum:
		for _, a := range c.Allowed {
			if strings.EqualFold(a, raw) {
				return a, nil
			}
		}
		invalid.Expected = "one of " + strings.Join(c.Allowed, ", ")
		return nil, invalid
	case TypeList:
		sep := c.Delimiter
		if sep == "" {
			sep = ";"
		}
		var out []string
		for _, part := range strings.Split(raw, sep) {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return raw, nil
	}
}

func parseDate(raw string, invalid error) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	// Raw xlsx reads deliver dates as serial day numbers.
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, invalid
}

// duplicateRows finds rows repeating a unique key. The returned set holds the
// row numbers to skip: every occurrence of a repeated key.
func duplicateRows(sheet *workbook.Sheet, schema Schema, loc exceptions.Location, agg *exceptions.Aggregator) map[int]bool {
	skip := make(map[int]bool)
	for _, key := range schema.UniqueKeys {
		present := true
		for _, h := range key {
			if !sheet.HasHeader(h) {
				present = false
				break
			}
		}
		if !present {
			continue
		}
		rows := make(map[string][]int)
		var order []string
		for _, r := range sheet.Rows {
			if r.Empty() {
				continue
			}
			parts := make([]string, len(key))
			blank := true
			for i, h := range key {
				parts[i] = r.Get(h)
				if parts[i] != "" {
					blank = false
				}
			}
			if blank {
				continue
			}
			v := strings.Join(parts, ", ")
			if _, ok := rows[v]; !ok {
				order = append(order, v)
			}
			rows[v] = append(rows[v], r.Number)
		}
		for _, v := range order {
			if len(rows[v]) < 2 {
				continue
			}
			agg.Error(&exceptions.DuplicateValuesError{Sheet: schema.Sheet, Columns: key, Value: v, Rows: rows[v]}, loc.WithRow(rows[v][0]))
			for _, n := range rows[v] {
				skip[n] = true
			}
		}
	}
	return skip
}
