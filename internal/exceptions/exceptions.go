// Package exceptions holds the typed loader exception taxonomy and the
// Aggregator that collects them across a validation pass.
package exceptions

import (
	"fmt"
	"strings"
)

// Category groups exception classes by how they affect loading.
type Category string

// Exception categories.
const (
	CategoryStructural  Category = "structural"
	CategoryParsing     Category = "parsing"
	CategoryReference   Category = "reference"
	CategoryConflict    Category = "conflict"
	CategoryConsistency Category = "consistency"
	CategorySummary     Category = "summary"
	CategoryGeneral     Category = "general"
)

// Exception is implemented by every named loader exception.
type Exception interface {
	error
	Class() string
	Category() Category
}

// Location pins an exception to a file, sheet, row and column. Row numbers
// are 1-based spreadsheet rows including the header row; zero means unknown.
type Location struct {
	File   string `json:"file,omitempty"`
	Sheet  string `json:"sheet,omitempty"`
	Row    int    `json:"row,omitempty"`
	Column string `json:"column,omitempty"`
}

func (l Location) String() string {
	var parts []string
	if l.File != "" {
		parts = append(parts, "file "+l.File)
	}
	if l.Sheet != "" {
		parts = append(parts, "sheet "+l.Sheet)
	}
	if l.Row > 0 {
		parts = append(parts, fmt.Sprintf("row %d", l.Row))
	}
	if l.Column != "" {
		parts = append(parts, "column "+l.Column)
	}
	return strings.Join(parts, ", ")
}

// WithRow returns a copy of the location pointing at row.
func (l Location) WithRow(row int) Location {
	l.Row = row
	return l
}

// WithColumn returns a copy of the location pointing at column.
func (l Location) WithColumn(column string) Location {
	l.Column = column
	return l
}

// GeneralError wraps a plain error or formatted message that has no dedicated
// class.
type GeneralError struct {
	Message string
}

func (e *GeneralError) Error() string    { return e.Message }
func (*GeneralError) Class() string      { return "Error" }
func (*GeneralError) Category() Category { return CategoryGeneral }

func quoteAll(values []string) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(out, ", ")
}

func intsString(values []int) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return strings.Join(out, ", ")
}
