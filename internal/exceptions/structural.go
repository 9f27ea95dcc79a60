package exceptions

import "fmt"

// RequiredHeadersError reports required columns absent from a sheet.
type RequiredHeadersError struct {
	Sheet   string
	Missing []string
}

func (e *RequiredHeadersError) Error() string {
	return fmt.Sprintf("sheet %q is missing required headers: %s", e.Sheet, quoteAll(e.Missing))
}
func (*RequiredHeadersError) Class() string      { return "RequiredHeadersError" }
func (*RequiredHeadersError) Category() Category { return CategoryStructural }

// DuplicateHeadersError reports a header repeated in one sheet.
type DuplicateHeadersError struct {
	Sheet      string
	Duplicates []string
}

func (e *DuplicateHeadersError) Error() string {
	return fmt.Sprintf("sheet %q has duplicate headers: %s", e.Sheet, quoteAll(e.Duplicates))
}
func (*DuplicateHeadersError) Class() string      { return "DuplicateHeadersError" }
func (*DuplicateHeadersError) Category() Category { return CategoryStructural }

// UnknownHeadersError reports headers that no column descriptor declares.
type UnknownHeadersError struct {
	Sheet   string
	Unknown []string
}

func (e *UnknownHeadersError) Error() string {
	return fmt.Sprintf("sheet %q has unrecognized headers: %s", e.Sheet, quoteAll(e.Unknown))
}
func (*UnknownHeadersError) Class() string      { return "UnknownHeadersError" }
func (*UnknownHeadersError) Category() Category { return CategoryStructural }

// SheetNotFoundError reports a sheet required by the requested operation.
type SheetNotFoundError struct {
	File  string
	Sheet string
}

func (e *SheetNotFoundError) Error() string {
	return fmt.Sprintf("sheet %q not found in %q", e.Sheet, e.File)
}
func (*SheetNotFoundError) Class() string      { return "SheetNotFoundError" }
func (*SheetNotFoundError) Category() Category { return CategoryStructural }
