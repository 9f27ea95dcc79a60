package exceptions

import (
	"fmt"
	"strings"
)

// AllMissingSamplesError rolls up every MissingSampleError of one file.
type AllMissingSamplesError struct {
	File    string
	Headers []string
}

func (e *AllMissingSamplesError) Error() string {
	return fmt.Sprintf("%d sample data headers in %q do not match any sample: %s", len(e.Headers), e.File, quoteAll(e.Headers))
}
func (*AllMissingSamplesError) Class() string      { return "AllMissingSamplesError" }
func (*AllMissingSamplesError) Category() Category { return CategorySummary }

// AllMissingCompoundsError rolls up every MissingCompoundError of one file.
type AllMissingCompoundsError struct {
	File      string
	Compounds []string
}

func (e *AllMissingCompoundsError) Error() string {
	return fmt.Sprintf("%d compounds in %q do not match any compound: %s", len(e.Compounds), e.File, quoteAll(e.Compounds))
}
func (*AllMissingCompoundsError) Class() string      { return "AllMissingCompoundsError" }
func (*AllMissingCompoundsError) Category() Category { return CategorySummary }

// AllRequiredValuesError rolls up RequiredValueErrors of one sheet column.
type AllRequiredValuesError struct {
	Sheet  string
	Column string
	Rows   []int
}

func (e *AllRequiredValuesError) Error() string {
	return fmt.Sprintf("column %q in sheet %q requires a value on rows %s", e.Column, e.Sheet, intsString(e.Rows))
}
func (*AllRequiredValuesError) Class() string      { return "AllRequiredValuesError" }
func (*AllRequiredValuesError) Category() Category { return CategorySummary }

// AllAssumedSampleHeaderMatches rolls up AssumedSampleHeaderMatchWarnings of
// one file.
type AllAssumedSampleHeaderMatches struct {
	File    string
	Matches []string
}

func (e *AllAssumedSampleHeaderMatches) Error() string {
	return fmt.Sprintf("%d sample data headers in %q matched samples after removing scan labels: %s", len(e.Matches), e.File, strings.Join(e.Matches, ", "))
}
func (*AllAssumedSampleHeaderMatches) Class() string      { return "AllAssumedSampleHeaderMatches" }
func (*AllAssumedSampleHeaderMatches) Category() Category { return CategorySummary }
