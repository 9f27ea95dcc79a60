package exceptions

import (
	"fmt"

	"tracebase/pkg/domain"
)

// RequiredValueError reports an empty cell in a column that requires a value.
type RequiredValueError struct {
	Sheet  string
	Column string
	Row    int
}

func (e *RequiredValueError) Error() string {
	return fmt.Sprintf("value required for column %q in sheet %q, row %d", e.Column, e.Sheet, e.Row)
}
func (*RequiredValueError) Class() string      { return "RequiredValueError" }
func (*RequiredValueError) Category() Category { return CategoryReference }

// RecordDoesNotExistError reports a reference to an unknown natural key.
type RecordDoesNotExistError struct {
	Entity domain.EntityType
	Key    string
}

func (e *RecordDoesNotExistError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Entity, e.Key)
}
func (*RecordDoesNotExistError) Class() string      { return "RecordDoesNotExistError" }
func (*RecordDoesNotExistError) Category() Category { return CategoryReference }

// MultipleRecordsReturnedError reports a lookup that matched more than one
// record where exactly one was expected.
type MultipleRecordsReturnedError struct {
	Entity  domain.EntityType
	Query   string
	Matches []string
}

func (e *MultipleRecordsReturnedError) Error() string {
	return fmt.Sprintf("%s lookup %q matched %d records: %s", e.Entity, e.Query, len(e.Matches), quoteAll(e.Matches))
}
func (*MultipleRecordsReturnedError) Class() string      { return "MultipleRecordsReturnedError" }
func (*MultipleRecordsReturnedError) Category() Category { return CategoryReference }

// DefaultSequenceNotFoundError reports a default sequence that cannot be
// resolved, usually because the Sequences sheet failed or was not loaded.
type DefaultSequenceNotFoundError struct {
	Sequence string
	Source   string
}

func (e *DefaultSequenceNotFoundError) Error() string {
	return fmt.Sprintf(
		"default sequence %q (from %s) not found; make sure the Sequences sheet loads without errors before peak annotation details",
		e.Sequence, e.Source,
	)
}
func (*DefaultSequenceNotFoundError) Class() string      { return "DefaultSequenceNotFoundError" }
func (*DefaultSequenceNotFoundError) Category() Category { return CategoryReference }

// MissingSampleError reports a sample data header with no matching Sample.
type MissingSampleError struct {
	File   string
	Header string
}

func (e *MissingSampleError) Error() string {
	return fmt.Sprintf("sample data header %q in %q does not match any sample", e.Header, e.File)
}
func (*MissingSampleError) Class() string      { return "MissingSampleError" }
func (*MissingSampleError) Category() Category { return CategoryReference }

// MissingCompoundError reports a compound name with no matching Compound.
type MissingCompoundError struct {
	File     string
	Compound string
}

func (e *MissingCompoundError) Error() string {
	return fmt.Sprintf("compound %q in %q does not match any compound name or synonym", e.Compound, e.File)
}
func (*MissingCompoundError) Class() string      { return "MissingCompoundError" }
func (*MissingCompoundError) Category() Category { return CategoryReference }
