package exceptions

import (
	"fmt"
	"strings"

	"tracebase/pkg/domain"
)

// ConflictingValueError reports stored values that differ from a resubmitted
// row on non-delimited columns.
type ConflictingValueError struct {
	Entity    domain.EntityType
	Key       string
	Conflicts []domain.FieldConflict
}

func (e *ConflictingValueError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s: database [%s] file [%s]", c.Field, c.Existing, c.Incoming))
	}
	return fmt.Sprintf("conflicting values for existing %s %q: %s", e.Entity, e.Key, strings.Join(parts, "; "))
}
func (*ConflictingValueError) Class() string      { return "ConflictingValueError" }
func (*ConflictingValueError) Category() Category { return CategoryConflict }

// SynonymExistsAsMismatchedCompoundError reports a synonym that is already
// the name or synonym of a different compound.
type SynonymExistsAsMismatchedCompoundError struct {
	Synonym  string
	Compound string
	Existing string
}

func (e *SynonymExistsAsMismatchedCompoundError) Error() string {
	return fmt.Sprintf("synonym %q of compound %q already belongs to compound %q", e.Synonym, e.Compound, e.Existing)
}
func (*SynonymExistsAsMismatchedCompoundError) Class() string {
	return "SynonymExistsAsMismatchedCompoundError"
}
func (*SynonymExistsAsMismatchedCompoundError) Category() Category { return CategoryConflict }

// DuplicateValuesError reports a unique key repeated within one sheet.
type DuplicateValuesError struct {
	Sheet   string
	Columns []string
	Value   string
	Rows    []int
}

func (e *DuplicateValuesError) Error() string {
	return fmt.Sprintf("duplicate value %q for unique %s in sheet %q on rows %s", e.Value, quoteAll(e.Columns), e.Sheet, intsString(e.Rows))
}
func (*DuplicateValuesError) Class() string      { return "DuplicateValuesError" }
func (*DuplicateValuesError) Category() Category { return CategoryConflict }

// InfusateNameCollisionError reports two infusates that render to the same
// display name but differ in full precision concentrations. They are never
// coalesced automatically.
type InfusateNameCollisionError struct {
	Name      string
	Conflicts []domain.FieldConflict
}

func (e *InfusateNameCollisionError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s: existing %s, submitted %s", c.Field, c.Existing, c.Incoming))
	}
	return fmt.Sprintf("infusate %q collides with an existing infusate of the same display name: %s", e.Name, strings.Join(parts, "; "))
}
func (*InfusateNameCollisionError) Class() string      { return "InfusateNameCollisionError" }
func (*InfusateNameCollisionError) Category() Category { return CategoryConflict }

// TracerInconsistencyError reports rows of one row group that disagree on a
// value that must be constant within the group.
type TracerInconsistencyError struct {
	Sheet  string
	Group  string
	Column string
	Values []string
}

func (e *TracerInconsistencyError) Error() string {
	return fmt.Sprintf("rows of group %s in sheet %q disagree on %q: %s", e.Group, e.Sheet, e.Column, quoteAll(e.Values))
}
func (*TracerInconsistencyError) Class() string      { return "TracerInconsistencyError" }
func (*TracerInconsistencyError) Category() Category { return CategoryConflict }
