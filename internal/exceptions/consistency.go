package exceptions

import (
	"fmt"
	"strings"

	"tracebase/pkg/domain"
)

// MultiplePeakGroupRepresentationError reports a compound measured for the
// same samples by more than one peak annotation file.
type MultiplePeakGroupRepresentationError struct {
	Compounds []string
	Files     []string
	Samples   []string
}

func (e *MultiplePeakGroupRepresentationError) Error() string {
	return fmt.Sprintf(
		"peak group %q for %d sample(s) is represented in multiple peak annotation files: %s",
		strings.Join(e.Compounds, "/"), len(e.Samples), quoteAll(e.Files),
	)
}
func (*MultiplePeakGroupRepresentationError) Class() string {
	return "MultiplePeakGroupRepresentationError"
}
func (*MultiplePeakGroupRepresentationError) Category() Category { return CategoryConsistency }

// UnresolvedPeakGroupConflictError reports a conflict row with no selection.
type UnresolvedPeakGroupConflictError struct {
	Compounds []string
	Files     []string
}

func (e *UnresolvedPeakGroupConflictError) Error() string {
	return fmt.Sprintf("no peak annotation file selected for peak group %q (candidates: %s)", strings.Join(e.Compounds, "/"), quoteAll(e.Files))
}
func (*UnresolvedPeakGroupConflictError) Class() string      { return "UnresolvedPeakGroupConflictError" }
func (*UnresolvedPeakGroupConflictError) Category() Category { return CategoryConsistency }

// PeakGroupConflictPartialOverlapError reports two conflict rows for the same
// compound set whose sample sets overlap without being identical.
type PeakGroupConflictPartialOverlapError struct {
	Compounds []string
	Rows      []int
	Shared    []string
}

func (e *PeakGroupConflictPartialOverlapError) Error() string {
	return fmt.Sprintf(
		"peak group conflict rows %s for %q share samples %s without having identical sample sets",
		intsString(e.Rows), strings.Join(e.Compounds, "/"), quoteAll(e.Shared),
	)
}
func (*PeakGroupConflictPartialOverlapError) Class() string {
	return "PeakGroupConflictPartialOverlapError"
}
func (*PeakGroupConflictPartialOverlapError) Category() Category { return CategoryConsistency }

// ReplacingPeakGroupRepresentationWarning reports that a selected file will
// replace a previously loaded peak group from another file.
type ReplacingPeakGroupRepresentationWarning struct {
	Compounds []string
	Sample    string
	Previous  string
	Selected  string
}

func (e *ReplacingPeakGroupRepresentationWarning) Error() string {
	return fmt.Sprintf(
		"peak group %q for sample %q previously loaded from %q will be replaced by %q",
		strings.Join(e.Compounds, "/"), e.Sample, e.Previous, e.Selected,
	)
}
func (*ReplacingPeakGroupRepresentationWarning) Class() string {
	return "ReplacingPeakGroupRepresentationWarning"
}
func (*ReplacingPeakGroupRepresentationWarning) Category() Category { return CategoryConsistency }

// MzxmlColocatedWithMultipleAnnotError reports an mzXML file whose nearest
// ancestor directory holds annotation files from different sequences.
type MzxmlColocatedWithMultipleAnnotError struct {
	MzXML      string
	Directory  string
	Sequences  []string
	ResolvedTo string
}

func (e *MzxmlColocatedWithMultipleAnnotError) Error() string {
	msg := fmt.Sprintf(
		"mzXML %q is colocated in %q with peak annotation files from multiple sequences: %s",
		e.MzXML, e.Directory, quoteAll(e.Sequences),
	)
	if e.ResolvedTo != "" {
		msg += fmt.Sprintf("; using default sequence %q", e.ResolvedTo)
	}
	return msg
}
func (*MzxmlColocatedWithMultipleAnnotError) Class() string {
	return "MzxmlColocatedWithMultipleAnnotError"
}
func (*MzxmlColocatedWithMultipleAnnotError) Category() Category { return CategoryConsistency }

// MzxmlSequenceUnknownError reports an mzXML file no sequence could be
// associated with.
type MzxmlSequenceUnknownError struct {
	MzXML string
}

func (e *MzxmlSequenceUnknownError) Error() string {
	return fmt.Sprintf("unable to determine the sequence of mzXML %q: no explicit, default or colocated sequence", e.MzXML)
}
func (*MzxmlSequenceUnknownError) Class() string      { return "MzxmlSequenceUnknownError" }
func (*MzxmlSequenceUnknownError) Category() Category { return CategoryConsistency }

// AssumedSampleHeaderMatchWarning reports a sample data header matched to a
// sample only after stripping scan labels.
type AssumedSampleHeaderMatchWarning struct {
	File   string
	Header string
	Sample string
}

func (e *AssumedSampleHeaderMatchWarning) Error() string {
	return fmt.Sprintf("sample data header %q in %q assumed to be sample %q after removing scan labels", e.Header, e.File, e.Sample)
}
func (*AssumedSampleHeaderMatchWarning) Class() string      { return "AssumedSampleHeaderMatchWarning" }
func (*AssumedSampleHeaderMatchWarning) Category() Category { return CategoryConsistency }

// AmbiguousFormatError reports a peak annotation file matching several formats.
type AmbiguousFormatError struct {
	File       string
	Candidates []string
}

func (e *AmbiguousFormatError) Error() string {
	return fmt.Sprintf("format of %q is ambiguous between %s; supply the File Format explicitly", e.File, quoteAll(e.Candidates))
}
func (*AmbiguousFormatError) Class() string      { return "AmbiguousFormatError" }
func (*AmbiguousFormatError) Category() Category { return CategoryConsistency }

// UnknownFormatError reports a peak annotation file matching no format.
type UnknownFormatError struct {
	File   string
	Reason string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unrecognized peak annotation format for %q: %s", e.File, e.Reason)
}
func (*UnknownFormatError) Class() string      { return "UnknownFormatError" }
func (*UnknownFormatError) Category() Category { return CategoryConsistency }

// UnknownAnnotationFileError reports a reference to a peak annotation file
// that is neither listed nor supplied.
type UnknownAnnotationFileError struct {
	File string
}

func (e *UnknownAnnotationFileError) Error() string {
	return fmt.Sprintf("peak annotation file %q is not listed in the Peak Annotation Files sheet or was not supplied", e.File)
}
func (*UnknownAnnotationFileError) Class() string      { return "UnknownAnnotationFileError" }
func (*UnknownAnnotationFileError) Category() Category { return CategoryConsistency }

// RuleViolationError reports a domain rule violation raised on commit.
type RuleViolationError struct {
	Violation domain.Violation
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("%s %q violates rule %s: %s", e.Violation.Entity, e.Violation.Key, e.Violation.Rule, e.Violation.Message)
}
func (*RuleViolationError) Class() string      { return "RuleViolation" }
func (*RuleViolationError) Category() Category { return CategoryConsistency }
