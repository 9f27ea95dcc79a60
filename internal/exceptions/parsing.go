package exceptions

import "fmt"

// IsotopeParsingError reports an isotope string no grammar production matched.
type IsotopeParsingError struct {
	Input  string
	Reason string
}

func (e *IsotopeParsingError) Error() string {
	return fmt.Sprintf("unable to parse isotope string %q: %s", e.Input, e.Reason)
}
func (*IsotopeParsingError) Class() string      { return "IsotopeParsingError" }
func (*IsotopeParsingError) Category() Category { return CategoryParsing }

// IsotopeStringDupeError reports an element/mass number pair that occurs more
// than once in one isotope string, making count assignment ambiguous.
type IsotopeStringDupeError struct {
	Input      string
	Element    string
	MassNumber int
}

func (e *IsotopeStringDupeError) Error() string {
	return fmt.Sprintf("isotope string %q contains %d%s more than once; counts cannot be assigned unambiguously", e.Input, e.MassNumber, e.Element)
}
func (*IsotopeStringDupeError) Class() string      { return "IsotopeStringDupe" }
func (*IsotopeStringDupeError) Category() Category { return CategoryParsing }

// ObservedIsotopeUnbalancedError reports an isotope string whose element,
// mass number and count tokens do not pair up.
type ObservedIsotopeUnbalancedError struct {
	Input       string
	Elements    int
	MassNumbers int
	Counts      int
	Missing     string
}

func (e *ObservedIsotopeUnbalancedError) Error() string {
	return fmt.Sprintf(
		"isotope string %q is unbalanced (%d elements, %d mass numbers, %d counts): missing %s",
		e.Input, e.Elements, e.MassNumbers, e.Counts, e.Missing,
	)
}
func (*ObservedIsotopeUnbalancedError) Class() string      { return "ObservedIsotopeUnbalancedError" }
func (*ObservedIsotopeUnbalancedError) Category() Category { return CategoryParsing }

// UnknownElementError reports an element symbol outside the supported set.
type UnknownElementError struct {
	Input   string
	Element string
}

func (e *UnknownElementError) Error() string {
	return fmt.Sprintf("unsupported element %q in %q", e.Element, e.Input)
}
func (*UnknownElementError) Class() string      { return "UnknownElementError" }
func (*UnknownElementError) Category() Category { return CategoryParsing }

// LabelPositionsError reports label positions inconsistent with the count.
type LabelPositionsError struct {
	Input     string
	Element   string
	Count     int
	Positions []int
	Reason    string
}

func (e *LabelPositionsError) Error() string {
	return fmt.Sprintf("invalid positions [%s] for %d %s labels in %q: %s", intsString(e.Positions), e.Count, e.Element, e.Input, e.Reason)
}
func (*LabelPositionsError) Class() string      { return "LabelPositionsError" }
func (*LabelPositionsError) Category() Category { return CategoryParsing }

// TracerParsingError reports a malformed tracer name.
type TracerParsingError struct {
	Input  string
	Reason string
}

func (e *TracerParsingError) Error() string {
	return fmt.Sprintf("unable to parse tracer name %q: %s", e.Input, e.Reason)
}
func (*TracerParsingError) Class() string      { return "TracerParsingError" }
func (*TracerParsingError) Category() Category { return CategoryParsing }

// InfusateParsingError reports a malformed infusate name.
type InfusateParsingError struct {
	Input  string
	Reason string
}

func (e *InfusateParsingError) Error() string {
	return fmt.Sprintf("unable to parse infusate name %q: %s", e.Input, e.Reason)
}
func (*InfusateParsingError) Class() string      { return "InfusateParsingError" }
func (*InfusateParsingError) Category() Category { return CategoryParsing }

// InvalidValueError reports a cell that does not convert to its column type.
type InvalidValueError struct {
	Column   string
	Value    string
	Expected string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s value %q: expected %s", e.Column, e.Value, e.Expected)
}
func (*InvalidValueError) Class() string      { return "InvalidValueError" }
func (*InvalidValueError) Category() Category { return CategoryParsing }

// SequenceNameFormatError reports a sequence reference that is not
// "operator, lc protocol, instrument, date".
type SequenceNameFormatError struct {
	Value string
}

func (e *SequenceNameFormatError) Error() string {
	return fmt.Sprintf("sequence %q must be formatted as \"operator, LC protocol, instrument, YYYY-MM-DD\"", e.Value)
}
func (*SequenceNameFormatError) Class() string      { return "SequenceNameFormatError" }
func (*SequenceNameFormatError) Category() Category { return CategoryParsing }
