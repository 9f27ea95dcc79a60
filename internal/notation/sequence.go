package notation

import (
	"strings"
	"time"

	"tracebase/internal/exceptions"
	"tracebase/pkg/domain"
)

// SequenceRef is a parsed "operator, lc protocol, instrument, date" string.
type SequenceRef struct {
	Operator   string
	LCProtocol string
	Instrument string
	Date       time.Time
}

// Name renders the canonical sequence name.
func (r SequenceRef) Name() string {
	return domain.SequenceName(r.Operator, r.LCProtocol, r.Instrument, r.Date)
}

// ParseSequenceName splits a sequence reference into its four parts.
func ParseSequenceName(input string) (SequenceRef, error) {
	parts := strings.Split(input, ",")
	if len(parts) != 4 {
		return SequenceRef{}, &exceptions.SequenceNameFormatError{Value: input}
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return SequenceRef{}, &exceptions.SequenceNameFormatError{Value: input}
		}
	}
	date, err := time.Parse(domain.SequenceDateLayout, parts[3])
	if err != nil {
		return SequenceRef{}, &exceptions.SequenceNameFormatError{Value: input}
	}
	return SequenceRef{Operator: parts[0], LCProtocol: parts[1], Instrument: parts[2], Date: date}, nil
}
