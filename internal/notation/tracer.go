package notation

import (
	"regexp"
	"strconv"
	"strings"

	"tracebase/internal/exceptions"
	"tracebase/pkg/domain"
)

var (
	tracerPattern      = regexp.MustCompile(`^(.+)-\[([^\[\]]+)\]$`)
	tracerLabelPattern = regexp.MustCompile(`(?:(\d+(?:,\d+)*)-)?(\d+)([A-Z][a-z]?)(\d+)`)
)

// TracerSpec is a parsed tracer name.
type TracerSpec struct {
	Compound string
	Labels   []domain.Label
}

// Name renders the canonical tracer name.
func (t TracerSpec) Name() string {
	return RenderTracer(t.Compound, t.Labels)
}

// ParseTracer parses "compound-[label,label]" where each label is
// "[positions-]massElementCount", e.g. "glucose-[1,2-13C2]".
func ParseTracer(input string) (TracerSpec, error) {
	s := strings.TrimSpace(input)
	m := tracerPattern.FindStringSubmatch(s)
	if m == nil {
		return TracerSpec{}, &exceptions.TracerParsingError{Input: input, Reason: "expected \"compound-[labels]\""}
	}
	compound := strings.TrimSpace(m[1])
	body := m[2]
	matches := tracerLabelPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return TracerSpec{}, &exceptions.TracerParsingError{Input: input, Reason: "no isotope labels in " + strconv.Quote(body)}
	}
	rebuilt := make([]string, len(matches))
	for i, lm := range matches {
		rebuilt[i] = lm[0]
	}
	if strings.Join(rebuilt, ",") != strings.ReplaceAll(body, " ", "") {
		return TracerSpec{}, &exceptions.TracerParsingError{Input: input, Reason: "unrecognized label text in " + strconv.Quote(body)}
	}
	labels := make([]domain.Label, 0, len(matches))
	for _, lm := range matches {
		mass, _ := strconv.Atoi(lm[2])
		count, _ := strconv.Atoi(lm[4])
		label := domain.Label{Element: lm[3], MassNumber: mass, Count: count}
		if lm[1] != "" {
			for _, p := range strings.Split(lm[1], ",") {
				pos, _ := strconv.Atoi(p)
				label.Positions = append(label.Positions, pos)
			}
		}
		if !IsElement(label.Element) {
			return TracerSpec{}, &exceptions.UnknownElementError{Input: input, Element: label.Element}
		}
		if err := ValidatePositions(input, label); err != nil {
			return TracerSpec{}, err
		}
		labels = append(labels, label)
	}
	if err := checkDupes(input, labels); err != nil {
		return TracerSpec{}, err
	}
	domain.SortLabels(labels)
	return TracerSpec{Compound: compound, Labels: labels}, nil
}

// ValidatePositions checks that a label names no more positions than its
// count. Deuterium positions are relative to the bonded carbon and may repeat.
func ValidatePositions(input string, l domain.Label) error {
	if len(l.Positions) == 0 {
		return nil
	}
	if len(l.Positions) > l.Count {
		return &exceptions.LabelPositionsError{
			Input: input, Element: l.Element, Count: l.Count, Positions: l.Positions,
			Reason: "more positions than labeled atoms",
		}
	}
	seen := make(map[int]struct{}, len(l.Positions))
	for _, p := range l.Positions {
		if p < 1 {
			return &exceptions.LabelPositionsError{
				Input: input, Element: l.Element, Count: l.Count, Positions: l.Positions,
				Reason: "positions start at 1",
			}
		}
		if _, dup := seen[p]; dup && l.Element != "H" {
			return &exceptions.LabelPositionsError{
				Input: input, Element: l.Element, Count: l.Count, Positions: l.Positions,
				Reason: "position " + strconv.Itoa(p) + " repeats",
			}
		}
		seen[p] = struct{}{}
	}
	return nil
}

// RenderTracer renders the canonical tracer name with labels ordered by
// element and mass number.
func RenderTracer(compound string, labels []domain.Label) string {
	sorted := append([]domain.Label(nil), labels...)
	domain.SortLabels(sorted)
	parts := make([]string, len(sorted))
	for i, l := range sorted {
		parts[i] = RenderLabel(l)
	}
	return compound + "-[" + strings.Join(parts, ",") + "]"
}
