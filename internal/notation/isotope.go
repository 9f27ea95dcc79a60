// Package notation parses and renders the compact isotope, tracer, infusate
// and sequence name grammars used throughout Study Docs and peak annotation
// files. Every grammar production fails with its own named exception.
package notation

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"tracebase/internal/exceptions"
	"tracebase/pkg/domain"
)

// Elements lists the element symbols a label may carry.
var Elements = []string{"C", "N", "H", "O", "S"}

// IsElement reports whether symbol is a supported label element.
func IsElement(symbol string) bool {
	for _, e := range Elements {
		if e == symbol {
			return true
		}
	}
	return false
}

const labelSeparator = "-label-"

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenElement
)

type token struct {
	kind  tokenKind
	text  string
	value int
}

// ParseIsotopeString parses an observed isotope label. Accepted productions:
//
//	PARENT | C12 PARENT              unlabeled, returns no labels
//	13C5 [, 15N1 ...]                simple mass-element-count labels
//	13C15N-label-5-1                 compound, mass number first
//	C13N15-label-5-1                 compound, element first (AccuCor/IsoCorr)
func ParseIsotopeString(input string) ([]domain.Label, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, &exceptions.IsotopeParsingError{Input: input, Reason: "empty isotope string"}
	}
	if isParent(s) {
		return nil, nil
	}
	if head, tail, ok := strings.Cut(s, labelSeparator); ok {
		return parseCompound(input, head, tail)
	}
	var labels []domain.Label
	for _, item := range strings.Split(s, ",") {
		label, err := parseSimple(input, strings.TrimSpace(item))
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	if err := checkDupes(input, labels); err != nil {
		return nil, err
	}
	return labels, nil
}

func isParent(s string) bool {
	fields := strings.Fields(s)
	if len(fields) == 0 || !strings.EqualFold(fields[len(fields)-1], "PARENT") {
		return false
	}
	return len(fields) <= 2
}

func tokenize(input, s string) ([]token, error) {
	var out []token
	runes := []rune(s)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			text := string(runes[i:j])
			v, err := strconv.Atoi(text)
			if err != nil {
				return nil, &exceptions.IsotopeParsingError{Input: input, Reason: "invalid number " + text}
			}
			out = append(out, token{kind: tokenNumber, text: text, value: v})
			i = j
		case unicode.IsUpper(r):
			j := i + 1
			if j < len(runes) && unicode.IsLower(runes[j]) {
				j++
			}
			out = append(out, token{kind: tokenElement, text: string(runes[i:j])})
			i = j
		default:
			return nil, &exceptions.IsotopeParsingError{Input: input, Reason: "unexpected character " + strconv.QuoteRune(r)}
		}
	}
	return out, nil
}

func unbalanced(input string, elements, masses, counts int) error {
	most := elements
	if masses > most {
		most = masses
	}
	if counts > most {
		most = counts
	}
	var missing []string
	if elements < most {
		missing = append(missing, "element symbol")
	}
	if masses < most {
		missing = append(missing, "mass number")
	}
	if counts < most {
		missing = append(missing, "label count")
	}
	return &exceptions.ObservedIsotopeUnbalancedError{
		Input:       input,
		Elements:    elements,
		MassNumbers: masses,
		Counts:      counts,
		Missing:     strings.Join(missing, " and "),
	}
}

// parseSimple handles one "13C5" item: mass number, element, count.
func parseSimple(input, item string) (domain.Label, error) {
	tokens, err := tokenize(input, item)
	if err != nil {
		return domain.Label{}, err
	}
	var mass, elem, count *token
	for i := range tokens {
		tok := &tokens[i]
		switch {
		case tok.kind == tokenElement && elem == nil:
			elem = tok
		case tok.kind == tokenNumber && elem == nil && mass == nil:
			mass = tok
		case tok.kind == tokenNumber && elem != nil && count == nil:
			count = tok
		default:
			return domain.Label{}, &exceptions.IsotopeParsingError{Input: input, Reason: "unexpected " + tok.text + " in " + strconv.Quote(item)}
		}
	}
	e, m, c := present(elem), present(mass), present(count)
	if e != 1 || m != 1 || c != 1 {
		return domain.Label{}, unbalanced(input, e, m, c)
	}
	if !IsElement(elem.text) {
		return domain.Label{}, &exceptions.UnknownElementError{Input: input, Element: elem.text}
	}
	return domain.Label{Element: elem.text, MassNumber: mass.value, Count: count.value}, nil
}

func present(t *token) int {
	if t == nil {
		return 0
	}
	return 1
}

// parseCompound handles "<pairs>-label-<count>-<count>...".
func parseCompound(input, head, tail string) ([]domain.Label, error) {
	tokens, err := tokenize(input, head)
	if err != nil {
		return nil, err
	}
	var counts []int
	if tail != "" {
		for _, part := range strings.Split(tail, "-") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, &exceptions.IsotopeParsingError{Input: input, Reason: "label count " + strconv.Quote(part) + " is not an integer"}
			}
			counts = append(counts, n)
		}
	}
	var elements, masses int
	for _, tok := range tokens {
		if tok.kind == tokenElement {
			elements++
		} else {
			masses++
		}
	}
	if elements != masses || elements != len(counts) {
		return nil, unbalanced(input, elements, masses, len(counts))
	}
	if len(tokens) == 0 {
		return nil, &exceptions.IsotopeParsingError{Input: input, Reason: "no isotopes before " + labelSeparator}
	}
	elementFirst := tokens[0].kind == tokenElement
	labels := make([]domain.Label, 0, elements)
	for i := 0; i+1 < len(tokens); i += 2 {
		first, second := tokens[i], tokens[i+1]
		elem, mass := second, first
		if elementFirst {
			elem, mass = first, second
		}
		if elem.kind != tokenElement || mass.kind != tokenNumber {
			return nil, &exceptions.IsotopeParsingError{Input: input, Reason: "mixed element/mass number ordering"}
		}
		if !IsElement(elem.text) {
			return nil, &exceptions.UnknownElementError{Input: input, Element: elem.text}
		}
		labels = append(labels, domain.Label{Element: elem.text, MassNumber: mass.value, Count: counts[i/2]})
	}
	if err := checkDupes(input, labels); err != nil {
		return nil, err
	}
	return labels, nil
}

func checkDupes(input string, labels []domain.Label) error {
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		key := strconv.Itoa(l.MassNumber) + l.Element
		if _, ok := seen[key]; ok {
			return &exceptions.IsotopeStringDupeError{Input: input, Element: l.Element, MassNumber: l.MassNumber}
		}
		seen[key] = struct{}{}
	}
	return nil
}

// RenderLabel renders one label in tracer notation, e.g. "1,2-13C2".
func RenderLabel(l domain.Label) string {
	var b strings.Builder
	if len(l.Positions) > 0 {
		positions := append([]int(nil), l.Positions...)
		sort.Ints(positions)
		for i, p := range positions {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(p))
		}
		b.WriteByte('-')
	}
	b.WriteString(strconv.Itoa(l.MassNumber))
	b.WriteString(l.Element)
	b.WriteString(strconv.Itoa(l.Count))
	return b.String()
}

// RenderIsotopeString renders observed labels in the mass-first compound
// form, or "PARENT" for no labels.
func RenderIsotopeString(labels []domain.Label) string {
	if len(labels) == 0 {
		return "PARENT"
	}
	sorted := append([]domain.Label(nil), labels...)
	domain.SortLabels(sorted)
	var head strings.Builder
	counts := make([]string, len(sorted))
	for i, l := range sorted {
		head.WriteString(strconv.Itoa(l.MassNumber))
		head.WriteString(l.Element)
		counts[i] = strconv.Itoa(l.Count)
	}
	return head.String() + labelSeparator + strings.Join(counts, "-")
}
