// Package resolve turns raw cross-sheet references (sample data headers,
// sequence names, compound names, default sequences) into stored records,
// reporting named exceptions instead of guessing.
package resolve

import (
	"regexp"
	"sort"
	"strings"

	"tracebase/internal/exceptions"
	"tracebase/pkg/domain"
)

var scanLabelPattern = regexp.MustCompile(`(?i)[_-](pos|neg|scan\d+)$`)

// StripScanLabels removes trailing polarity and scan markers such as "_pos",
// "-neg" or "_scan2", repeatedly.
func StripScanLabels(name string) string {
	for {
		stripped := scanLabelPattern.ReplaceAllString(name, "")
		if stripped == name || stripped == "" {
			return name
		}
		name = stripped
	}
}

// HeaderMatch is the outcome of matching a sample data header.
type HeaderMatch struct {
	Sample string
	// Assumed is set when the match needed case folding or scan label
	// stripping and deserves a warning.
	Assumed bool
}

// SampleMatcher matches sample data headers to sample names.
type SampleMatcher struct {
	exact    map[string]string
	stripped map[string][]string
}

// NewSampleMatcher indexes sample names.
func NewSampleMatcher(samples []string) *SampleMatcher {
	m := &SampleMatcher{exact: make(map[string]string, len(samples)), stripped: make(map[string][]string)}
	for _, s := range samples {
		m.exact[s] = s
		key := strings.ToLower(StripScanLabels(s))
		m.stripped[key] = appendUnique(m.stripped[key], s)
	}
	return m
}

// Match resolves header to a unique sample. No match yields a
// MissingSampleError; several candidates yield a MultipleRecordsReturnedError.
func (m *SampleMatcher) Match(file, header string) (HeaderMatch, error) {
	if s, ok := m.exact[header]; ok {
		return HeaderMatch{Sample: s}, nil
	}
	candidates := m.stripped[strings.ToLower(StripScanLabels(header))]
	switch len(candidates) {
	case 0:
		return HeaderMatch{}, &exceptions.MissingSampleError{File: file, Header: header}
	case 1:
		return HeaderMatch{Sample: candidates[0], Assumed: true}, nil
	default:
		sorted := append([]string(nil), candidates...)
		sort.Strings(sorted)
		return HeaderMatch{}, &exceptions.MultipleRecordsReturnedError{Entity: domain.EntitySample, Query: header, Matches: sorted}
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
