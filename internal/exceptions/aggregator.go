package exceptions

import (
	"errors"
	"fmt"
	"sort"

	"tracebase/pkg/domain"
)

// Entry is one recorded exception with its severity and location.
type Entry struct {
	Severity domain.Severity `json:"severity"`
	Class    string          `json:"class"`
	Category Category        `json:"category"`
	Message  string          `json:"message"`
	Location Location        `json:"location"`
	Err      error           `json:"-"`
}

// Summary counts the occurrences of one exception class.
type Summary struct {
	Class    string   `json:"class"`
	Category Category `json:"category"`
	Errors   int      `json:"errors"`
	Warnings int      `json:"warnings"`
	Examples []string `json:"examples,omitempty"`
}

// Report is the user facing validation result.
type Report struct {
	Entries  []Entry   `json:"entries"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
	Summary  []Summary `json:"summary,omitempty"`
}

// HasFatal reports whether the report holds any error level entries.
func (r Report) HasFatal() bool { return r.Errors > 0 }

// Aggregator accumulates exceptions in the order they are raised. It is not
// safe for concurrent use; each pipeline pass owns one.
type Aggregator struct {
	entries []Entry
}

// New constructs an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Add records err at severity. Errors that do not implement Exception are
// recorded under the generic "Error" class.
func (a *Aggregator) Add(err error, severity domain.Severity, loc Location) {
	if err == nil {
		return
	}
	entry := Entry{Severity: severity, Message: err.Error(), Location: loc, Err: err}
	var exc Exception
	if errors.As(err, &exc) {
		entry.Class = exc.Class()
		entry.Category = exc.Category()
	} else {
		entry.Class = "Error"
		entry.Category = CategoryGeneral
	}
	a.entries = append(a.entries, entry)
}

// Error records err as an error.
func (a *Aggregator) Error(err error, loc Location) { a.Add(err, domain.SeverityError, loc) }

// Warn records err as a warning.
func (a *Aggregator) Warn(err error, loc Location) { a.Add(err, domain.SeverityWarning, loc) }

// Errorf records a formatted general error.
func (a *Aggregator) Errorf(loc Location, format string, args ...any) {
	a.Error(&GeneralError{Message: fmt.Sprintf(format, args...)}, loc)
}

// Warnf records a formatted general warning.
func (a *Aggregator) Warnf(loc Location, format string, args ...any) {
	a.Warn(&GeneralError{Message: fmt.Sprintf(format, args...)}, loc)
}

// Merge appends every entry of other.
func (a *Aggregator) Merge(other *Aggregator) {
	if other == nil {
		return
	}
	a.entries = append(a.entries, other.entries...)
}

// Entries returns a copy of the recorded entries.
func (a *Aggregator) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Len returns the number of recorded entries.
func (a *Aggregator) Len() int { return len(a.entries) }

// Counts returns the number of errors and warnings.
func (a *Aggregator) Counts() (errs, warnings int) {
	for _, e := range a.entries {
		switch e.Severity {
		case domain.SeverityError:
			errs++
		case domain.SeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}

// HasFatal reports whether any error level entry was recorded.
func (a *Aggregator) HasFatal() bool {
	errs, _ := a.Counts()
	return errs > 0
}

// ByClass returns the entries of the given class.
func (a *Aggregator) ByClass(class string) []Entry {
	var out []Entry
	for _, e := range a.entries {
		if e.Class == class {
			out = append(out, e)
		}
	}
	return out
}

// Consolidate replaces the entries of class that share a group key with one
// summary entry built from them. Groups with fewer than minSize entries are
// left untouched. The summary takes the position of the group's first entry
// and the highest severity of its members.
func (a *Aggregator) Consolidate(class string, minSize int, groupKey func(Entry) string, build func([]Entry) Exception) {
	groups := make(map[string][]int)
	var order []string
	for i, e := range a.entries {
		if e.Class != class {
			continue
		}
		key := groupKey(e)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	replace := make(map[int]Entry)
	drop := make(map[int]struct{})
	for _, key := range order {
		idx := groups[key]
		if len(idx) < minSize {
			continue
		}
		members := make([]Entry, len(idx))
		severity := domain.SeverityWarning
		for i, j := range idx {
			members[i] = a.entries[j]
			if a.entries[j].Severity == domain.SeverityError {
				severity = domain.SeverityError
			}
		}
		summary := build(members)
		loc := Location{File: members[0].Location.File, Sheet: members[0].Location.Sheet}
		replace[idx[0]] = Entry{
			Severity: severity,
			Class:    summary.Class(),
			Category: summary.Category(),
			Message:  summary.Error(),
			Location: loc,
			Err:      summary,
		}
		for _, j := range idx[1:] {
			drop[j] = struct{}{}
		}
	}
	if len(replace) == 0 {
		return
	}
	out := make([]Entry, 0, len(a.entries)-len(drop))
	for i, e := range a.entries {
		if _, ok := drop[i]; ok {
			continue
		}
		if r, ok := replace[i]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, e)
	}
	a.entries = out
}

// RollUp applies the standard summaries: missing samples and compounds and
// assumed header matches per file, and required values per sheet column.
func (a *Aggregator) RollUp() {
	byFile := func(e Entry) string { return e.Location.File }
	a.Consolidate("MissingSampleError", 2, byFile, func(members []Entry) Exception {
		s := &AllMissingSamplesError{File: members[0].Location.File}
		for _, m := range members {
			var exc *MissingSampleError
			if errors.As(m.Err, &exc) {
				s.Headers = append(s.Headers, exc.Header)
			}
		}
		return s
	})
	a.Consolidate("MissingCompoundError", 2, byFile, func(members []Entry) Exception {
		s := &AllMissingCompoundsError{File: members[0].Location.File}
		for _, m := range members {
			var exc *MissingCompoundError
			if errors.As(m.Err, &exc) {
				s.Compounds = append(s.Compounds, exc.Compound)
			}
		}
		return s
	})
	a.Consolidate("AssumedSampleHeaderMatchWarning", 2, byFile, func(members []Entry) Exception {
		s := &AllAssumedSampleHeaderMatches{File: members[0].Location.File}
		for _, m := range members {
			var exc *AssumedSampleHeaderMatchWarning
			if errors.As(m.Err, &exc) {
				s.Matches = append(s.Matches, exc.Header+" -> "+exc.Sample)
			}
		}
		return s
	})
	a.Consolidate("RequiredValueError", 2, func(e Entry) string {
		return e.Location.File + "\x00" + e.Location.Sheet + "\x00" + e.Location.Column
	}, func(members []Entry) Exception {
		s := &AllRequiredValuesError{Sheet: members[0].Location.Sheet, Column: members[0].Location.Column}
		for _, m := range members {
			s.Rows = append(s.Rows, m.Location.Row)
		}
		return s
	})
}

// Summarize counts entries per class, keeping up to maxExamples messages.
// Classes are ordered by first occurrence.
func (a *Aggregator) Summarize(maxExamples int) []Summary {
	index := make(map[string]int)
	var out []Summary
	for _, e := range a.entries {
		i, ok := index[e.Class]
		if !ok {
			i = len(out)
			index[e.Class] = i
			out = append(out, Summary{Class: e.Class, Category: e.Category})
		}
		s := &out[i]
		if e.Severity == domain.SeverityError {
			s.Errors++
		} else {
			s.Warnings++
		}
		if len(s.Examples) < maxExamples {
			s.Examples = append(s.Examples, e.Message)
		}
	}
	return out
}

// Report snapshots the aggregator. Errors sort before warnings; otherwise
// the order in which exceptions were raised is kept.
func (a *Aggregator) Report() Report {
	entries := a.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Severity == domain.SeverityError && entries[j].Severity != domain.SeverityError
	})
	errs, warnings := a.Counts()
	return Report{Entries: entries, Errors: errs, Warnings: warnings, Summary: a.Summarize(3)}
}
