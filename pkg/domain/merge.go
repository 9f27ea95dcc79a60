package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a natural key has no stored record.
type ErrNotFound struct {
	Entity EntityType
	Key    string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// ErrAlreadyExists is returned by Create when the natural key is taken.
type ErrAlreadyExists struct {
	Entity EntityType
	Key    string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Key)
}

// ConflictError reports fields whose stored value differs from the submitted one.
type ConflictError struct {
	Entity    EntityType
	Key       string
	Conflicts []FieldConflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s: database [%s] file [%s]", c.Field, c.Existing, c.Incoming))
	}
	return fmt.Sprintf("conflicting values for %s %q: %s", e.Entity, e.Key, strings.Join(parts, "; "))
}

// UnionStrings appends the values of incoming not already present in
// existing, preserving first-seen order.
func UnionStrings(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range existing {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range incoming {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// merger accumulates conflicts while comparing scalar fields. Blank incoming
// values mean "not supplied" and never conflict.
type merger struct {
	conflicts []FieldConflict
}

func (m *merger) str(field, existing, incoming string) string {
	if incoming == "" || incoming == existing {
		return existing
	}
	m.conflicts = append(m.conflicts, FieldConflict{Field: field, Existing: existing, Incoming: incoming})
	return existing
}

func (m *merger) num(field string, existing, incoming *float64) *float64 {
	if incoming == nil || (existing != nil && *existing == *incoming) {
		return existing
	}
	m.conflicts = append(m.conflicts, FieldConflict{Field: field, Existing: formatFloat(existing), Incoming: formatFloat(incoming)})
	return existing
}

func (m *merger) date(field string, existing, incoming *time.Time) *time.Time {
	if incoming == nil || (existing != nil && existing.Equal(*incoming)) {
		return existing
	}
	m.conflicts = append(m.conflicts, FieldConflict{Field: field, Existing: formatDate(existing), Incoming: formatDate(incoming)})
	return existing
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatDate(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.Format(SequenceDateLayout)
}

func intPtr(v int) *int { return &v }
