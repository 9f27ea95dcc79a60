package resolve

import (
	"sort"
	"strings"

	"tracebase/internal/exceptions"
	"tracebase/pkg/domain"
)

// Lookup finds a record by natural key or returns a RecordDoesNotExistError.
func Lookup[T domain.Record](view domain.TransactionView, key string) (T, error) {
	rec, ok := domain.Find[T](view, key)
	if !ok {
		var zero T
		return zero, &exceptions.RecordDoesNotExistError{Entity: zero.Entity(), Key: key}
	}
	return rec, nil
}

// CompoundIndex resolves compound names and synonyms case-insensitively.
type CompoundIndex struct {
	byName map[string][]string
}

// NewCompoundIndex indexes every stored compound.
func NewCompoundIndex(view domain.TransactionView) *CompoundIndex {
	idx := &CompoundIndex{byName: make(map[string][]string)}
	for _, c := range domain.List[domain.Compound](view) {
		for _, name := range c.Names() {
			key := strings.ToLower(strings.TrimSpace(name))
			idx.byName[key] = appendUnique(idx.byName[key], c.Name)
		}
	}
	return idx
}

// Resolve returns the primary name for a compound name or synonym.
func (idx *CompoundIndex) Resolve(name string) (string, error) {
	matches := idx.byName[strings.ToLower(strings.TrimSpace(name))]
	switch len(matches) {
	case 0:
		return "", &exceptions.RecordDoesNotExistError{Entity: domain.EntityCompound, Key: name}
	case 1:
		return matches[0], nil
	default:
		sorted := append([]string(nil), matches...)
		sort.Strings(sorted)
		return "", &exceptions.MultipleRecordsReturnedError{Entity: domain.EntityCompound, Query: name, Matches: sorted}
	}
}
