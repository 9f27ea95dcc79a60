package domain

import "context"

// Transaction exposes the record operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Find(entity EntityType, key string) (Record, bool)
	List(entity EntityType) []Record
	// Create inserts a record whose natural key is not yet present.
	Create(Record) (Record, error)
	// MergeAdditive folds incoming into the stored record with the same key.
	// A *ConflictError is returned when a non-delimited field differs.
	MergeAdditive(Record) (Record, error)
	Delete(entity EntityType, key string) error
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	Find(entity EntityType, key string) (Record, bool)
	List(entity EntityType) []Record
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ExportState() Snapshot
	ImportState(Snapshot)
	RulesEngine() *RulesEngine
}

// Find returns the typed record stored under key.
func Find[T Record](view TransactionView, key string) (T, bool) {
	var zero T
	rec, ok := view.Find(zero.Entity(), key)
	if !ok {
		return zero, false
	}
	typed, ok := rec.(T)
	return typed, ok
}

// List returns every typed record of T's entity, sorted by key.
func List[T Record](view TransactionView) []T {
	var zero T
	recs := view.List(zero.Entity())
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		if typed, ok := rec.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}
