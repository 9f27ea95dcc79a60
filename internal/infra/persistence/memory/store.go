// Package memory provides an in-memory implementation of the core persistence
// store used for tests, validation dry runs and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tracebase/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Record aliases domain.Record for in-memory persistence operations.
	Record = domain.Record
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Snapshot aliases domain.Snapshot, the bucket-per-entity state image.
	Snapshot = domain.Snapshot
)

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  Snapshot
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func newState() Snapshot {
	s := make(Snapshot, len(domain.EntityTypes))
	for _, e := range domain.EntityTypes {
		s[e] = make(map[string]Record)
	}
	return s
}

// normalize fills in buckets missing from an imported snapshot.
func normalize(s Snapshot) Snapshot {
	out := s.Clone()
	for _, e := range domain.EntityTypes {
		if out[e] == nil {
			out[e] = make(map[string]Record)
		}
	}
	return out
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = normalize(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the clock, for deterministic timestamps in tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// Count returns the number of stored records of entity.
func (s *Store) Count(entity domain.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state[entity])
}

type transaction struct {
	// base is the committed state. It is read only until commit.
	base    Snapshot
	written map[domain.EntityType]map[string]Record
	deleted map[domain.EntityType]map[string]bool
	changes []Change
	now     time.Time
}

type transactionView struct {
	state Snapshot
}

// RunInTransaction executes fn against the committed state. Writes are held
// in the transaction until rules pass; blocking violations discard them.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (Result, error) {
	res, _, err := s.Commit(ctx, fn)
	return res, err
}

// Commit is RunInTransaction that also returns the entity buckets the
// committed transaction wrote, in domain.EntityTypes order.
func (s *Store) Commit(ctx context.Context, fn func(tx domain.Transaction) error) (Result, []domain.EntityType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		base:    s.state,
		written: make(map[domain.EntityType]map[string]Record),
		deleted: make(map[domain.EntityType]map[string]bool),
		now:     s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, nil, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		res, err := s.engine.Evaluate(ctx, tx, tx.changes)
		if err != nil {
			return Result{}, nil, err
		}
		result = res
		if res.HasBlocking() {
			return res, nil, domain.RuleViolationError{Result: res}
		}
	}

	return result, tx.apply(s.state), nil
}

// ExportBuckets clones only the named buckets of the current state.
func (s *Store) ExportBuckets(entities ...domain.EntityType) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Snapshot, len(entities))
	for _, e := range entities {
		bucket := s.state[e]
		cp := make(map[string]Record, len(bucket))
		for k, v := range bucket {
			cp[k] = v
		}
		out[e] = cp
	}
	return out
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.Clone()
	s.mu.RUnlock()
	return fn(transactionView{state: snapshot})
}

func (v transactionView) Find(entity domain.EntityType, key string) (Record, bool) {
	return v.state.Find(entity, key)
}

func (v transactionView) List(entity domain.EntityType) []Record {
	return v.state.List(entity)
}

// apply writes the transaction into state and returns the touched buckets.
func (tx *transaction) apply(state Snapshot) []domain.EntityType {
	var touched []domain.EntityType
	for _, e := range domain.EntityTypes {
		written, deleted := tx.written[e], tx.deleted[e]
		if len(written) == 0 && len(deleted) == 0 {
			continue
		}
		bucket := state[e]
		if bucket == nil {
			bucket = make(map[string]Record, len(written))
			state[e] = bucket
		}
		for k := range deleted {
			delete(bucket, k)
		}
		for k, rec := range written {
			bucket[k] = rec
		}
		touched = append(touched, e)
	}
	return touched
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return tx
}

func (tx *transaction) Find(entity domain.EntityType, key string) (Record, bool) {
	if tx.deleted[entity][key] {
		return nil, false
	}
	if rec, ok := tx.written[entity][key]; ok {
		return rec, true
	}
	return tx.base.Find(entity, key)
}

func (tx *transaction) List(entity domain.EntityType) []Record {
	written, deleted := tx.written[entity], tx.deleted[entity]
	if len(written) == 0 && len(deleted) == 0 {
		return tx.base.List(entity)
	}
	merged := make(map[string]Record, len(tx.base[entity])+len(written))
	for k, rec := range tx.base[entity] {
		if !deleted[k] {
			merged[k] = rec
		}
	}
	for k, rec := range written {
		merged[k] = rec
	}
	return Snapshot{entity: merged}.List(entity)
}

func (tx *transaction) put(entity domain.EntityType, key string, rec Record) {
	if tx.written[entity] == nil {
		tx.written[entity] = make(map[string]Record)
	}
	tx.written[entity][key] = rec
	delete(tx.deleted[entity], key)
}

// Create stores a record under its natural key.
func (tx *transaction) Create(rec Record) (Record, error) {
	entity, key := rec.Entity(), rec.Key()
	if key == "" {
		return nil, fmt.Errorf("%s has an empty natural key", entity)
	}
	if _, exists := tx.Find(entity, key); exists {
		return nil, domain.ErrAlreadyExists{Entity: entity, Key: key}
	}
	meta := rec.Meta()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	meta.CreatedAt = tx.now
	meta.UpdatedAt = tx.now
	rec = rec.WithMeta(meta)
	tx.put(entity, key, rec)
	tx.recordChange(Change{Entity: entity, Action: domain.ActionCreate, After: rec})
	return rec, nil
}

// MergeAdditive folds rec into the stored record with the same natural key.
// Nothing is written when any field conflicts.
func (tx *transaction) MergeAdditive(rec Record) (Record, error) {
	entity, key := rec.Entity(), rec.Key()
	current, ok := tx.Find(entity, key)
	if !ok {
		return nil, domain.ErrNotFound{Entity: entity, Key: key}
	}
	merged, conflicts := current.Merge(rec)
	if len(conflicts) > 0 {
		return current, &domain.ConflictError{Entity: entity, Key: key, Conflicts: conflicts}
	}
	meta := current.Meta()
	meta.UpdatedAt = tx.now
	merged = merged.WithMeta(meta)
	tx.put(entity, key, merged)
	tx.recordChange(Change{Entity: entity, Action: domain.ActionMerge, Before: current, After: merged})
	return merged, nil
}

// Delete removes a record that no other record references.
func (tx *transaction) Delete(entity domain.EntityType, key string) error {
	current, ok := tx.Find(entity, key)
	if !ok {
		return domain.ErrNotFound{Entity: entity, Key: key}
	}
	if ref, found := referencedBy(tx, entity, key); found {
		return fmt.Errorf("%s %q still referenced by %s", entity, key, ref)
	}
	if tx.deleted[entity] == nil {
		tx.deleted[entity] = make(map[string]bool)
	}
	tx.deleted[entity][key] = true
	delete(tx.written[entity], key)
	tx.recordChange(Change{Entity: entity, Action: domain.ActionDelete, Before: current})
	return nil
}

// referencedBy reports the first record that refers to (entity, key).
func referencedBy(view domain.TransactionView, entity domain.EntityType, key string) (string, bool) {
	switch entity {
	case domain.EntitySample:
		for _, rec := range view.List(domain.EntityMSRunSample) {
			if rec.(domain.MSRunSample).SampleName == key {
				return "msrun sample " + rec.Key(), true
			}
		}
	case domain.EntityMSRunSample:
		for _, rec := range view.List(domain.EntityPeakGroup) {
			if rec.(domain.PeakGroup).MSRunSample == key {
				return "peak group " + rec.Key(), true
			}
		}
	case domain.EntityAnimal:
		for _, rec := range view.List(domain.EntitySample) {
			if rec.(domain.Sample).AnimalName == key {
				return "sample " + rec.Key(), true
			}
		}
	case domain.EntityPeakAnnotationFile:
		for _, rec := range view.List(domain.EntityPeakGroup) {
			if rec.(domain.PeakGroup).AnnotationFile == key {
				return "peak group " + rec.Key(), true
			}
		}
	}
	return "", false
}
