// Package postgres keeps the in-memory store durable in PostgreSQL, one JSONB
// row per entity type.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"tracebase/internal/infra/persistence/memory"
	"tracebase/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/tracebase?sslmode=disable"
)

const schema = `CREATE TABLE IF NOT EXISTS entity_buckets (
	entity       TEXT PRIMARY KEY,
	payload      JSONB NOT NULL,
	record_count INTEGER NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsert = `INSERT INTO entity_buckets(entity, payload, record_count, updated_at) VALUES($1, $2, $3, now())
ON CONFLICT(entity) DO UPDATE SET payload = EXCLUDED.payload, record_count = EXCLUDED.record_count, updated_at = now()`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store runs transactions in memory and writes the buckets each committed
// transaction changed.
type Store struct {
	*memory.Store
	db      *sql.DB
	mu      sync.Mutex
	tracker *memory.BucketTracker
}

// NewStore connects to dsn (a local default when empty), ensures the schema
// and hydrates the store.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure entity_buckets: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, tracker: memory.NewBucketTracker()}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT entity, payload FROM entity_buckets`)
	if err != nil {
		return fmt.Errorf("select entity_buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := domain.Snapshot{}
	for rows.Next() {
		var entity string
		var payload []byte
		if err := rows.Scan(&entity, &payload); err != nil {
			return fmt.Errorf("scan entity_buckets: %w", err)
		}
		if err := memory.UnmarshalBucket(snapshot, entity, payload); err != nil {
			return err
		}
		s.tracker.Seed(entity, payload)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate entity_buckets: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

// RunInTransaction commits fn in memory, then writes the changed buckets.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, _, err := s.Commit(ctx, fn)
	return res, err
}

// Commit is RunInTransaction that also returns the buckets it wrote.
func (s *Store) Commit(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, []domain.EntityType, error) {
	res, touched, err := s.Store.Commit(ctx, fn)
	if err != nil || len(touched) == 0 {
		return res, touched, err
	}
	return res, touched, s.persist(ctx, touched)
}

func (s *Store) persist(ctx context.Context, touched []domain.EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dirty, err := s.tracker.Dirty(s.ExportBuckets(s.tracker.Pending(touched)...))
	if err != nil || len(dirty) == 0 {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, b := range dirty {
		if _, err := tx.ExecContext(ctx, upsert, string(b.Entity), b.Payload, b.Records); err != nil {
			return fmt.Errorf("upsert %s: %w", b.Entity, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	s.tracker.Commit(dirty)
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the driver open function for tests and returns a
// restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
