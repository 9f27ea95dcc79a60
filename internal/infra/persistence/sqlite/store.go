// Package sqlite keeps the in-memory store durable in a SQLite file. Each
// entity type is one row of entity_buckets holding its records as JSON.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"tracebase/internal/infra/persistence/memory"
	"tracebase/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "tracebase.db"

const schema = `CREATE TABLE IF NOT EXISTS entity_buckets (
	entity       TEXT PRIMARY KEY,
	payload      BLOB NOT NULL,
	record_count INTEGER NOT NULL,
	updated_at   TEXT NOT NULL
)`

const upsert = `INSERT INTO entity_buckets(entity, payload, record_count, updated_at) VALUES(?, ?, ?, ?)
ON CONFLICT(entity) DO UPDATE SET payload = excluded.payload, record_count = excluded.record_count, updated_at = excluded.updated_at`

// Store runs transactions in memory and writes the buckets each committed
// transaction changed.
type Store struct {
	*memory.Store
	db      *sql.DB
	mu      sync.Mutex
	path    string
	tracker *memory.BucketTracker
}

// NewStore opens (or creates) the database at path and hydrates the store
// from it.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite allows a single writer

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create entity_buckets: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path, tracker: memory.NewBucketTracker()}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT entity, payload FROM entity_buckets`)
	if err != nil {
		return fmt.Errorf("select entity_buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := domain.Snapshot{}
	for rows.Next() {
		var (
			entity  string
			payload []byte
		)
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

func (s *Store) persist(ctx context.Context, touched []domain.EntityType) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dirty, err := s.tracker.Dirty(s.ExportBuckets(s.tracker.Pending(touched)...))
	if err != nil || len(dirty) == 0 {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, b := range dirty {
		if _, err := tx.ExecContext(ctx, upsert, string(b.Entity), b.Payload, b.Records, now); err != nil {
			return fmt.Errorf("upsert %s: %w", b.Entity, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.tracker.Commit(dirty)
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

// RecordCounts returns the persisted record count of every stored entity.
func (s *Store) RecordCounts(ctx context.Context) (map[domain.EntityType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity, record_count FROM entity_buckets`)
	if err != nil {
		return nil, fmt.Errorf("select record counts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[domain.EntityType]int)
	for rows.Next() {
		var (
			entity string
			n      int
		)
		if err := rows.Scan(&entity, &n); err != nil {
			return nil, err
		}
		out[domain.EntityType(entity)] = n
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database path.
func (s *Store) Path() string { return s.path }
