// Package testutil provides a database/sql driver stub that understands the
// postgres store's entity_buckets statements.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
)

// StubConn records statements and keeps entity_buckets rows in memory.
type StubConn struct {
	Execs      []string
	Buckets    map[string][]byte
	Counts     map[string]int64
	FailPing   bool
	FailBegin  bool
	FailExec   bool
	FailCommit bool
}

var stubSeq atomic.Int64

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Buckets: make(map[string][]byte), Counts: make(map[string]int64)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. Upserts into entity_buckets
// are applied; every other statement is only recorded.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	if !IsUpsert(query) {
		return driver.RowsAffected(0), nil
	}
	if len(args) != 3 {
		return nil, fmt.Errorf("expected entity, payload and count, got %d args", len(args))
	}
	entity, _ := args[0].Value.(string)
	payload, _ := args[1].Value.([]byte)
	count, _ := args[2].Value.(int64)
	c.Buckets[entity] = append([]byte(nil), payload...)
	c.Counts[entity] = count
	return driver.RowsAffected(1), nil
}

// IsUpsert reports whether query writes an entity bucket.
func IsUpsert(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO ENTITY_BUCKETS")
}

// Upserts counts the recorded bucket writes.
func (c *StubConn) Upserts() int {
	n := 0
	for _, q := range c.Execs {
		if IsUpsert(q) {
			n++
		}
	}
	return n
}

// QueryContext implements driver.QueryerContext for the entity_buckets load.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToLower(query), "from entity_buckets") {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	entities := make([]string, 0, len(c.Buckets))
	for e := range c.Buckets {
		entities = append(entities, e)
	}
	sort.Strings(entities)
	rows := make([][]driver.Value, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, []driver.Value{e, c.Buckets[e]})
	}
	return &stubRows{rows: rows}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return []string{"entity", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
