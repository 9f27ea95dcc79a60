package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, e := tx.Create(domain.Compound{Name: "lactate", HMDBID: "HMDB0000190", Formula: "C3H6O3", Synonyms: []string{"L-lactate"}}); e != nil {
			return e
		}
		_, e := tx.Create(domain.Tracer{Name: "lactate-[13C3]", CompoundName: "lactate", Labels: []domain.Label{{Element: "C", MassNumber: 13, Count: 3}}})
		return e
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reloaded.Close() })
	assert.Equal(t, path, reloaded.Path())

	var compound domain.Compound
	var tracer domain.Tracer
	require.NoError(t, reloaded.View(context.Background(), func(view domain.TransactionView) error {
		compound, _ = domain.Find[domain.Compound](view, "lactate")
		tracer, _ = domain.Find[domain.Tracer](view, "lactate-[13C3]")
		return nil
	}))
	assert.Equal(t, []string{"L-lactate"}, compound.Synonyms)
	require.Len(t, tracer.Labels, 1)
	assert.Equal(t, 13, tracer.Labels[0].MassNumber)
	assert.NotEmpty(t, tracer.ID)
}

func countRows(t *testing.T, store *Store) int {
	t.Helper()
	var n int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM entity_buckets`).Scan(&n))
	return n
}

func TestSQLiteStoreRewritesOnlyChangedBuckets(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	create := func(rec domain.Record) {
		_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, e := tx.Create(rec)
			return e
		})
		require.NoError(t, err)
	}

	create(domain.Tissue{Name: "liver"})
	assert.Equal(t, len(domain.EntityTypes), countRows(t, store))

	var before string
	require.NoError(t, store.DB().QueryRow(`SELECT updated_at FROM entity_buckets WHERE entity = ?`, string(domain.EntityCompound)).Scan(&before))
	create(domain.Tissue{Name: "kidney"})
	var after string
	require.NoError(t, store.DB().QueryRow(`SELECT updated_at FROM entity_buckets WHERE entity = ?`, string(domain.EntityCompound)).Scan(&after))
	assert.Equal(t, before, after, "untouched bucket was rewritten")

	counts, err := store.RecordCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.EntityTissue])
	assert.Zero(t, counts[domain.EntityCompound])
}

func TestSQLiteStoreSkipsPersistOnFailure(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.MergeAdditive(domain.Tissue{Name: "missing"})
		return e
	})
	require.Error(t, err)
	assert.Zero(t, countRows(t, store))
}
