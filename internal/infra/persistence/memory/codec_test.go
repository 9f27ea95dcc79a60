package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/pkg/domain"
)

func TestBucketTrackerReportsOnlyChangedBuckets(t *testing.T) {
	store := NewStore(nil)
	tracker := NewBucketTracker()

	dirty, err := tracker.Dirty(store.ExportState())
	require.NoError(t, err)
	assert.Len(t, dirty, len(domain.EntityTypes))
	tracker.Commit(dirty)

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.Create(domain.Compound{Name: "lactate", Synonyms: []string{"L-lactic acid"}})
		return e
	})
	require.NoError(t, err)

	dirty, err = tracker.Dirty(store.ExportState())
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, domain.EntityCompound, dirty[0].Entity)
	assert.Equal(t, 1, dirty[0].Records)
	tracker.Commit(dirty)

	dirty, err = tracker.Dirty(store.ExportState())
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestBucketRoundTripIsStable(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.Create(domain.Tracer{Name: "lactate-[13C3]", CompoundName: "lactate", Labels: []domain.Label{{Element: "C", MassNumber: 13, Count: 3}}})
		return e
	})
	require.NoError(t, err)

	encoded, err := NewBucketTracker().Dirty(store.ExportState())
	require.NoError(t, err)
	require.Len(t, encoded, len(domain.EntityTypes))
	tracker := NewBucketTracker()
	snapshot := domain.Snapshot{}
	for _, b := range encoded {
		require.NoError(t, UnmarshalBucket(snapshot, string(b.Entity), b.Payload))
		tracker.Seed(string(b.Entity), b.Payload)
	}
	require.NoError(t, UnmarshalBucket(snapshot, "retired_bucket", []byte(`{"x":{}}`)))

	reloaded := NewStore(nil)
	reloaded.ImportState(snapshot)
	dirty, err := tracker.Dirty(reloaded.ExportState())
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestBucketTrackerEncodesOnlyRequestedBuckets(t *testing.T) {
	store := NewStore(nil)
	tracker := NewBucketTracker()
	assert.Equal(t, domain.EntityTypes, tracker.Pending(nil), "a fresh tracker owes every bucket")

	dirty, err := tracker.Dirty(store.ExportState())
	require.NoError(t, err)
	tracker.Commit(dirty)
	assert.Empty(t, tracker.Pending(nil))

	_, touched, err := store.Commit(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.Create(domain.Tissue{Name: "liver"})
		return e
	})
	require.NoError(t, err)
	require.Equal(t, []domain.EntityType{domain.EntityTissue}, touched)
	assert.Equal(t, touched, tracker.Pending(touched))

	dirty, err = tracker.Dirty(store.ExportBuckets(touched...))
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, domain.EntityTissue, dirty[0].Entity)
	assert.Equal(t, 1, dirty[0].Records)
}
