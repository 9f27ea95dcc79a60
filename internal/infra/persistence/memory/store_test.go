package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/pkg/domain"
)

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, ok := tx.Find(domain.EntityTissue, "liver")
		assert.False(t, ok)
		created, err := tx.Create(domain.Tissue{Name: "liver"})
		if err != nil {
			return err
		}
		assert.NotEmpty(t, created.Meta().ID)
		assert.Len(t, tx.Snapshot().List(domain.EntityTissue), 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count(domain.EntityTissue))

	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	assert.Equal(t, 0, store.Count(domain.EntityTissue))
	store.ImportState(snapshot)
	assert.Equal(t, 1, store.Count(domain.EntityTissue))
	assert.NotNil(t, store.RulesEngine())
	assert.NotNil(t, store.NowFunc())
}

func TestStoreCreateRejectsDuplicateKey(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.Create(domain.Tissue{Name: "liver"}); err != nil {
			return err
		}
		_, err := tx.Create(domain.Tissue{Name: "liver"})
		return err
	})
	var exists domain.ErrAlreadyExists
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, 0, store.Count(domain.EntityTissue), "failed transaction must not commit")
}

func TestStoreMergeAdditive(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.Create(domain.Compound{Name: "glucose", HMDBID: "HMDB0000122", Formula: "C6H12O6", Synonyms: []string{"dextrose"}})
		return err
	})
	require.NoError(t, err)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		merged, err := tx.MergeAdditive(domain.Compound{Name: "glucose", Synonyms: []string{"Glc"}})
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"dextrose", "Glc"}, merged.(domain.Compound).Synonyms)
		assert.Equal(t, fixed, merged.Meta().CreatedAt)
		return nil
	})
	require.NoError(t, err)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.MergeAdditive(domain.Compound{Name: "glucose", Formula: "C6H12O7"})
		return err
	})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, "formula", conflict.Conflicts[0].Field)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.MergeAdditive(domain.Compound{Name: "lactate"})
		return err
	})
	var missing domain.ErrNotFound
	assert.ErrorAs(t, err, &missing)
}

func TestStoreDeleteHonorsReferences(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.Create(domain.Animal{Name: "A1"}); err != nil {
			return err
		}
		_, err := tx.Create(domain.Sample{Name: "S1", AnimalName: "A1", TissueName: "liver"})
		return err
	})
	require.NoError(t, err)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.Delete(domain.EntityAnimal, "A1")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still referenced by sample S1")

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.Delete(domain.EntitySample, "S1"); err != nil {
			return err
		}
		return tx.Delete(domain.EntityAnimal, "A1")
	})
	require.NoError(t, err)
	assert.Equal(t, 0, store.Count(domain.EntityAnimal))
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, c := range changes {
		res.Violations = append(res.Violations, domain.Violation{Rule: "block", Severity: domain.SeverityError, Entity: c.Entity, Key: c.After.Key()})
	}
	return res, nil
}

type failingRule struct{}

func (failingRule) Name() string { return "fail" }

func (failingRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{}, errors.New("boom")
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.Create(domain.Tissue{Name: "brain"})
		return e
	})
	var violation domain.RuleViolationError
	require.ErrorAs(t, err, &violation)
	assert.True(t, res.HasBlocking())
	assert.Equal(t, 0, store.Count(domain.EntityTissue))
}

func TestStoreRuleError(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(failingRule{})
	store := NewStore(engine)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.Create(domain.Tissue{Name: "brain"})
		return e
	})
	require.EqualError(t, err, "rule fail: boom")
}

func TestStoreViewIsIsolated(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.Create(domain.Tissue{Name: "liver"})
		return err
	})
	require.NoError(t, err)
	err = store.View(ctx, func(view domain.TransactionView) error {
		tissues := domain.List[domain.Tissue](view)
		require.Len(t, tissues, 1)
		assert.Equal(t, "liver", tissues[0].Name)
		_, ok := domain.Find[domain.Tissue](view, "liver")
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreTransactionSeesItsOwnDeletesAndCreates(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, name := range []string{"kidney", "liver"} {
			if _, err := tx.Create(domain.Tissue{Name: name}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	exported := store.ExportState()

	_, touched, err := store.Commit(ctx, func(tx domain.Transaction) error {
		if err := tx.Delete(domain.EntityTissue, "kidney"); err != nil {
			return err
		}
		if _, ok := tx.Find(domain.EntityTissue, "kidney"); ok {
			t.Fatalf("deleted record still visible")
		}
		if _, err := tx.Create(domain.Tissue{Name: "brain"}); err != nil {
			return err
		}
		var names []string
		for _, rec := range tx.List(domain.EntityTissue) {
			names = append(names, rec.Key())
		}
		assert.Equal(t, []string{"brain", "liver"}, names)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.EntityType{domain.EntityTissue}, touched)
	assert.Equal(t, 2, store.Count(domain.EntityTissue))
	assert.Len(t, exported[domain.EntityTissue], 2, "exported state is independent of later commits")
	_, ok := exported[domain.EntityTissue]["kidney"]
	assert.True(t, ok)

	_, _, err = store.Commit(ctx, func(tx domain.Transaction) error {
		if _, err := tx.Create(domain.Tissue{Name: "heart"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, 2, store.Count(domain.EntityTissue), "aborted writes never reach the store")
}
