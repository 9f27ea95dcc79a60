package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/internal/infra/persistence/memory"
	"tracebase/pkg/domain"
)

func create(t *testing.T, store *memory.Store, recs ...domain.Record) error {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for _, rec := range recs {
			if _, err := tx.Create(rec); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func blockedBy(t *testing.T, err error) []string {
	t.Helper()
	var rv domain.RuleViolationError
	require.True(t, errors.As(err, &rv), "expected rule violation, got %v", err)
	rules := make([]string, 0, len(rv.Result.Violations))
	for _, v := range rv.Result.Violations {
		rules = append(rules, v.Rule)
	}
	return rules
}

func TestCompoundSynonymRule(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	require.NoError(t, create(t, store,
		domain.Compound{Name: "lactate", Synonyms: []string{"L-lactic acid"}},
		domain.Compound{Name: "citrate"},
	))

	err := create(t, store, domain.Compound{Name: "isocitrate", Synonyms: []string{"l-LACTIC acid"}})
	assert.Equal(t, []string{"compound_synonym_unique"}, blockedBy(t, err))
	assert.Equal(t, 2, store.Count(domain.EntityCompound))

	err = create(t, store, domain.Compound{Name: "Citrate"})
	assert.Equal(t, []string{"compound_synonym_unique"}, blockedBy(t, err))

	require.NoError(t, create(t, store, domain.Compound{Name: "isocitrate", Synonyms: []string{"iso"}}))
}

func TestPeakGroupRepresentationRule(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	run := domain.MSRunSample{SequenceName: "seq", SampleName: "s1", Header: "s1"}
	runPos := domain.MSRunSample{SequenceName: "seq", SampleName: "s1", Header: "s1_pos"}
	require.NoError(t, create(t, store,
		domain.Study{Name: "study"},
		domain.Compound{Name: "lactate"},
		domain.Tissue{Name: "liver"},
		domain.Animal{Name: "m1"},
		domain.Sample{Name: "s1", AnimalName: "m1", TissueName: "liver"},
		domain.Sequence{Operator: "op", LCProtocol: "lc", Instrument: "QE", Date: time.Date(2021, 4, 23, 0, 0, 0, 0, time.UTC)},
	))
	run.SequenceName = domain.SequenceName("op", "lc", "QE", time.Date(2021, 4, 23, 0, 0, 0, 0, time.UTC))
	runPos.SequenceName = run.SequenceName
	require.NoError(t, create(t, store, run, runPos))

	require.NoError(t, create(t, store, domain.PeakGroup{
		Name: "lactate", Compounds: []string{"lactate"}, SampleName: "s1", MSRunSample: run.Key(), AnnotationFile: "a.xlsx",
	}))
	// Same file, second scan-labeled header of the same sample.
	require.NoError(t, create(t, store, domain.PeakGroup{
		Name: "lactate", Compounds: []string{"Lactate"}, SampleName: "s1", MSRunSample: runPos.Key(), AnnotationFile: "a.xlsx",
	}))

	err := create(t, store, domain.PeakGroup{
		Name: "lactate", Compounds: []string{"lactate"}, SampleName: "s1", MSRunSample: runPos.Key() + "x", AnnotationFile: "b.xlsx",
	})
	assert.Contains(t, blockedBy(t, err), "peak_group_single_representation")
	assert.Equal(t, 2, store.Count(domain.EntityPeakGroup))
}

func TestReferenceIntegrityRule(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	require.NoError(t, create(t, store, domain.Tissue{Name: "liver"}, domain.Animal{Name: "m1"}))

	err := create(t, store, domain.Sample{Name: "s1", AnimalName: "m2", TissueName: "liver"})
	var rv domain.RuleViolationError
	require.ErrorAs(t, err, &rv)
	require.Len(t, rv.Result.Violations, 1)
	assert.Equal(t, "reference_integrity", rv.Result.Violations[0].Rule)
	assert.Equal(t, domain.EntitySample, rv.Result.Violations[0].Entity)
	assert.Contains(t, rv.Result.Violations[0].Message, "missing animal m2")

	// References created in the same transaction resolve.
	require.NoError(t, create(t, store,
		domain.Animal{Name: "m2"},
		domain.Sample{Name: "s1", AnimalName: "m2", TissueName: "liver"},
	))

	err = create(t, store, domain.Tracer{Name: "glucose-[13C6]", CompoundName: "glucose"})
	assert.Equal(t, []string{"reference_integrity"}, blockedBy(t, err))
}

func TestDefaultRulesEngineOrder(t *testing.T) {
	var names []string
	for _, r := range NewDefaultRulesEngine().Rules() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"compound_synonym_unique", "peak_group_single_representation", "reference_integrity"}, names)
}
