package core

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/internal/blob"
	"tracebase/internal/infra/persistence/memory"
	"tracebase/internal/loader"
	"tracebase/internal/metrics"
	"tracebase/internal/workbook"
	"tracebase/pkg/domain"
)

func submission(extra ...*workbook.Sheet) *loader.Submission {
	sheets := []*workbook.Sheet{
		workbook.NewSheet(loader.SheetStudy, []string{loader.ColStudyName},
			[]string{"Obesity"}),
		workbook.NewSheet(loader.SheetCompounds, []string{loader.ColCompound, loader.ColHMDBID, loader.ColFormula, loader.ColSynonyms},
			[]string{"lactate", "HMDB0000190", "C3H6O3", "L-lactic acid"},
			[]string{"citrate", "HMDB0000094", "C6H8O7", ""},
		),
		workbook.NewSheet(loader.SheetTissues, []string{loader.ColTissue},
			[]string{"liver"}),
		workbook.NewSheet(loader.SheetAnimals, []string{loader.ColAnimalName, loader.ColStudy},
			[]string{"Mouse1", "Obesity"}),
	}
	sheets = append(sheets, extra...)
	return &loader.Submission{StudyDoc: workbook.New("study.xlsx", sheets...)}
}

func badSamples() *workbook.Sheet {
	return workbook.NewSheet(loader.SheetSamples, []string{loader.ColSample, loader.ColTissue, loader.ColAnimal},
		[]string{"Mouse1_Q", "liver", "Mouse1"},
		[]string{"Mouse9_Q", "liver", "Mouse9"},
	)
}

func TestValidateCommitsNothing(t *testing.T) {
	svc := NewInMemoryService(NewDefaultRulesEngine())
	report, err := svc.Validate(context.Background(), submission())
	require.NoError(t, err)
	assert.False(t, report.HasFatal(), "%+v", report.Entries)

	store := svc.Store().(*memory.Store)
	assert.Zero(t, store.Count(domain.EntityCompound))
	assert.Zero(t, store.Count(domain.EntityStudy))
}

func TestLoadCommitsCleanSubmission(t *testing.T) {
	svc := NewInMemoryService(NewDefaultRulesEngine())
	report, err := svc.Load(context.Background(), submission())
	require.NoError(t, err)
	require.False(t, report.HasFatal(), "%+v", report.Entries)

	store := svc.Store().(*memory.Store)
	assert.Equal(t, 2, store.Count(domain.EntityCompound))
	assert.Equal(t, 1, store.Count(domain.EntityAnimal))

	// Reloading the same submission is a no-op.
	report, err = svc.Load(context.Background(), submission())
	require.NoError(t, err)
	assert.False(t, report.HasFatal(), "%+v", report.Entries)
	assert.Equal(t, 2, store.Count(domain.EntityCompound))
}

func TestLoadRejectsSubmissionWithErrors(t *testing.T) {
	svc := NewInMemoryService(NewDefaultRulesEngine())
	report, err := svc.Load(context.Background(), submission(badSamples()))
	require.NoError(t, err)
	assert.True(t, report.HasFatal())

	store := svc.Store().(*memory.Store)
	assert.Zero(t, store.Count(domain.EntityCompound))
	assert.Zero(t, store.Count(domain.EntitySample))
}

func TestValidateSeesExistingState(t *testing.T) {
	svc := NewInMemoryService(NewDefaultRulesEngine())
	_, err := svc.Load(context.Background(), submission())
	require.NoError(t, err)

	samples := workbook.NewSheet(loader.SheetSamples, []string{loader.ColSample, loader.ColTissue, loader.ColAnimal},
		[]string{"Mouse1_Q", "liver", "Mouse1"})
	doc := workbook.New("samples.xlsx", samples)
	report, err := svc.Validate(context.Background(), &loader.Submission{StudyDoc: doc})
	require.NoError(t, err)
	assert.False(t, report.HasFatal(), "%+v", report.Entries)
	assert.Zero(t, svc.Store().(*memory.Store).Count(domain.EntitySample))
}

func TestServiceArchivesAndRecordsMetrics(t *testing.T) {
	store := blob.NewMemory()
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	require.NoError(t, err)
	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithArchiver(blob.NewArchiver(store)),
		WithMetrics(rec),
		WithLoaderOptions(loader.Options{SuppressDependentErrors: true}),
	)

	report, err := svc.Validate(context.Background(), submission(badSamples()))
	require.NoError(t, err)
	require.True(t, report.HasFatal())

	infos, err := store.List(context.Background(), "submissions/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.True(t, strings.HasSuffix(infos[0].Key, "/report.json"))
	assert.True(t, strings.HasSuffix(infos[1].Key, "/study/study.xlsx"))
	assert.Equal(t, "Obesity", infos[1].Metadata["study"])
	assert.Equal(t, "validate", infos[1].Metadata["operation"])

	id := strings.Split(infos[0].Key, "/")[1]
	archived, err := blob.NewArchiver(store).Report(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, report.Errors, archived.Errors)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tracebase_operation_duration_seconds")
	assert.Contains(t, names, "tracebase_exceptions_total")
}

func TestOpenPersistentStore(t *testing.T) {
	store, closeFn, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: StorageMemory}, NewDefaultRulesEngine())
	require.NoError(t, err)
	require.NoError(t, closeFn())
	assert.Len(t, store.RulesEngine().Rules(), 3)

	_, _, err = OpenPersistentStore(context.Background(), StorageConfig{Driver: "cassandra"}, nil)
	assert.ErrorContains(t, err, "unknown storage driver")
}
