package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/internal/conflicts"
	"tracebase/internal/infra/persistence/memory"
	"tracebase/internal/workbook"
)

func startRequest(draft *workbook.Workbook) StartRequest {
	return StartRequest{
		StudyDoc: draft,
		AnnotationFiles: []AnnotationFile{
			isoFile("a/lactate.xlsx", []string{"Mouse1_Q"}, []string{"1000"}, []string{"50"}),
			isoFile("b/lactate.xlsx", []string{"Mouse1_Q_pos"}, []string{"1010"}, []string{"55"}),
		},
		DefaultSequence: testSequence,
	}
}

func TestStartFillsAnnotationSheetsAndReportsConflicts(t *testing.T) {
	l := New(memory.NewStore(nil), Options{})
	tmpl, report, err := l.Start(context.Background(), startRequest(studyDoc(metadataSheets()...)))
	require.NoError(t, err)

	require.Len(t, tmpl.Conflicts, 1)
	c := tmpl.Conflicts[0]
	assert.Equal(t, []string{"lactate"}, c.Compounds)
	assert.Equal(t, []string{"a/lactate.xlsx", "b/lactate.xlsx"}, c.Files)
	assert.Equal(t, []string{"Mouse1_Q"}, c.Samples)
	assert.Empty(t, c.Selected)
	assert.Equal(t, []string{"UnresolvedPeakGroupConflictError"}, classes(report))

	files, ok := tmpl.Workbook.Sheet(SheetAnnotationFiles)
	require.True(t, ok)
	assert.Equal(t, []string{"a/lactate.xlsx", "b/lactate.xlsx"}, files.Column(ColAnnotationFile))
	assert.Equal(t, []string{"isocorr", "isocorr"}, files.Column(ColFileFormat))
	assert.Equal(t, []string{testSequence, testSequence}, files.Column(ColDefaultSequence))

	details, ok := tmpl.Workbook.Sheet(SheetAnnotationDets)
	require.True(t, ok)
	assert.Equal(t, []string{"Mouse1_Q", "Mouse1_Q_pos"}, details.Column(ColSampleDataHeader))
	assert.Equal(t, []string{"Mouse1_Q", "Mouse1_Q"}, details.Column(ColSampleName))

	samples, ok := tmpl.Workbook.Sheet(SheetSamples)
	require.True(t, ok)
	assert.Len(t, samples.Rows, 2, "draft sheets are carried over")
	_, ok = tmpl.Workbook.Sheet(SheetConflicts)
	assert.True(t, ok)
}

func TestStartKeepsDraftSelections(t *testing.T) {
	sheets := append(metadataSheets(),
		workbook.NewSheet(SheetConflicts, conflicts.Headers,
			[]string{"lactate", "b/lactate.xlsx", "1", "Mouse1_Q", "Mouse1_Q"}),
		detailsSheet([]string{"Mouse1_Q", "Mouse1_Q_pos", "", "b/lactate.xlsx", "", ""}),
	)
	l := New(memory.NewStore(nil), Options{})
	tmpl, report, err := l.Start(context.Background(), startRequest(studyDoc(sheets...)))
	require.NoError(t, err)

	assert.Zero(t, report.Errors, "%v", report.Entries)
	require.Len(t, tmpl.Conflicts, 1)
	assert.Equal(t, "b/lactate.xlsx", tmpl.Conflicts[0].Selected)

	sheet, ok := tmpl.Workbook.Sheet(SheetConflicts)
	require.True(t, ok)
	assert.Equal(t, []string{"b/lactate.xlsx"}, sheet.Column(conflicts.ColSelected))
}
