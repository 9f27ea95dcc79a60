package peakannot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/internal/exceptions"
	"tracebase/internal/workbook"
	"tracebase/pkg/domain"
)

var isoHeaders = []string{"medMz", "medRt", "isotopeLabel", "compound", "formula", "Mouse1_Q_pos", "Mouse2_Q_pos"}

func accucorWorkbook() *workbook.Workbook {
	original := workbook.NewSheet("Original",
		[]string{"label", "medMz", "medRt", "isotopeLabel", "compound", "formula", "s1", "s2"},
		[]string{"", "89.02", "7.9", "C12 PARENT", "lactate", "C3H6O3", "1000", "900"},
		[]string{"", "92.03", "7.9", "C13-label-3", "lactate", "C3H6O3", "50", "40"},
	)
	corrected := workbook.NewSheet("Corrected",
		[]string{"Compound", "C_Label", "s1", "s2"},
		[]string{"lactate", "0", "990", "880"},
		[]string{"lactate", "3", "49.5", ""},
	)
	return workbook.New("lactate.xlsx", original, corrected)
}

func TestDetectAccucorWorkbook(t *testing.T) {
	f, err := Detect(accucorWorkbook())
	require.NoError(t, err)
	assert.Equal(t, FormatAccucor, f)
}

func TestDetectIsocorrAndIsoautocorrBySheetName(t *testing.T) {
	isocorr := workbook.New("iso.xlsx", workbook.NewSheet("absolte", isoHeaders))
	f, err := Detect(isocorr)
	require.NoError(t, err)
	assert.Equal(t, FormatIsocorr, f)

	auto := workbook.New("auto.xlsx",
		workbook.NewSheet("original", isoHeaders),
		workbook.NewSheet("cor_abs", isoHeaders),
	)
	f, err = Detect(auto)
	require.NoError(t, err)
	assert.Equal(t, FormatIsoautocorr, f)
}

func TestDetectDelimitedIsAmbiguousWithoutSheetNames(t *testing.T) {
	wb, err := workbook.Decode("peaks.csv", []byte("medMz,medRt,isotopeLabel,compound,formula,s1\n1,2,C12 PARENT,lactate,C3H6O3,5\n"))
	require.NoError(t, err)

	_, err = Detect(wb)
	var ambiguous *exceptions.AmbiguousFormatError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, []string{"isoautocorr", "isocorr"}, ambiguous.Candidates)

	f, err := Resolve(wb, "IsoCorr")
	require.NoError(t, err)
	assert.Equal(t, FormatIsocorr, f)

	_, err = Resolve(wb, "accucor")
	var unknown *exceptions.UnknownFormatError
	assert.True(t, errors.As(err, &unknown))
}

func TestDetectUnknown(t *testing.T) {
	_, err := Detect(workbook.New("x.xlsx", workbook.NewSheet("Sheet1", []string{"a", "b"})))
	var unknown *exceptions.UnknownFormatError
	assert.True(t, errors.As(err, &unknown))
}

func TestNormalizeAccucorJoinsOriginal(t *testing.T) {
	agg := exceptions.New()
	table, err := Normalize(accucorWorkbook(), FormatAccucor, agg)
	require.NoError(t, err)
	assert.Zero(t, agg.Len())
	assert.Equal(t, []string{"s1", "s2"}, table.Samples)
	require.Len(t, table.Rows, 2)

	parent := table.Rows[0]
	assert.Empty(t, parent.Labels)
	assert.Equal(t, "PARENT", parent.IsotopeLabel)
	assert.Equal(t, "C3H6O3", parent.Formula)
	require.NotNil(t, parent.MedMz)
	assert.InDelta(t, 89.02, *parent.MedMz, 1e-9)
	assert.Equal(t, 1000.0, parent.Raw["s1"])

	labeled := table.Rows[1]
	assert.Equal(t, []domain.Label{{Element: "C", MassNumber: 13, Count: 3}}, labeled.Labels)
	assert.Equal(t, 49.5, labeled.Corrected["s1"])
	assert.Equal(t, 0.0, labeled.Corrected["s2"])
	assert.Equal(t, 40.0, labeled.Raw["s2"])
}

func TestNormalizeIsocorrRecordsRowProblems(t *testing.T) {
	sheet := workbook.NewSheet("absolte", isoHeaders,
		[]string{"146.05", "9.1", "C13N15-label-5-1", "glutamine", "C5H10N2O3", "10", "20"},
		[]string{"146.05", "9.1", "13C", "glutamine", "C5H10N2O3", "10", "20"},
		[]string{"191.02", "12.0", "C12 PARENT", "citrate/isocitrate", "C6H8O7", "x", "1"},
	)
	agg := exceptions.New()
	table, err := Normalize(workbook.New("iso.xlsx", sheet), FormatIsocorr, agg)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "13C15N-label-5-1", table.Rows[0].IsotopeLabel)
	assert.Equal(t, []string{"Mouse1_Q_pos", "Mouse2_Q_pos"}, table.Samples)

	require.Equal(t, 2, agg.Len())
	entries := agg.Entries()
	assert.Equal(t, "ObservedIsotopeUnbalancedError", entries[0].Class)
	assert.Equal(t, 3, entries[0].Location.Row)
	assert.Equal(t, "InvalidValueError", entries[1].Class)
}

func TestNormalizeMissingHeaders(t *testing.T) {
	wb := workbook.New("bad.xlsx", workbook.NewSheet("Corrected", []string{"Compound", "s1"}))
	_, err := Normalize(wb, FormatAccucor, exceptions.New())
	var missing *exceptions.RequiredHeadersError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"<element>_Label"}, missing.Missing)
}

func TestSplitCompoundsAndTableCompounds(t *testing.T) {
	assert.Equal(t, []string{"citrate", "isocitrate"}, SplitCompounds("citrate / isocitrate"))
	table := &Table{Rows: []Row{{Compound: "a"}, {Compound: "b"}, {Compound: "a"}}}
	assert.Equal(t, []string{"a", "b"}, table.Compounds())
}
