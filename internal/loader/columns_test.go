package loader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/internal/exceptions"
	"tracebase/internal/workbook"
)

func TestConvertTypes(t *testing.T) {
	v, err := convert(Column{Header: "n", Type: TypeInteger}, "3.0")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = convert(Column{Header: "n", Type: TypeInteger}, "3.5")
	var invalid *exceptions.InvalidValueError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "3.5", invalid.Value)

	v, err = convert(Column{Header: "skip", Type: TypeBoolean}, "Skip")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = convert(Column{Header: "sex", Type: TypeEnum, Allowed: []string{"male", "female"}}, "Female")
	require.NoError(t, err)
	assert.Equal(t, "female", v)

	_, err = convert(Column{Header: "sex", Type: TypeEnum, Allowed: []string{"male", "female"}}, "other")
	assert.Error(t, err)

	v, err = convert(Column{Header: "l", Type: TypeList}, " a ; ;b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)

	v, err = convert(Column{Header: "d", Type: TypeDate}, "44309")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 4, 23, 0, 0, 0, 0, time.UTC), v)

	v, err = convert(Column{Header: "d", Type: TypeDate}, "4/23/2021")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 4, 23, 0, 0, 0, 0, time.UTC), v)
}

func TestCheckHeadersReportsEveryStructuralProblem(t *testing.T) {
	sheet := workbook.NewSheet(SheetSamples, []string{ColSample, ColSample, "Colour"})
	errs := checkHeaders(sheet, Schemas[SheetSamples])
	require.Len(t, errs, 3)

	var dupes *exceptions.DuplicateHeadersError
	require.ErrorAs(t, errs[0], &dupes)
	assert.Equal(t, []string{ColSample}, dupes.Duplicates)

	var missing *exceptions.RequiredHeadersError
	require.ErrorAs(t, errs[1], &missing)
	assert.Equal(t, []string{ColTissue, ColAnimal}, missing.Missing)

	var unknown *exceptions.UnknownHeadersError
	require.ErrorAs(t, errs[2], &unknown)
	assert.Equal(t, []string{"Colour"}, unknown.Unknown)
}

func TestParseRowRequiresValuesOnlyForPresentOrRequiredHeaders(t *testing.T) {
	schema := Schema{Sheet: "S", Columns: []Column{
		{Header: "a", HeaderRequired: true, ValueRequired: true},
		{Header: "b", ValueRequired: true},
		{Header: "c", Type: TypeNumber},
	}}
	agg := exceptions.New()
	f, ok := parseRow(schema, workbook.Row{Number: 2, Values: map[string]string{"a": "x", "c": "1.5"}}, exceptions.Location{Sheet: "S"}, agg)
	require.True(t, ok)
	assert.Equal(t, "x", f.Str("a"))
	assert.Equal(t, 1.5, *f.Num("c"))
	assert.Nil(t, f.Int("c"))

	_, ok = parseRow(schema, workbook.Row{Number: 3, Values: map[string]string{"a": " ", "b": "", "c": "n/a"}}, exceptions.Location{Sheet: "S"}, agg)
	assert.False(t, ok)
	require.Equal(t, 3, agg.Len())
	entries := agg.Entries()
	assert.Equal(t, "RequiredValueError", entries[0].Class)
	assert.Equal(t, "RequiredValueError", entries[1].Class)
	assert.Equal(t, "InvalidValueError", entries[2].Class)
	assert.Equal(t, "c", entries[2].Location.Column)
}

func TestDuplicateRowsSkipsEveryOccurrence(t *testing.T) {
	sheet := workbook.NewSheet(SheetTissues, []string{ColTissue},
		[]string{"liver"}, []string{"brain"}, []string{"liver"})
	agg := exceptions.New()
	skip := duplicateRows(sheet, Schemas[SheetTissues], exceptions.Location{Sheet: SheetTissues}, agg)

	assert.Equal(t, map[int]bool{2: true, 4: true}, skip)
	require.Equal(t, 1, agg.Len())
	var dup *exceptions.DuplicateValuesError
	require.ErrorAs(t, agg.Entries()[0].Err, &dup)
	assert.Equal(t, []int{2, 4}, dup.Rows)
}
