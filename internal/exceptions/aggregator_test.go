package exceptions

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/pkg/domain"
)

func TestAggregatorClassifiesTypedAndPlainErrors(t *testing.T) {
	agg := New()
	agg.Error(&RequiredHeadersError{Sheet: "Samples", Missing: []string{"Animal"}}, Location{Sheet: "Samples"})
	agg.Warn(fmt.Errorf("wrapped: %w", &MissingSampleError{File: "a.xlsx", Header: "blank_1"}), Location{File: "a.xlsx"})
	agg.Error(errors.New("boom"), Location{})

	entries := agg.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "RequiredHeadersError", entries[0].Class)
	assert.Equal(t, CategoryStructural, entries[0].Category)
	assert.Equal(t, "MissingSampleError", entries[1].Class)
	assert.Equal(t, "Error", entries[2].Class)

	errs, warnings := agg.Counts()
	assert.Equal(t, 2, errs)
	assert.Equal(t, 1, warnings)
	assert.True(t, agg.HasFatal())
}

func TestWarningsNeverBlock(t *testing.T) {
	agg := New()
	agg.Warn(&AssumedSampleHeaderMatchWarning{File: "f", Header: "h_pos", Sample: "h"}, Location{File: "f"})
	agg.Warnf(Location{}, "note %d", 1)
	assert.False(t, agg.HasFatal())
	assert.False(t, agg.Report().HasFatal())
}

func TestRollUpMissingSamplesPerFile(t *testing.T) {
	agg := New()
	agg.Error(&MissingSampleError{File: "a.xlsx", Header: "s1"}, Location{File: "a.xlsx"})
	agg.Error(&InvalidValueError{Column: "Age", Value: "x", Expected: "number"}, Location{Sheet: "Animals", Row: 2})
	agg.Error(&MissingSampleError{File: "a.xlsx", Header: "s2"}, Location{File: "a.xlsx"})
	agg.Error(&MissingSampleError{File: "b.xlsx", Header: "s3"}, Location{File: "b.xlsx"})

	agg.RollUp()

	entries := agg.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "AllMissingSamplesError", entries[0].Class)
	var summary *AllMissingSamplesError
	require.True(t, errors.As(entries[0].Err, &summary))
	assert.Equal(t, []string{"s1", "s2"}, summary.Headers)
	assert.Equal(t, "InvalidValueError", entries[1].Class)
	assert.Equal(t, "MissingSampleError", entries[2].Class, "single occurrences stay atomic")
}

func TestRollUpRequiredValuesKeepsHighestSeverity(t *testing.T) {
	agg := New()
	loc := Location{File: "study.xlsx", Sheet: "Samples", Column: "Tissue"}
	agg.Warn(&RequiredValueError{Sheet: "Samples", Column: "Tissue", Row: 3}, loc.WithRow(3))
	agg.Error(&RequiredValueError{Sheet: "Samples", Column: "Tissue", Row: 5}, loc.WithRow(5))

	agg.RollUp()

	entries := agg.ByClass("AllRequiredValuesError")
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SeverityError, entries[0].Severity)
	assert.Contains(t, entries[0].Message, "3, 5")
}

func TestSummarizeAndReportOrdering(t *testing.T) {
	agg := New()
	agg.Warn(&AssumedSampleHeaderMatchWarning{File: "f", Header: "a_pos", Sample: "a"}, Location{})
	for i := 0; i < 5; i++ {
		agg.Error(&RecordDoesNotExistError{Entity: domain.EntityAnimal, Key: fmt.Sprintf("m%d", i)}, Location{Row: i + 2})
	}

	summary := agg.Summarize(2)
	require.Len(t, summary, 2)
	assert.Equal(t, "AssumedSampleHeaderMatchWarning", summary[0].Class)
	assert.Equal(t, 5, summary[1].Errors)
	assert.Len(t, summary[1].Examples, 2)

	report := agg.Report()
	assert.Equal(t, 5, report.Errors)
	assert.Equal(t, 1, report.Warnings)
	assert.Equal(t, domain.SeverityError, report.Entries[0].Severity)
	assert.Equal(t, domain.SeverityWarning, report.Entries[5].Severity)
}

func TestMergeAppendsEntries(t *testing.T) {
	a, b := New(), New()
	a.Errorf(Location{}, "first")
	b.Errorf(Location{}, "second")
	a.Merge(b)
	a.Merge(nil)
	assert.Equal(t, 2, a.Len())
}

func TestLocationString(t *testing.T) {
	loc := Location{File: "study.xlsx", Sheet: "Animals", Row: 4, Column: "Age"}
	assert.Equal(t, "file study.xlsx, sheet Animals, row 4, column Age", loc.String())
	assert.Equal(t, "", Location{}.String())
}
