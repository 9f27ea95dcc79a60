package conflicts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/internal/exceptions"
)

func TestDetectorStates(t *testing.T) {
	d := NewDetector()
	compounds := []string{"citrate", "isocitrate"}
	assert.Equal(t, Unseen, d.State(compounds, "s1"))

	d.Observe("neg.xlsx", compounds, []string{"s1", "s2"})
	assert.Equal(t, SingleRepresentation, d.State(compounds, "s1"))

	d.Observe("pos.xlsx", []string{"Isocitrate", "Citrate"}, []string{"s2", "s3"})
	assert.Equal(t, SingleRepresentation, d.State(compounds, "s1"))
	assert.Equal(t, ConflictingRepresentations, d.State(compounds, "s2"))
	assert.Equal(t, []string{"neg.xlsx", "pos.xlsx"}, d.Files(compounds, "s2"))
	assert.Equal(t, "conflicting", d.State(compounds, "s2").String())
}

func TestDetectorConflictRowsPerFileSet(t *testing.T) {
	d := NewDetector()
	d.Observe("a.xlsx", []string{"lactate"}, []string{"s1", "s2", "s3"})
	d.Observe("b.xlsx", []string{"lactate"}, []string{"s1", "s2"})
	d.Observe("c.xlsx", []string{"lactate"}, []string{"s3"})
	d.Observe("a.xlsx", []string{"alanine"}, []string{"s1"})

	rows := d.Conflicts()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"a.xlsx", "b.xlsx"}, rows[0].Files)
	assert.Equal(t, []string{"s1", "s2"}, rows[0].Samples)
	assert.Equal(t, []string{"a.xlsx", "c.xlsx"}, rows[1].Files)
	assert.Equal(t, []string{"s3"}, rows[1].Samples)
}

func TestSheetRendering(t *testing.T) {
	sheet := Sheet([]Conflict{{
		Compounds: []string{"citrate", "isocitrate"},
		Files:     []string{"a.xlsx", "b.xlsx"},
		Samples:   []string{"s1", "s2", "s3", "s4"},
	}})
	require.Len(t, sheet.Rows, 1)
	row := sheet.Rows[0]
	assert.Equal(t, "citrate;isocitrate", row.Get(ColConflict))
	assert.Equal(t, "4", row.Get(ColSampleCount))
	assert.Equal(t, "s1, s2, s3", row.Get(ColExampleSamples))
	assert.Equal(t, "s1;s2;s3;s4", row.Get(ColCommonSamples))
}

func TestResolutionsDedupReorderedCompounds(t *testing.T) {
	res, errs := NewResolutions([]Selection{
		{Row: 2, Compounds: []string{"citrate", "isocitrate"}, Samples: []string{"s1", "s2"}, Selected: "neg.xlsx"},
		{Row: 3, Compounds: []string{"Isocitrate", "citrate"}, Samples: []string{"s2", "s1"}, Selected: "neg.xlsx"},
	})
	assert.Empty(t, errs)
	assert.Equal(t, 1, res.Len())
	file, ok := res.Selected([]string{"isocitrate", "citrate"}, "s2")
	require.True(t, ok)
	assert.Equal(t, "neg.xlsx", file)
}

func TestResolutionsDuplicateFillsMissingSelection(t *testing.T) {
	res, errs := NewResolutions([]Selection{
		{Row: 2, Compounds: []string{"citrate"}, Samples: []string{"s1"}},
		{Row: 3, Compounds: []string{"citrate"}, Samples: []string{"s1"}, Selected: "pos.xlsx"},
	})
	assert.Empty(t, errs)
	file, ok := res.Selected([]string{"citrate"}, "s1")
	assert.True(t, ok)
	assert.Equal(t, "pos.xlsx", file)
}

func TestResolutionsPartialOverlapIsRejected(t *testing.T) {
	res, errs := NewResolutions([]Selection{
		{Row: 2, Compounds: []string{"citrate", "isocitrate"}, Samples: []string{"s1", "s2"}, Selected: "neg.xlsx"},
		{Row: 3, Compounds: []string{"isocitrate", "citrate"}, Samples: []string{"s2", "s3"}, Selected: "pos.xlsx"},
	})
	require.Len(t, errs, 1)
	var overlap *exceptions.PeakGroupConflictPartialOverlapError
	require.True(t, errors.As(errs[0], &overlap))
	assert.Equal(t, []int{2, 3}, overlap.Rows)
	assert.Equal(t, []string{"s2"}, overlap.Shared)

	_, ok := res.Selected([]string{"citrate", "isocitrate"}, "s3")
	assert.False(t, ok, "rejected rows are not applied")
}

func TestResolutionsUnresolvedAndContradictory(t *testing.T) {
	_, errs := NewResolutions([]Selection{
		{Row: 2, Compounds: []string{"lactate"}, Samples: []string{"s1"}},
		{Row: 3, Compounds: []string{"alanine"}, Samples: []string{"s1"}, Selected: "a.xlsx"},
		{Row: 4, Compounds: []string{"alanine"}, Samples: []string{"s1"}, Selected: "b.xlsx"},
	})
	require.Len(t, errs, 2)
	var dup *exceptions.DuplicateValuesError
	assert.True(t, errors.As(errs[0], &dup))
	var unresolved *exceptions.UnresolvedPeakGroupConflictError
	assert.True(t, errors.As(errs[1], &unresolved))
	assert.Equal(t, []string{"lactate"}, unresolved.Compounds)
}
