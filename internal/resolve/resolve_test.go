package resolve

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/internal/exceptions"
	"tracebase/pkg/domain"
)

type mapView map[domain.EntityType]map[string]domain.Record

func (v mapView) put(rec domain.Record) {
	bucket, ok := v[rec.Entity()]
	if !ok {
		bucket = make(map[string]domain.Record)
		v[rec.Entity()] = bucket
	}
	bucket[rec.Key()] = rec
}

func (v mapView) Find(entity domain.EntityType, key string) (domain.Record, bool) {
	rec, ok := v[entity][key]
	return rec, ok
}

func (v mapView) List(entity domain.EntityType) []domain.Record {
	keys := make([]string, 0, len(v[entity]))
	for k := range v[entity] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, v[entity][k])
	}
	return out
}

const (
	seqA = "Xianfeng Zeng, polar-HILIC-25-min, QE2, 2021-04-23"
	seqB = "Xianfeng Zeng, polar-HILIC-25-min, QE2, 2021-05-01"
)

func sequenceView() mapView {
	v := mapView{}
	v.put(domain.Sequence{Operator: "Xianfeng Zeng", LCProtocol: "polar-HILIC-25-min", Instrument: "QE2", Date: time.Date(2021, 4, 23, 0, 0, 0, 0, time.UTC)})
	v.put(domain.Sequence{Operator: "Xianfeng Zeng", LCProtocol: "polar-HILIC-25-min", Instrument: "QE2", Date: time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)})
	return v
}

func TestStripScanLabels(t *testing.T) {
	cases := map[string]string{
		"Mouse1_Q_pos":       "Mouse1_Q",
		"Mouse1_Q-NEG":       "Mouse1_Q",
		"Mouse1_Q_pos_scan2": "Mouse1_Q",
		"Mouse1_Q":           "Mouse1_Q",
		"_pos":               "_pos",
		"position":           "position",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripScanLabels(in), in)
	}
}

func TestScanLabelHeadersResolveToSingleSample(t *testing.T) {
	m := NewSampleMatcher([]string{"Mouse1_Q", "Mouse2_Q"})
	for _, header := range []string{"Mouse1_Q_pos", "Mouse1_Q_neg"} {
		match, err := m.Match("peaks.xlsx", header)
		require.NoError(t, err, header)
		assert.Equal(t, "Mouse1_Q", match.Sample)
		assert.True(t, match.Assumed)
	}
	exact, err := m.Match("peaks.xlsx", "Mouse2_Q")
	require.NoError(t, err)
	assert.False(t, exact.Assumed)
}

func TestAmbiguousAndMissingHeaders(t *testing.T) {
	m := NewSampleMatcher([]string{"s1_pos", "s1_neg", "s2"})
	_, err := m.Match("f", "s1")
	var multiple *exceptions.MultipleRecordsReturnedError
	require.True(t, errors.As(err, &multiple))
	assert.Equal(t, []string{"s1_neg", "s1_pos"}, multiple.Matches)

	_, err = m.Match("f", "blank_1")
	var missing *exceptions.MissingSampleError
	assert.True(t, errors.As(err, &missing))
}

func TestExplicitSequenceBeatsFileDefault(t *testing.T) {
	r := NewSequenceResolver(sequenceView(), "")
	r.SetFileDefault("run/peaks.xlsx", seqB)

	res, err := r.Resolve(seqA, "run/peaks.xlsx", "run/s1.mzXML")
	require.NoError(t, err)
	assert.Equal(t, seqA, res.Sequence)
	assert.Equal(t, SourceExplicit, res.Source)

	res, err = r.Resolve("", "run/peaks.xlsx", "run/s1.mzXML")
	require.NoError(t, err)
	assert.Equal(t, seqB, res.Sequence)
	assert.Equal(t, SourceFileDefault, res.Source)
}

func TestMissingDefaultSequenceIsNamed(t *testing.T) {
	r := NewSequenceResolver(mapView{}, "")
	r.SetFileDefault("peaks.xlsx", seqA)
	_, err := r.Resolve("", "peaks.xlsx", "")
	var notFound *exceptions.DefaultSequenceNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, seqA, notFound.Sequence)
}

func TestDirectoryInference(t *testing.T) {
	r := NewSequenceResolver(sequenceView(), "")
	r.SetFileDefault("study/neg/peaks_neg.xlsx", "")
	r.Observe("study/neg/peaks_neg.xlsx", seqA)

	res, err := r.Resolve("", "other.xlsx", "study/neg/raw/s1_neg.mzXML")
	require.NoError(t, err)
	assert.Equal(t, seqA, res.Sequence)
	assert.Equal(t, SourceDirectory, res.Source)

	_, err = r.Resolve("", "other.xlsx", "elsewhere/s9.mzXML")
	var unknown *exceptions.MzxmlSequenceUnknownError
	assert.True(t, errors.As(err, &unknown))
}

func TestColocatedAnnotationsNeedStudyDefault(t *testing.T) {
	r := NewSequenceResolver(sequenceView(), "")
	r.Observe("run/a.xlsx", seqA)
	r.Observe("run/b.xlsx", seqB)

	_, err := r.Resolve("", "x.xlsx", "run/s1.mzXML")
	var colocated *exceptions.MzxmlColocatedWithMultipleAnnotError
	require.True(t, errors.As(err, &colocated))
	assert.Equal(t, []string{seqA, seqB}, colocated.Sequences)

	withDefault := NewSequenceResolver(sequenceView(), seqB)
	withDefault.Observe("run/a.xlsx", seqA)
	withDefault.Observe("run/b.xlsx", seqB)
	res, err := withDefault.Resolve("", "x.xlsx", "run/s1.mzXML")
	require.NoError(t, err)
	assert.Equal(t, seqB, res.Sequence)
	require.Len(t, res.Warnings, 1)
	assert.True(t, errors.As(res.Warnings[0], &colocated))
	assert.Equal(t, seqB, colocated.ResolvedTo)
}

func TestExplicitSequenceErrors(t *testing.T) {
	r := NewSequenceResolver(sequenceView(), "")
	_, err := r.Resolve("not a sequence", "f", "")
	var format *exceptions.SequenceNameFormatError
	assert.True(t, errors.As(err, &format))

	_, err = r.Resolve("Someone, lc, QE2, 2020-01-01", "f", "")
	var missing *exceptions.RecordDoesNotExistError
	assert.True(t, errors.As(err, &missing))
}

func TestCompoundIndex(t *testing.T) {
	v := mapView{}
	v.put(domain.Compound{Name: "citrate", Synonyms: []string{"citric acid"}})
	v.put(domain.Compound{Name: "isocitrate", Synonyms: []string{"shared"}})
	v.put(domain.Compound{Name: "aconitate", Synonyms: []string{"shared"}})
	idx := NewCompoundIndex(v)

	name, err := idx.Resolve("Citric Acid")
	require.NoError(t, err)
	assert.Equal(t, "citrate", name)

	_, err = idx.Resolve("shared")
	var multiple *exceptions.MultipleRecordsReturnedError
	assert.True(t, errors.As(err, &multiple))

	_, err = idx.Resolve("glucose")
	var missing *exceptions.RecordDoesNotExistError
	assert.True(t, errors.As(err, &missing))
}

func TestLookup(t *testing.T) {
	v := mapView{}
	v.put(domain.Tissue{Name: "liver"})
	tissue, err := Lookup[domain.Tissue](v, "liver")
	require.NoError(t, err)
	assert.Equal(t, "liver", tissue.Name)

	_, err = Lookup[domain.Tissue](v, "brain")
	var missing *exceptions.RecordDoesNotExistError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, domain.EntityTissue, missing.Entity)
}
