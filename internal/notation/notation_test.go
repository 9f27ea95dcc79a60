package notation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/internal/exceptions"
	"tracebase/pkg/domain"
)

func TestParseIsotopeStringBalance(t *testing.T) {
	labels, err := ParseIsotopeString("13C5")
	require.NoError(t, err)
	assert.Equal(t, []domain.Label{{Element: "C", MassNumber: 13, Count: 5}}, labels)

	cases := map[string]string{
		"13C": "label count",
		"C5":  "mass number",
	}
	for input, missing := range cases {
		_, err := ParseIsotopeString(input)
		var unbalanced *exceptions.ObservedIsotopeUnbalancedError
		require.True(t, errors.As(err, &unbalanced), "input %q: %v", input, err)
		assert.Equal(t, missing, unbalanced.Missing, input)
	}
}

func TestParseIsotopeStringCompoundForms(t *testing.T) {
	massFirst, err := ParseIsotopeString("13C15N-label-5-1")
	require.NoError(t, err)
	elementFirst, err := ParseIsotopeString("C13N15-label-5-1")
	require.NoError(t, err)
	assert.Equal(t, massFirst, elementFirst)
	assert.Equal(t, []domain.Label{
		{Element: "C", MassNumber: 13, Count: 5},
		{Element: "N", MassNumber: 15, Count: 1},
	}, massFirst)
	assert.Equal(t, "13C15N-label-5-1", RenderIsotopeString(massFirst))

	_, err = ParseIsotopeString("13C15N-label-5")
	var unbalanced *exceptions.ObservedIsotopeUnbalancedError
	require.True(t, errors.As(err, &unbalanced))
	assert.Equal(t, "label count", unbalanced.Missing)
}

func TestParseIsotopeStringParent(t *testing.T) {
	for _, input := range []string{"PARENT", "C12 PARENT", "c12 parent"} {
		labels, err := ParseIsotopeString(input)
		require.NoError(t, err, input)
		assert.Empty(t, labels, input)
	}
	assert.Equal(t, "PARENT", RenderIsotopeString(nil))
}

func TestParseIsotopeStringDupe(t *testing.T) {
	_, err := ParseIsotopeString("13C15N13C-label-2-1-1")
	var dupe *exceptions.IsotopeStringDupeError
	require.True(t, errors.As(err, &dupe), "got %v", err)
	assert.Equal(t, "C", dupe.Element)
	assert.Equal(t, 13, dupe.MassNumber)
	assert.Equal(t, "IsotopeStringDupe", dupe.Class())
}

func TestParseIsotopeStringRejectsUnknownElementAndGarbage(t *testing.T) {
	_, err := ParseIsotopeString("13X5")
	var unknown *exceptions.UnknownElementError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "X", unknown.Element)

	_, err = ParseIsotopeString("13C5?")
	var parsing *exceptions.IsotopeParsingError
	assert.True(t, errors.As(err, &parsing))

	_, err = ParseIsotopeString("13C-label-x")
	assert.True(t, errors.As(err, &parsing))
}

func TestTracerRoundTrip(t *testing.T) {
	spec, err := ParseTracer("valine-[13C5,15N1]")
	require.NoError(t, err)
	assert.Equal(t, "valine", spec.Compound)
	assert.Equal(t, []domain.Label{
		{Element: "C", MassNumber: 13, Count: 5},
		{Element: "N", MassNumber: 15, Count: 1},
	}, spec.Labels)
	assert.Equal(t, "valine-[13C5,15N1]", spec.Name())

	reordered, err := ParseTracer("valine-[15N1,13C5]")
	require.NoError(t, err)
	assert.Equal(t, spec.Name(), reordered.Name())
}

func TestTracerPositions(t *testing.T) {
	spec, err := ParseTracer("glucose-[2,1-13C2]")
	require.NoError(t, err)
	assert.Equal(t, "glucose-[1,2-13C2]", spec.Name())

	_, err = ParseTracer("glucose-[1,2,3-13C2]")
	var positions *exceptions.LabelPositionsError
	require.True(t, errors.As(err, &positions))

	_, err = ParseTracer("glucose-[1,1-13C2]")
	require.True(t, errors.As(err, &positions))

	deuterated, err := ParseTracer("glucose-[6,6-2H2]")
	require.NoError(t, err, "deuterium positions may repeat")
	assert.Equal(t, []int{6, 6}, deuterated.Labels[0].Positions)
}

func TestParseTracerErrors(t *testing.T) {
	var parsing *exceptions.TracerParsingError
	for _, input := range []string{"glucose", "glucose-[]", "glucose-[13C6;x]"} {
		_, err := ParseTracer(input)
		assert.True(t, errors.As(err, &parsing), input)
	}
	_, err := ParseTracer("glucose-[13C6,13C1]")
	var dupe *exceptions.IsotopeStringDupeError
	assert.True(t, errors.As(err, &dupe))
}

func TestInfusateRoundTripAndSigFigs(t *testing.T) {
	spec, err := ParseInfusate("BCAAs {valine-[13C5,15N1][20];leucine-[13C6,15N1][24.1234]}")
	require.NoError(t, err)
	assert.Equal(t, "BCAAs", spec.GroupName)
	require.Len(t, spec.Tracers, 2)
	assert.Equal(t, 24.1234, spec.Tracers[1].Concentration, "full precision is kept")
	assert.Equal(t, "BCAAs {leucine-[13C6,15N1][24.1];valine-[13C5,15N1][20]}", spec.Name())

	single, err := ParseInfusate("lactate-[13C3][148.88]")
	require.NoError(t, err)
	assert.Equal(t, "", single.GroupName)
	assert.Equal(t, "lactate-[13C3][149]", single.Name())
}

func TestParseInfusateErrors(t *testing.T) {
	var parsing *exceptions.InfusateParsingError
	for _, input := range []string{"", "BCAAs {valine-[13C5][20]", "valine-[13C5]", "valine-[13C5][abc]", "a {x-[13C1][1];}"} {
		_, err := ParseInfusate(input)
		assert.True(t, errors.As(err, &parsing), "input %q: %v", input, err)
	}
}

func TestFormatSigFigs(t *testing.T) {
	cases := map[float64]string{
		1234:    "1230",
		148.88:  "149",
		0.5:     "0.5",
		0.12345: "0.123",
		100:     "100",
		999.6:   "1000",
		0:       "0",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatSigFigs(in, 3), "%v", in)
	}
}

func TestParseSequenceName(t *testing.T) {
	ref, err := ParseSequenceName("Xianfeng Zeng, polar-HILIC-25-min, QE2, 2021-04-23")
	require.NoError(t, err)
	assert.Equal(t, "QE2", ref.Instrument)
	assert.Equal(t, time.Date(2021, 4, 23, 0, 0, 0, 0, time.UTC), ref.Date)
	assert.Equal(t, "Xianfeng Zeng, polar-HILIC-25-min, QE2, 2021-04-23", ref.Name())

	for _, input := range []string{"a, b, c", "a, b, c, 04/23/2021", "a, , c, 2021-04-23"} {
		_, err := ParseSequenceName(input)
		var format *exceptions.SequenceNameFormatError
		assert.True(t, errors.As(err, &format), input)
	}
}
