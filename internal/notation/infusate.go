package notation

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"tracebase/internal/exceptions"
)

var infusateItemPattern = regexp.MustCompile(`^(.+\])\[([^\[\]]+)\]$`)

// ConcentrationSigFigs is the precision of concentrations in infusate names.
const ConcentrationSigFigs = 3

// InfusateTracer is one tracer of a parsed infusate name.
type InfusateTracer struct {
	Tracer        TracerSpec
	Concentration float64
}

// InfusateSpec is a parsed infusate name.
type InfusateSpec struct {
	GroupName string
	Tracers   []InfusateTracer
}

// Name renders the canonical infusate display name.
func (s InfusateSpec) Name() string {
	names := make([]string, len(s.Tracers))
	concs := make([]float64, len(s.Tracers))
	for i, t := range s.Tracers {
		names[i] = t.Tracer.Name()
		concs[i] = t.Concentration
	}
	return RenderInfusate(s.GroupName, names, concs)
}

// ParseInfusate parses "[group ]{tracer[conc];tracer[conc]}". Braces are
// optional when there is no group name.
func ParseInfusate(input string) (InfusateSpec, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return InfusateSpec{}, &exceptions.InfusateParsingError{Input: input, Reason: "empty infusate name"}
	}
	var spec InfusateSpec
	body := s
	if open := strings.Index(s, "{"); open >= 0 {
		if !strings.HasSuffix(s, "}") {
			return InfusateSpec{}, &exceptions.InfusateParsingError{Input: input, Reason: "unterminated tracer list, expected closing \"}\""}
		}
		spec.GroupName = strings.TrimSpace(s[:open])
		body = s[open+1 : len(s)-1]
	} else if strings.Contains(s, "}") {
		return InfusateSpec{}, &exceptions.InfusateParsingError{Input: input, Reason: "unexpected \"}\" without opening \"{\""}
	}
	for _, item := range strings.Split(body, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			return InfusateSpec{}, &exceptions.InfusateParsingError{Input: input, Reason: "empty tracer entry"}
		}
		m := infusateItemPattern.FindStringSubmatch(item)
		if m == nil {
			return InfusateSpec{}, &exceptions.InfusateParsingError{Input: input, Reason: "expected \"tracer[concentration]\" but found " + strconv.Quote(item)}
		}
		tracer, err := ParseTracer(m[1])
		if err != nil {
			return InfusateSpec{}, err
		}
		conc, err := strconv.ParseFloat(strings.TrimSpace(m[2]), 64)
		if err != nil || conc < 0 {
			return InfusateSpec{}, &exceptions.InfusateParsingError{Input: input, Reason: "invalid concentration " + strconv.Quote(m[2])}
		}
		spec.Tracers = append(spec.Tracers, InfusateTracer{Tracer: tracer, Concentration: conc})
	}
	return spec, nil
}

// RenderInfusate renders a display name from parallel tracer name and
// concentration slices. Tracers are ordered by name and concentrations are
// rounded to ConcentrationSigFigs significant figures.
func RenderInfusate(group string, tracerNames []string, concentrations []float64) string {
	idx := make([]int, len(tracerNames))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return tracerNames[idx[a]] < tracerNames[idx[b]] })
	items := make([]string, len(idx))
	for i, j := range idx {
		items[i] = tracerNames[j] + "[" + FormatSigFigs(concentrations[j], ConcentrationSigFigs) + "]"
	}
	joined := strings.Join(items, ";")
	if group == "" {
		return joined
	}
	return group + " {" + joined + "}"
}

// FormatSigFigs rounds v to n significant figures and renders it as a plain
// decimal without exponent or trailing zeros (1234 -> "1230", 0.5 -> "0.5").
func FormatSigFigs(v float64, n int) string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	digits := int(math.Floor(math.Log10(math.Abs(v)))) + 1
	shift := n - digits
	scale := math.Pow(10, float64(shift))
	rounded := math.Round(v*scale) / scale
	prec := shift
	if prec < 0 {
		prec = 0
	}
	out := strconv.FormatFloat(rounded, 'f', prec, 64)
	if strings.Contains(out, ".") {
		out = strings.TrimRight(strings.TrimRight(out, "0"), ".")
	}
	return out
}
