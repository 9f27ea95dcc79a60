package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tracebase/pkg/domain"
)

// PeakGroupRepresentationRule blocks a peak group when another file already
// supplies the same compound set for the same sample.
func PeakGroupRepresentationRule() domain.Rule {
	return peakGroupRepresentationRule{}
}

type peakGroupRepresentationRule struct{}

func (peakGroupRepresentationRule) Name() string { return "peak_group_single_representation" }

func (r peakGroupRepresentationRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := make(map[string]domain.PeakGroup)
	for _, change := range changes {
		if pg, ok := change.After.(domain.PeakGroup); ok {
			touched[representationKey(pg)] = pg
		}
	}
	if len(touched) == 0 {
		return res, nil
	}

	// Peak groups of a sample are found through its MSRunSamples, so a
	// commit costs the sample's runs rather than every stored peak group.
	samples := make(map[string]bool)
	for _, pg := range touched {
		samples[pg.SampleName] = true
	}
	runs := make(map[string][]string)
	for _, rec := range view.List(domain.EntityMSRunSample) {
		if ms, ok := rec.(domain.MSRunSample); ok && samples[ms.SampleName] {
			runs[ms.SampleName] = append(runs[ms.SampleName], ms.Key())
		}
	}
	files := make(map[string]map[string]struct{}, len(touched))
	for key, pg := range touched {
		files[key] = map[string]struct{}{pg.AnnotationFile: {}}
		for _, run := range runs[pg.SampleName] {
			rec, ok := view.Find(domain.EntityPeakGroup, domain.PeakGroupKey(pg.Compounds, run))
			if !ok {
				continue
			}
			if other, ok := rec.(domain.PeakGroup); ok {
				files[key][other.AnnotationFile] = struct{}{}
			}
		}
	}
	for key, pg := range touched {
		if len(files[key]) < 2 {
			continue
		}
		names := make([]string, 0, len(files[key]))
		for f := range files[key] {
			names = append(names, f)
		}
		sort.Strings(names)
		res.Violations = append(res.Violations, violation(r.Name(), domain.EntityPeakGroup, pg.Key(),
			fmt.Sprintf("peak group %s for sample %s is supplied by multiple files: %s", pg.Name, pg.SampleName, strings.Join(names, ", "))))
	}
	sort.Slice(res.Violations, func(i, j int) bool { return res.Violations[i].Key < res.Violations[j].Key })
	return res, nil
}

func representationKey(pg domain.PeakGroup) string {
	return domain.CompoundSetKey(pg.Compounds) + "|" + pg.SampleName
}
