package core

import (
	"context"
	"fmt"

	"tracebase/pkg/domain"
)

// ReferenceIntegrityRule blocks records that name a record which does not
// exist in the resulting state.
func ReferenceIntegrityRule() domain.Rule {
	return referenceIntegrityRule{}
}

type referenceIntegrityRule struct{}

func (referenceIntegrityRule) Name() string { return "reference_integrity" }

type reference struct {
	entity domain.EntityType
	key    string
}

func references(rec domain.Record) []reference {
	var refs []reference
	add := func(entity domain.EntityType, key string) {
		if key != "" {
			refs = append(refs, reference{entity, key})
		}
	}
	switch r := rec.(type) {
	case domain.Tracer:
		add(domain.EntityCompound, r.CompoundName)
	case domain.Infusate:
		for _, t := range r.Tracers {
			add(domain.EntityTracer, t.TracerName)
		}
	case domain.Animal:
		add(domain.EntityInfusate, r.InfusateName)
		add(domain.EntityTreatment, r.TreatmentName)
		for _, s := range r.Studies {
			add(domain.EntityStudy, s)
		}
	case domain.Sample:
		add(domain.EntityAnimal, r.AnimalName)
		add(domain.EntityTissue, r.TissueName)
	case domain.MSRunSample:
		add(domain.EntitySample, r.SampleName)
		add(domain.EntitySequence, r.SequenceName)
	case domain.PeakGroup:
		add(domain.EntityMSRunSample, r.MSRunSample)
	}
	return refs
}

func (r referenceIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		for _, ref := range references(change.After) {
			if _, ok := view.Find(ref.entity, ref.key); ok {
				continue
			}
			res.Violations = append(res.Violations, violation(r.Name(), change.Entity, change.After.Key(),
				fmt.Sprintf("%s %s references missing %s %s", change.Entity, change.After.Key(), ref.entity, ref.key)))
		}
	}
	return res, nil
}
