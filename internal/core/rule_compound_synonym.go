package core

import (
	"context"
	"fmt"
	"strings"

	"tracebase/pkg/domain"
)

// CompoundSynonymRule blocks a compound whose name or synonym already names
// a different compound.
func CompoundSynonymRule() domain.Rule {
	return compoundSynonymRule{}
}

type compoundSynonymRule struct{}

func (compoundSynonymRule) Name() string { return "compound_synonym_unique" }

func (r compoundSynonymRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var changed []domain.Compound
	for _, change := range changes {
		if c, ok := change.After.(domain.Compound); ok {
			changed = append(changed, c)
		}
	}
	if len(changed) == 0 {
		return res, nil
	}

	isChanged := make(map[string]bool, len(changed))
	for _, c := range changed {
		isChanged[c.Name] = true
	}
	owner := make(map[string]string)
	claim := func(c domain.Compound) {
		for _, name := range c.Names() {
			key := strings.ToLower(name)
			if _, taken := owner[key]; !taken {
				owner[key] = c.Name
			}
		}
	}
	for _, rec := range view.List(domain.EntityCompound) {
		if c, ok := rec.(domain.Compound); ok && !isChanged[c.Name] {
			claim(c)
		}
	}
	for _, c := range changed {
		for _, name := range c.Names() {
			if other := owner[strings.ToLower(name)]; other != "" && other != c.Name {
				res.Violations = append(res.Violations, violation(r.Name(), domain.EntityCompound, c.Name,
					fmt.Sprintf("compound %s: name %q already belongs to compound %s", c.Name, name, other)))
			}
		}
		claim(c)
	}
	return res, nil
}
