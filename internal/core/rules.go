package core

import "tracebase/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(CompoundSynonymRule())
	engine.Register(PeakGroupRepresentationRule())
	engine.Register(ReferenceIntegrityRule())
	return engine
}

func violation(rule string, entity domain.EntityType, key, msg string) domain.Violation {
	return domain.Violation{Rule: rule, Severity: domain.SeverityError, Message: msg, Entity: entity, Key: key}
}
