package metadata

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// RuleSource is the persistence side the registry is loaded from.
type RuleSource interface {
	AllRules(ctx context.Context) ([]*Rule, error)
}

// LoadAll reads every rule from the source and populates the registry.
// Rules with structural problems are skipped with a warning so one bad row
// cannot take down every hook point.
func LoadAll(ctx context.Context, src RuleSource, reg *Registry) error {
	rules, err := src.AllRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	valid := make([]*Rule, 0, len(rules))
	hooks := make(map[string]struct{})
	for _, r := range rules {
		if errs := ValidateRule(r); len(errs) > 0 {
			log.WithField("rule_id", r.ID).Warnf("skipping rule %s (invalid definition): %v", r.ID, errs)
			continue
		}
		valid = append(valid, r)
		for _, hp := range r.HookPoints {
			hooks[hp] = struct{}{}
		}
	}
	reg.LoadRules(valid)

	log.Printf("Loaded %d rules across %d hook points into registry", len(valid), len(hooks))
	return nil
}

// Reload is an alias for LoadAll, called after admin mutations.
func Reload(ctx context.Context, src RuleSource, reg *Registry) error {
	return LoadAll(ctx, src, reg)
}
