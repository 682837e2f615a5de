package metadata

import (
	"sort"
	"sync"
)

// HookFilter narrows hook-point selection. Empty fields do not filter.
type HookFilter struct {
	DataObject  string
	Scope       string
	RequestType string
}

type Registry struct {
	mu          sync.RWMutex
	rulesByID   map[string]*Rule
	rulesByHook map[string][]*Rule // keyed by hook point, in execution order
}

func NewRegistry() *Registry {
	return &Registry{
		rulesByID:   make(map[string]*Rule),
		rulesByHook: make(map[string][]*Rule),
	}
}

// GetRule returns the rule with the given id, or nil.
func (r *Registry) GetRule(id string) *Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rulesByID[id]
}

// AllRules returns every registered rule in execution order.
func (r *Registry) AllRules() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules := make([]*Rule, 0, len(r.rulesByID))
	for _, rule := range r.rulesByID {
		rules = append(rules, rule)
	}
	SortForExecution(rules)
	return rules
}

// RulesForHook returns the eligible rules registered for a hook point that
// pass the filter, in execution order.
func (r *Registry) RulesForHook(hookPoint string, f HookFilter) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Rule
	for _, rule := range r.rulesByHook[hookPoint] {
		if MatchesHook(rule, hookPoint, f) {
			result = append(result, rule)
		}
	}
	return result
}

// LoadRules replaces all rules in the registry.
// Called during startup, after admin mutations and on the reload ticker.
func (r *Registry) LoadRules(rules []*Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rulesByID = make(map[string]*Rule, len(rules))
	r.rulesByHook = make(map[string][]*Rule)
	for _, rule := range rules {
		r.rulesByID[rule.ID] = rule
		for _, hp := range rule.HookPoints {
			r.rulesByHook[hp] = append(r.rulesByHook[hp], rule)
		}
	}
	for _, hookRules := range r.rulesByHook {
		SortForExecution(hookRules)
	}
}

// UpdateStats swaps in fresh counters for a rule after the store applied an
// increment. The rule pointer is replaced, not mutated, so readers holding the
// old pointer keep a consistent view.
func (r *Registry) UpdateStats(id string, stats RuleStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.rulesByID[id]
	if !ok {
		return
	}
	updated := old.Clone()
	updated.RuleStats = stats
	r.rulesByID[id] = updated
	for _, hp := range updated.HookPoints {
		list := r.rulesByHook[hp]
		for i, rule := range list {
			if rule.ID == id {
				list[i] = updated
			}
		}
	}
}

// MatchesHook applies the hook-point selection filter to a single rule.
func MatchesHook(rule *Rule, hookPoint string, f HookFilter) bool {
	if !rule.Eligible() || !rule.HasHookPoint(hookPoint) {
		return false
	}
	if f.DataObject != "" && !rule.MatchesDataObject(f.DataObject) {
		return false
	}
	if f.Scope != "" && rule.Scope != f.Scope {
		return false
	}
	if f.RequestType != "" && !rule.MatchesRequestType(f.RequestType) {
		return false
	}
	return true
}

// SortForExecution orders rules by ascending priority, newest first within a
// priority, then by id so the order is total.
func SortForExecution(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
