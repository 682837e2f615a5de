package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	log "github.com/sirupsen/logrus"

	"erp-rules/internal/instrument"
	"erp-rules/internal/metadata"
	"erp-rules/internal/store"
)

// RuleStore is the persistence the engine needs: rule lookup and atomic
// counter increments.
type RuleStore interface {
	Get(ctx context.Context, id string) (*metadata.Rule, error)
	IncrementStats(ctx context.Context, id string, delta metadata.StatsDelta) (metadata.RuleStats, error)
}

// HookRequest selects and feeds one hook-point batch.
type HookRequest struct {
	HookPoint   string         `json:"hookPoint"`
	DataObject  string         `json:"dataObject,omitempty"`
	Scope       string         `json:"scope,omitempty"`
	RequestType string         `json:"requestType,omitempty"`
	FormData    map[string]any `json:"formData"`
}

// RuleResult is one rule's entry in a hook-point batch.
type RuleResult struct {
	ExecutionResult
	Priority int    `json:"priority"`
	Executed bool   `json:"executed"`
	Error    string `json:"error,omitempty"`
}

// HookResult aggregates a hook-point batch.
type HookResult struct {
	HookPoint        string         `json:"hookPoint"`
	TotalRules       int            `json:"totalRules"`
	ExecutedRules    int            `json:"executedRules"`
	Results          []RuleResult   `json:"results"`
	ModifiedFormData map[string]any `json:"modifiedFormData"`
}

// Service runs rules and hook points and records their statistics.
type Service struct {
	rules    RuleStore
	registry *metadata.Registry
	now      func() time.Time
}

func NewService(rules RuleStore, reg *metadata.Registry) *Service {
	return &Service{rules: rules, registry: reg, now: time.Now}
}

// ExecuteRule runs a single rule directly. The rule must be enabled and
// active. Statistics are recorded for every run, whatever the verdict.
func (s *Service) ExecuteRule(ctx context.Context, id string, data map[string]any) (*ExecutionResult, error) {
	rule, err := s.rules.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError("Rule", id)
		}
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	if !rule.Executable() {
		return nil, RuleNotExecutableError(id)
	}
	if data == nil {
		data = map[string]any{}
	}

	res, err := RunRule(ctx, rule, data)
	if err != nil {
		res.Success = false
		res.Message = err.Error()
	}
	s.recordStats(ctx, rule, res, "")
	return &res, nil
}

// RunHook runs every eligible rule registered for the hook point, in
// execution order, against one shared context. Each rule works on its own
// copy; only writes from its successful field-mutating actions are carried
// into the shared context, so later rules see earlier rules' writes.
// Rules whose conditions are not met leave no statistics behind.
func (s *Service) RunHook(ctx context.Context, req HookRequest) (*HookResult, error) {
	if req.HookPoint == "" {
		return nil, InvalidPayloadError("hookPoint is required")
	}
	if req.FormData == nil {
		return nil, InvalidPayloadError("formData is required")
	}

	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "rules", "hook.run")
	defer span.End()
	span.Tag(instrument.RuleTag{DataObject: req.DataObject, HookPoint: req.HookPoint})

	rules := s.registry.RulesForHook(req.HookPoint, metadata.HookFilter{
		DataObject:  req.DataObject,
		Scope:       req.Scope,
		RequestType: req.RequestType,
	})

	shared := req.FormData
	out := &HookResult{
		HookPoint:        req.HookPoint,
		TotalRules:       len(rules),
		Results:          make([]RuleResult, 0, len(rules)),
		ModifiedFormData: shared,
	}

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			span.SetStatus("error")
			return nil, fmt.Errorf("hook %s: %w", req.HookPoint, err)
		}

		scratch := maps.Clone(shared)
		res, err := RunRule(ctx, rule, scratch)
		entry := RuleResult{ExecutionResult: res, Priority: rule.Priority}
		switch {
		case err != nil:
			entry.Success = false
			entry.Message = err.Error()
			entry.Error = err.Error()
			log.WithFields(log.Fields{"rule_id": rule.ID, "hook_point": req.HookPoint}).
				Warnf("rule evaluation failed: %v", err)
			s.recordStats(ctx, rule, entry.ExecutionResult, req.HookPoint)
		case res.ConditionsMet:
			entry.Executed = true
			out.ExecutedRules++
			for _, w := range res.writes() {
				shared[w.field] = w.value
			}
			s.recordStats(ctx, rule, res, req.HookPoint)
		}
		out.Results = append(out.Results, entry)
	}

	span.SetMetadata("totalRules", out.TotalRules)
	span.SetMetadata("executedRules", out.ExecutedRules)
	span.SetStatus("ok")
	return out, nil
}

// recordStats applies one execution to the rule's counters. A failed write
// is logged; it never changes the rule's verdict.
func (s *Service) recordStats(ctx context.Context, rule *metadata.Rule, res ExecutionResult, hookPoint string) {
	delta := metadata.StatsDelta{Usage: 1, Executions: 1, ExecutedAt: s.now()}
	if res.Success {
		delta.Successes = 1
	} else {
		delta.Failures = 1
	}

	stats, err := s.rules.IncrementStats(context.WithoutCancel(ctx), rule.ID, delta)
	if err != nil {
		log.WithField("rule_id", rule.ID).Errorf("persist rule stats: %v", err)
	} else if s.registry != nil {
		s.registry.UpdateStats(rule.ID, stats)
	}

	instrument.GetInstrumenter(ctx).RuleExecuted(ctx,
		instrument.RuleTag{RuleID: rule.ID, DataObject: rule.DataObject, HookPoint: hookPoint},
		instrument.RuleOutcome{ConditionsMet: res.ConditionsMet, Success: res.Success, ActionsExecuted: len(res.ActionsExecuted)})
}
