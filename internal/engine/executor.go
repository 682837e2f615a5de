package engine

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"erp-rules/internal/instrument"
	"erp-rules/internal/metadata"
)

const (
	msgExecuted      = "Rule executed successfully"
	msgNotMet        = "Conditions not met"
	msgActionsFailed = "Some actions failed"
)

// ExecutionResult is the outcome of evaluating one rule against a context.
type ExecutionResult struct {
	RuleID          string         `json:"ruleId"`
	RuleName        string         `json:"ruleName"`
	ConditionsMet   bool           `json:"conditionsMet"`
	ActionsExecuted []ActionResult `json:"actionsExecuted"`
	Success         bool           `json:"success"`
	Message         string         `json:"message"`
}

// writes returns the context writes of the successful field-mutating results,
// in execution order.
func (r *ExecutionResult) writes() []fieldWrite {
	var out []fieldWrite
	for _, a := range r.ActionsExecuted {
		if a.Success {
			out = append(out, a.writes...)
		}
	}
	return out
}

// RunRule evaluates a rule against data, mutating it in place. The verdict is
// the condition chain ANDed with the expression and regex modes. When it
// holds, the decision table, check table and actions run in that order.
// An error means the rule could not be evaluated at all; action failures are
// reported in the result instead.
func RunRule(ctx context.Context, rule *metadata.Rule, data map[string]any) (ExecutionResult, error) {
	_, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "rules", "rule.execute")
	defer span.End()
	span.Tag(instrument.RuleTag{RuleID: rule.ID, DataObject: rule.DataObject})

	logger := log.WithField("rule_id", rule.ID)
	res := ExecutionResult{
		RuleID:          rule.ID,
		RuleName:        rule.Name,
		ActionsExecuted: []ActionResult{},
	}

	met, err := verdict(rule, data, logger)
	if err != nil {
		span.SetStatus("error")
		return res, err
	}
	res.ConditionsMet = met
	span.SetMetadata("conditionsMet", met)
	if !met {
		res.Success = true
		res.Message = msgNotMet
		span.SetStatus("ok")
		return res, nil
	}

	if len(rule.DecisionTable) > 0 {
		res.ActionsExecuted = append(res.ActionsExecuted, runDecisionTable(rule.DecisionTable, data, logger))
	}
	if len(rule.CheckTable) > 0 {
		res.ActionsExecuted = append(res.ActionsExecuted, runCheckTable(rule.CheckTable, data)...)
	}
	for _, a := range rule.Actions {
		res.ActionsExecuted = append(res.ActionsExecuted, executeAction(a, data, logger))
	}

	res.Success = true
	for _, a := range res.ActionsExecuted {
		if !a.Success {
			res.Success = false
			break
		}
	}
	if res.Success {
		res.Message = msgExecuted
		span.SetStatus("ok")
	} else {
		res.Message = msgActionsFailed
		span.SetStatus("error")
	}
	return res, nil
}

func verdict(rule *metadata.Rule, data map[string]any, logger *log.Entry) (bool, error) {
	met, err := evaluateChain(rule.Conditions, data, logger)
	if err != nil || !met {
		return false, err
	}
	if rule.Expression != "" {
		ok, err := EvaluateExpression(rule.Expression, data)
		if err != nil || !ok {
			return false, err
		}
	}
	if rule.RegexPattern != "" {
		re, err := compileRegex(rule.RegexPattern)
		if err != nil {
			return false, err
		}
		ok, err := re.MatchString(Stringify(Lookup(data, rule.RegexField)))
		if err != nil {
			return false, fmt.Errorf("match %s: %w", rule.RegexField, err)
		}
		return ok, nil
	}
	return true, nil
}
