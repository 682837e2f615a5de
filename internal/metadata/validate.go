package metadata

import (
	"fmt"
	"strings"
)

// ConfigError is a structural problem in a rule definition. It rejects the
// write and never reaches evaluation.
type ConfigError struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e ConfigError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ConfigErrors collects every problem found in one rule.
type ConfigErrors []ConfigError

func (errs ConfigErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// ValidateRule checks the admin-owned fields of a rule. Defaults are applied
// first so an omitted status or priority is not reported.
func ValidateRule(r *Rule) ConfigErrors {
	r.Normalize()
	var errs ConfigErrors
	add := func(field, rule, msg string) {
		errs = append(errs, ConfigError{Field: field, Rule: rule, Message: msg})
	}

	if strings.TrimSpace(r.Name) == "" {
		add("name", "required", "name is required")
	}
	if !ruleTypes[r.Type] {
		add("type", "enum", fmt.Sprintf("invalid rule type: %q", r.Type))
	}
	if !ruleStatuses[r.Status] {
		add("status", "enum", fmt.Sprintf("invalid status: %q", r.Status))
	}
	if !ruleScopes[r.Scope] {
		add("scope", "enum", fmt.Sprintf("invalid scope: %q", r.Scope))
	}
	if r.Priority < 1 {
		add("priority", "min", "priority must be >= 1")
	}
	for i, hp := range r.HookPoints {
		if strings.TrimSpace(hp) == "" {
			add(fmt.Sprintf("hookPoints[%d]", i), "required", "hook point name is empty")
		}
	}

	validateConditions("conditions", r.Conditions, add)

	for i, a := range r.Actions {
		prefix := fmt.Sprintf("actions[%d]", i)
		if a.Type == "" {
			add(prefix+".type", "required", "action type is required")
			continue
		}
		at := ParseActionType(a.Type)
		if (at.Mutates() || at.IsUIHint()) && a.Field == "" {
			add(prefix+".field", "required", fmt.Sprintf("field is required for %s", a.Type))
		}
		if at == ActionShowMessage && a.Message == "" {
			add(prefix+".message", "required", "message is required for showMessage")
		}
		if at == ActionCalculate || at == ActionValidate {
			if s, _ := a.Parameters["expression"].(string); s == "" {
				add(prefix+".parameters.expression", "required", fmt.Sprintf("expression parameter is required for %s", a.Type))
			}
		}
	}

	for i, row := range r.DecisionTable {
		prefix := fmt.Sprintf("decisionTable[%d]", i)
		validateConditions(prefix+".conditions", row.Conditions, add)
		if len(row.Outputs) == 0 {
			add(prefix+".outputs", "required", "decision row needs at least one output")
		}
	}
	for i, row := range r.CheckTable {
		if strings.TrimSpace(row.Expression) == "" {
			add(fmt.Sprintf("checkTable[%d].expression", i), "required", "check expression is required")
		}
	}

	if r.RegexPattern != "" && r.RegexField == "" {
		add("regexField", "required", "regexField is required when regexPattern is set")
	}
	return errs
}

func validateConditions(prefix string, conds []Condition, add func(field, rule, msg string)) {
	for i, c := range conds {
		p := fmt.Sprintf("%s[%d]", prefix, i)
		if c.Field == "" {
			add(p+".field", "required", "condition field is required")
		}
		if c.Operator == "" {
			add(p+".operator", "required", "condition operator is required")
		}
		switch c.LogicalOperator {
		case "", LogicalAnd, LogicalOr, LogicalNot:
		default:
			add(p+".logicalOperator", "enum", fmt.Sprintf("invalid logical operator: %q", c.LogicalOperator))
		}
	}
}
