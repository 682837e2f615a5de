package engine

import (
	"fmt"

	"erp-rules/internal/metadata"
)

// ValidateRule runs the structural checks and then compiles every embedded
// expression and pattern, so a rule that cannot evaluate is rejected at write
// time instead of failing on every hook call.
func ValidateRule(r *metadata.Rule) metadata.ConfigErrors {
	errs := metadata.ValidateRule(r)
	add := func(field, rule string, err error) {
		errs = append(errs, metadata.ConfigError{Field: field, Rule: rule, Message: err.Error()})
	}

	if r.Expression != "" {
		if _, err := CompileExpression(r.Expression); err != nil {
			add("expression", "compile", err)
		}
	}
	if r.RegexPattern != "" {
		if _, err := compileRegex(r.RegexPattern); err != nil {
			add("regexPattern", "compile", err)
		}
	}
	checkRegexConditions := func(prefix string, conds []metadata.Condition) {
		for i, c := range conds {
			if metadata.ParseOperator(c.Operator) != metadata.OpRegex {
				continue
			}
			if _, err := compileRegex(Stringify(c.Value)); err != nil {
				add(fmt.Sprintf("%s[%d].value", prefix, i), "compile", err)
			}
		}
	}
	checkRegexConditions("conditions", r.Conditions)
	for i, row := range r.DecisionTable {
		checkRegexConditions(fmt.Sprintf("decisionTable[%d].conditions", i), row.Conditions)
	}
	for i, row := range r.CheckTable {
		if row.Expression == "" {
			continue
		}
		if _, err := CompileCheck(row.Expression); err != nil {
			add(fmt.Sprintf("checkTable[%d].expression", i), "compile", err)
		}
	}
	for i, a := range r.Actions {
		src, _ := a.Parameters["expression"].(string)
		if src == "" {
			continue
		}
		var err error
		switch metadata.ParseActionType(a.Type) {
		case metadata.ActionCalculate:
			_, err = CompileValueExpression(src)
		case metadata.ActionValidate:
			_, err = CompileExpression(src)
		}
		if err != nil {
			add(fmt.Sprintf("actions[%d].parameters.expression", i), "compile", err)
		}
	}
	return errs
}
