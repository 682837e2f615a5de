package engine

import (
	log "github.com/sirupsen/logrus"

	"erp-rules/internal/metadata"
)

// EvaluateChain folds a rule's conditions left to right. The first condition
// seeds the accumulator and its logical operator is never read; every later
// condition is joined using its own operator. NOT negates the incoming
// result, never the accumulator. An empty chain is true.
func EvaluateChain(conditions []metadata.Condition, data map[string]any) (bool, error) {
	return evaluateChain(conditions, data, log.NewEntry(log.StandardLogger()))
}

func evaluateChain(conditions []metadata.Condition, data map[string]any, logger *log.Entry) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	var acc bool
	for i, c := range conditions {
		op := metadata.ParseOperator(c.Operator)
		if op == metadata.OpUnknown {
			logger.WithFields(log.Fields{"field": c.Field, "operator": c.Operator}).
				Warn("unknown condition operator, evaluating as false")
		}
		r, err := EvaluateCondition(op, Lookup(data, c.Field), c.Value)
		if err != nil {
			return false, err
		}
		if i == 0 {
			acc = r
			continue
		}
		switch c.LogicalOperator {
		case metadata.LogicalOr:
			acc = acc || r
		case metadata.LogicalNot:
			acc = acc && !r
		default:
			acc = acc && r
		}
	}
	return acc, nil
}
