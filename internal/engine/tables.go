package engine

import (
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"erp-rules/internal/metadata"
)

const (
	decisionTableType = "decisionTable"
	checkType         = "check"
)

// runDecisionTable writes the outputs of the first matching row.
func runDecisionTable(rows []metadata.DecisionRow, data map[string]any, logger *log.Entry) ActionResult {
	res := ActionResult{Type: decisionTableType, Success: true}
	for _, row := range rows {
		ok, err := evaluateChain(row.Conditions, data, logger)
		if err != nil {
			res.Success = false
			res.Message = fmt.Sprintf("Decision row %d: %v", row.ID, err)
			return res
		}
		if !ok {
			continue
		}
		keys := make([]string, 0, len(row.Outputs))
		for k := range row.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			data[k] = row.Outputs[k]
			res.writes = append(res.writes, fieldWrite{k, row.Outputs[k]})
		}
		res.ActionID = row.ID
		res.Message = fmt.Sprintf("Decision row %d matched", row.ID)
		return res
	}
	res.Message = "No decision table row matched"
	return res
}

// runCheckTable evaluates every check row and records one result per row.
func runCheckTable(rows []metadata.CheckRow, data map[string]any) []ActionResult {
	results := make([]ActionResult, 0, len(rows))
	for _, row := range rows {
		res := ActionResult{ActionID: row.ID, Type: checkType}
		ok, err := EvaluateCheck(row.Expression, data)
		switch {
		case err != nil:
			res.Message = err.Error()
		case ok:
			res.Success = true
			res.Message = fmt.Sprintf("Check %d passed", row.ID)
		case row.Message != "":
			res.Message = row.Message
		default:
			res.Message = fmt.Sprintf("Check %d failed", row.ID)
		}
		results = append(results, res)
	}
	return results
}
