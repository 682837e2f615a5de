package engine

import (
	"testing"

	"erp-rules/internal/metadata"
)

// cond builds a condition that is true exactly when data[field] == true.
func cond(field, logical string) metadata.Condition {
	return metadata.Condition{Field: field, Operator: "equals", Value: true, LogicalOperator: logical}
}

func flags(a, b, c bool) map[string]any {
	return map[string]any{"a": a, "b": b, "c": c}
}

func chain(t *testing.T, conds []metadata.Condition, data map[string]any) bool {
	t.Helper()
	got, err := EvaluateChain(conds, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return got
}

func TestEvaluateChain_EmptyIsTrue(t *testing.T) {
	if !chain(t, nil, map[string]any{}) {
		t.Fatal("expected empty chain to be true")
	}
	if !chain(t, []metadata.Condition{}, nil) {
		t.Fatal("expected empty chain to be true with nil context")
	}
}

func TestEvaluateChain_LeftFoldIgnoresFirstOperator(t *testing.T) {
	// [A(AND), B(OR), C(AND)] folds as ((A OR B) AND C), never A OR (B AND C).
	conds := []metadata.Condition{cond("a", "AND"), cond("b", "OR"), cond("c", "AND")}

	// A=true, B=false, C=false: left fold gives false, right-nested gives true.
	if chain(t, conds, flags(true, false, false)) {
		t.Fatal("expected ((true OR false) AND false) = false")
	}
	// A=false, B=true, C=true
	if !chain(t, conds, flags(false, true, true)) {
		t.Fatal("expected ((false OR true) AND true) = true")
	}
	// A=false, B=false, C=true
	if chain(t, conds, flags(false, false, true)) {
		t.Fatal("expected ((false OR false) AND true) = false")
	}
}

func TestEvaluateChain_FirstOperatorNeverChangesVerdict(t *testing.T) {
	bools := []bool{false, true}
	for _, first := range []string{"", "AND", "OR", "NOT"} {
		conds := []metadata.Condition{cond("a", first), cond("b", "AND")}
		for _, a := range bools {
			for _, b := range bools {
				if got := chain(t, conds, flags(a, b, false)); got != (a && b) {
					t.Fatalf("first=%q a=%v b=%v: expected %v, got %v", first, a, b, a && b, got)
				}
			}
		}
	}

	// B's own OR joins it to A.
	if !chain(t, []metadata.Condition{cond("a", "AND"), cond("b", "OR")}, flags(false, true, false)) {
		t.Fatal("expected false OR true = true")
	}

	// A single condition's operator is ignored entirely.
	if !chain(t, []metadata.Condition{cond("a", "NOT")}, flags(true, false, false)) {
		t.Fatal("expected single condition to seed the result unchanged")
	}
}

func TestEvaluateChain_NotNegatesIncomingCondition(t *testing.T) {
	conds := []metadata.Condition{cond("a", ""), cond("b", "NOT")}
	cases := []struct {
		a, b, want bool
	}{
		{true, false, true},
		{true, true, false},
		// NOT does not negate the accumulator
		{false, false, false},
		{false, true, false},
	}
	for _, tc := range cases {
		if got := chain(t, conds, flags(tc.a, tc.b, false)); got != tc.want {
			t.Fatalf("a=%v NOT b=%v: expected %v, got %v", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestEvaluateChain_DefaultOperatorIsAnd(t *testing.T) {
	conds := []metadata.Condition{cond("a", ""), cond("b", "")}
	if chain(t, conds, flags(true, false, false)) {
		t.Fatal("expected missing logical operator to behave as AND")
	}
	if !chain(t, conds, flags(true, true, false)) {
		t.Fatal("expected true AND true")
	}
}

func TestEvaluateChain_MissingFieldIsUndefined(t *testing.T) {
	conds := []metadata.Condition{{Field: "missing", Operator: "isNull"}}
	if chain(t, conds, map[string]any{}) {
		t.Fatal("expected isNull on a missing key to be false")
	}
	conds = []metadata.Condition{{Field: "missing", Operator: "isEmpty"}}
	if !chain(t, conds, map[string]any{}) {
		t.Fatal("expected isEmpty on a missing key to be true")
	}
}

func TestEvaluateChain_UnknownOperatorFoldsAsFalse(t *testing.T) {
	conds := []metadata.Condition{
		{Field: "a", Operator: "between"},
		cond("b", "OR"),
	}
	if !chain(t, conds, flags(true, true, false)) {
		t.Fatal("expected false OR true = true")
	}
}

func TestEvaluateChain_RegexErrorPropagates(t *testing.T) {
	conds := []metadata.Condition{{Field: "code", Operator: "regex", Value: "(["}}
	if _, err := EvaluateChain(conds, map[string]any{"code": "x"}); err == nil {
		t.Fatal("expected invalid pattern to surface as an error")
	}
}
