package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func hasField(errs ConfigErrors, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateRule_Valid(t *testing.T) {
	r := &Rule{
		Name:       "ok",
		Type:       RuleTypeValidation,
		HookPoints: []string{"before-submit"},
		Conditions: []Condition{{Field: "amount", Operator: "greaterThan", Value: 10, LogicalOperator: "OR"}},
		Actions: []Action{
			{Type: "setField", Field: "flag", Value: true},
			{Type: "showMessage", Message: "hello"},
			{Type: "sendEmail"},
		},
	}
	if errs := ValidateRule(r); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if r.Status != StatusDraft || r.ConditionCount != 1 || r.ActionCount != 3 {
		t.Fatalf("expected defaults and counts applied, got status=%s counts=%d/%d", r.Status, r.ConditionCount, r.ActionCount)
	}
}

func TestValidateRule_MissingOperator(t *testing.T) {
	r := &Rule{
		Name:       "bad",
		Type:       RuleTypeBusiness,
		Conditions: []Condition{{Field: "amount"}},
	}
	errs := ValidateRule(r)
	if !hasField(errs, "conditions[0].operator") {
		t.Fatalf("expected operator error, got %v", errs)
	}
}

func TestValidateRule_CollectsAllProblems(t *testing.T) {
	r := &Rule{
		Type:         "magic",
		Status:       "live",
		Scope:        "planet",
		Conditions:   []Condition{{Operator: "equals", LogicalOperator: "XOR"}},
		Actions:      []Action{{Type: "setField"}, {}, {Type: "showMessage"}, {Type: "calculate", Field: "x"}},
		RegexPattern: "^a",
	}
	errs := ValidateRule(r)
	for _, f := range []string{
		"name", "type", "status", "scope",
		"conditions[0].field", "conditions[0].logicalOperator",
		"actions[0].field", "actions[1].type", "actions[2].message",
		"actions[3].parameters.expression", "regexField",
	} {
		if !hasField(errs, f) {
			t.Fatalf("expected error on %s, got %v", f, errs)
		}
	}
	if !strings.Contains(errs.Error(), "name is required") {
		t.Fatalf("expected joined message, got %q", errs.Error())
	}
}

func TestValidateRule_DecisionAndCheckTables(t *testing.T) {
	r := &Rule{
		Name:          "tables",
		Type:          RuleTypeData,
		DecisionTable: []DecisionRow{{ID: 1, Conditions: []Condition{{Field: "a"}}}},
		CheckTable:    []CheckRow{{ID: 1}},
	}
	errs := ValidateRule(r)
	for _, f := range []string{"decisionTable[0].conditions[0].operator", "decisionTable[0].outputs", "checkTable[0].expression"} {
		if !hasField(errs, f) {
			t.Fatalf("expected error on %s, got %v", f, errs)
		}
	}
}

type fakeSource struct {
	rules []*Rule
	err   error
}

func (f fakeSource) AllRules(context.Context) ([]*Rule, error) { return f.rules, f.err }

func TestLoadAll_SkipsInvalidRules(t *testing.T) {
	good := &Rule{ID: "good", Name: "good", Type: RuleTypeBusiness, Status: StatusActive, Enabled: true, IsActive: true, HookPoints: []string{"h"}}
	bad := &Rule{ID: "bad", Type: "nope", HookPoints: []string{"h"}}
	reg := NewRegistry()
	if err := LoadAll(context.Background(), fakeSource{rules: []*Rule{good, bad}}, reg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if reg.GetRule("good") == nil {
		t.Fatal("expected good rule to load")
	}
	if reg.GetRule("bad") != nil {
		t.Fatal("expected bad rule to be skipped")
	}
}

func TestLoadAll_PropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	err := LoadAll(context.Background(), fakeSource{err: boom}, NewRegistry())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}
