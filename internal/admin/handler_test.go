package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-rules/internal/auth"
	"erp-rules/internal/engine"
	"erp-rules/internal/metadata"
	"erp-rules/internal/store"
)

const secret = "admin-test-secret"

type fixture struct {
	app   *fiber.App
	mem   *store.MemoryRuleStore
	reg   *metadata.Registry
	admin string
}

func newFixture(t *testing.T, seed ...*metadata.Rule) *fixture {
	t.Helper()
	mem := store.NewMemoryRuleStore()
	mem.Seed(seed...)
	reg := metadata.NewRegistry()
	require.NoError(t, metadata.LoadAll(context.Background(), mem, reg))

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	RegisterAdminRoutes(app, NewHandler(mem, reg, nil), auth.AuthMiddleware(secret), auth.RequireAdmin())

	tok, err := auth.GenerateAccessToken("admin-1", []string{"rules_admin"}, secret)
	require.NoError(t, err)
	return &fixture{app: app, mem: mem, reg: reg, admin: tok}
}

func (f *fixture) do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	return f.doAs(t, f.admin, method, url, body)
}

func (f *fixture) doAs(t *testing.T, token, method, url, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func seedRule(id string) *metadata.Rule {
	return &metadata.Rule{
		ID:         id,
		Name:       "Seeded " + id,
		Type:       metadata.RuleTypeValidation,
		DataObject: "invoice",
		Status:     metadata.StatusActive,
		Enabled:    true,
		IsActive:   true,
		Priority:   1,
		HookPoints: []string{"beforeSave"},
		Conditions: []metadata.Condition{{ID: 1, Field: "total", Operator: "greaterThan", Value: float64(0)}},
	}
}

const validRule = `{
	"id": "credit-limit",
	"name": "Credit limit",
	"type": "validation",
	"dataObject": "invoice",
	"status": "active",
	"enabled": true,
	"isActive": true,
	"priority": 2,
	"hookPoints": ["beforeSave"],
	"conditions": [{"id": 1, "field": "total", "operator": "greaterThan", "value": 10000}],
	"actions": [{"id": 1, "type": "showMessage", "message": "Over credit limit"}],
	"usageCount": 99
}`

func TestCreateRule(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, "POST", "/api/_admin/rules", validRule)
	require.Equal(t, 201, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "credit-limit", data["id"])
	assert.Equal(t, "admin-1", data["createdBy"])
	assert.Equal(t, float64(1), data["conditionCount"])
	assert.Equal(t, float64(0), data["usageCount"])

	reloaded := f.reg.GetRule("credit-limit")
	require.NotNil(t, reloaded)
	assert.Len(t, f.reg.RulesForHook("beforeSave", metadata.HookFilter{DataObject: "invoice"}), 1)

	status, body = f.do(t, "POST", "/api/_admin/rules", validRule)
	assert.Equal(t, 409, status)
	assert.Equal(t, "CONFLICT", errorCode(body))
}

func TestCreateRule_Validation(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, "POST", "/api/_admin/rules", `{
		"type": "validation",
		"expression": "data.total >",
		"conditions": [{"field": "total"}]
	}`)
	require.Equal(t, 422, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	fields := map[string]bool{}
	for _, d := range body["error"].(map[string]any)["details"].([]any) {
		fields[d.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["expression"])
	assert.True(t, fields["conditions[0].operator"])

	status, body = f.do(t, "POST", "/api/_admin/rules", `{"name":`)
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_PAYLOAD", errorCode(body))
}

func TestUpdateRule(t *testing.T) {
	seeded := seedRule("r1")
	seeded.RuleStats = metadata.RuleStats{UsageCount: 4, ExecutionCount: 4, SuccessCount: 3, FailureCount: 1}
	f := newFixture(t, seeded)

	status, body := f.do(t, "PUT", "/api/_admin/rules/r1", `{
		"name": "Renamed",
		"type": "validation",
		"status": "active",
		"enabled": true,
		"isActive": true,
		"priority": 3,
		"hookPoints": ["afterSave"],
		"conditions": [],
		"executionCount": 0
	}`)
	require.Equal(t, 200, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Renamed", data["name"])
	assert.Equal(t, []any{"afterSave"}, data["hookPoints"])
	assert.Equal(t, float64(4), data["executionCount"])

	assert.Empty(t, f.reg.RulesForHook("beforeSave", metadata.HookFilter{}))
	assert.Len(t, f.reg.RulesForHook("afterSave", metadata.HookFilter{}), 1)

	status, body = f.do(t, "PUT", "/api/_admin/rules/missing", `{"name":"x","type":"validation"}`)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestSetRuleStatus(t *testing.T) {
	f := newFixture(t, seedRule("r1"))
	require.Len(t, f.reg.RulesForHook("beforeSave", metadata.HookFilter{}), 1)

	status, body := f.do(t, "POST", "/api/_admin/rules/r1/status", `{"status":"archived"}`)
	require.Equal(t, 200, status, body)
	assert.Equal(t, "archived", body["data"].(map[string]any)["status"])
	assert.Empty(t, f.reg.RulesForHook("beforeSave", metadata.HookFilter{}))

	status, body = f.do(t, "POST", "/api/_admin/rules/r1/status", `{"status":"deleted"}`)
	assert.Equal(t, 422, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, _ = f.do(t, "POST", "/api/_admin/rules/nope/status", `{"status":"active"}`)
	assert.Equal(t, 404, status)
}

func TestGetRuleStats(t *testing.T) {
	seeded := seedRule("r1")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seeded.RuleStats = metadata.RuleStats{UsageCount: 10, ExecutionCount: 10, SuccessCount: 9, FailureCount: 1, LastExecutedAt: &at}
	seeded.Expression = "data.total > 0"
	f := newFixture(t, seeded)

	status, body := f.do(t, "GET", "/api/_admin/rules/r1/stats", "")
	require.Equal(t, 200, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "r1", data["ruleId"])
	assert.Equal(t, float64(90), data["successRate"])
	assert.Equal(t, true, data["isEffective"])
	assert.Equal(t, float64(7), data["complexityScore"])
	assert.Equal(t, "2026-03-01T12:00:00Z", data["lastExecutedAt"])

	status, _ = f.do(t, "GET", "/api/_admin/rules/missing/stats", "")
	assert.Equal(t, 404, status)
}

func TestListAndGetRules(t *testing.T) {
	other := seedRule("r2")
	other.HookPoints = []string{"afterSave"}
	other.Priority = 5
	f := newFixture(t, seedRule("r1"), other)

	status, body := f.do(t, "GET", "/api/_admin/rules", "")
	require.Equal(t, 200, status)
	assert.Len(t, body["data"], 2)

	status, body = f.do(t, "GET", "/api/_admin/rules?hookPoint=afterSave", "")
	require.Equal(t, 200, status)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "r2", list[0].(map[string]any)["id"])

	status, body = f.do(t, "GET", "/api/_admin/rules/r1", "")
	require.Equal(t, 200, status)
	assert.Equal(t, "Seeded r1", body["data"].(map[string]any)["name"])
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t, seedRule("r1"))
	viewer, err := auth.GenerateAccessToken("u1", []string{"viewer"}, secret)
	require.NoError(t, err)

	status, body := f.doAs(t, viewer, "GET", "/api/_admin/rules", "")
	assert.Equal(t, 403, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
}
