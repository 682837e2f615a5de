package engine

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-rules/internal/metadata"
)

func newTestApp(t *testing.T, hookTimeout time.Duration, rules ...*metadata.Rule) *fiber.App {
	t.Helper()
	svc, _ := newTestService(t, rules...)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterExecutionRoutes(app, NewHandler(svc, hookTimeout))
	return app
}

func post(t *testing.T, app *fiber.App, url, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
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

func TestExecuteRuleEndpoint(t *testing.T) {
	disabled := hookRule("disabled", 5, metadata.Condition{Field: "amount", Operator: "greaterThan", Value: float64(0)})
	disabled.Enabled = false
	app := newTestApp(t, 0, append(purchaseOrderRules(), disabled)...)

	status, body := post(t, app, "/api/rules/large-order/execute", `{"data":{"amount":5000}}`)
	require.Equal(t, 200, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["conditionsMet"])
	assert.Equal(t, true, data["success"])
	assert.Len(t, data["actionsExecuted"], 2)

	status, body = post(t, app, "/api/rules/nope/execute", `{"data":{}}`)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = post(t, app, "/api/rules/disabled/execute", `{"data":{"amount":1}}`)
	assert.Equal(t, 409, status)
	assert.Equal(t, "RULE_NOT_EXECUTABLE", errorCode(body))

	status, body = post(t, app, "/api/rules/large-order/execute", `{}`)
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_PAYLOAD", errorCode(body))

	status, body = post(t, app, "/api/rules/large-order/execute", `{"data":`)
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_PAYLOAD", errorCode(body))
}

func TestExecuteHookEndpoint(t *testing.T) {
	app := newTestApp(t, time.Minute, purchaseOrderRules()...)

	status, body := post(t, app, "/api/hooks/beforeSave/execute",
		`{"dataObject":"purchaseOrder","formData":{"amount":1500,"country":"DE"}}`)
	require.Equal(t, 200, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "beforeSave", data["hookPoint"])
	assert.Equal(t, float64(4), data["totalRules"])
	assert.Equal(t, float64(3), data["executedRules"])
	modified := data["modifiedFormData"].(map[string]any)
	assert.Equal(t, "EU", modified["region"])

	status, body = post(t, app, "/api/hooks/beforeSave/execute", `{"dataObject":"purchaseOrder"}`)
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_PAYLOAD", errorCode(body))
}

func TestExecuteHookEndpoint_Timeout(t *testing.T) {
	app := newTestApp(t, time.Nanosecond, purchaseOrderRules()...)

	status, body := post(t, app, "/api/hooks/beforeSave/execute", `{"formData":{"amount":1500}}`)
	assert.Equal(t, 504, status)
	assert.Equal(t, "HOOK_TIMEOUT", errorCode(body))
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/app", func(c *fiber.Ctx) error {
		return ValidationError([]ErrorDetail{{Field: "name", Rule: "required", Message: "name is required"}})
	})
	app.Post("/fiber", func(c *fiber.Ctx) error { return fiber.ErrMethodNotAllowed })
	app.Post("/plain", func(c *fiber.Ctx) error { return errors.New("db exploded") })

	status, body := post(t, app, "/app", `{}`)
	assert.Equal(t, 422, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].([]any)
	assert.Equal(t, "name", details[0].(map[string]any)["field"])

	status, body = post(t, app, "/fiber", `{}`)
	assert.Equal(t, 405, status)
	assert.Equal(t, "HTTP_ERROR", errorCode(body))

	status, body = post(t, app, "/plain", `{}`)
	assert.Equal(t, 500, status)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(body))
	assert.NotContains(t, body["error"].(map[string]any)["message"], "db exploded")
}

func TestErrorHandler_LogsUnhandledAtErrorLevel(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/plain", func(c *fiber.Ctx) error { return errors.New("db exploded") })

	status, _ := post(t, app, "/plain", `{}`)
	require.Equal(t, 500, status)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, log.ErrorLevel, entry.Level)
	assert.Equal(t, "unhandled error: db exploded", entry.Message)
}
