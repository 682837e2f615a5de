package instrument

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-rules/internal/config"
	"erp-rules/internal/store"
)

func newEventStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "events"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))
	return s
}

type listResponse struct {
	Data []map[string]any `json:"data"`
}

func getJSON(t *testing.T, app *fiber.App, url string, out any) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", url, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out), string(body))
	return resp.StatusCode
}

func TestSpanAndBusinessEvent_FlushAndList(t *testing.T) {
	s := newEventStore(t)
	buf := NewEventBuffer(s.DB, s.Dialect, 100, 60000)
	defer buf.Stop()

	inst := NewInstrumenter(buf)
	ctx := WithTraceID(context.Background(), newUUID())
	ctx = WithInstrumenter(ctx, inst)

	ctx, span := GetInstrumenter(ctx).StartSpan(ctx, "engine", "rules", "rule.execute")
	span.Tag(RuleTag{RuleID: "r-approval", DataObject: "purchaseOrder"})
	span.SetMetadata("conditionsMet", true)
	span.SetStatus("ok")
	GetInstrumenter(ctx).RuleExecuted(ctx,
		RuleTag{RuleID: "r-approval", DataObject: "purchaseOrder", HookPoint: "beforeSave"},
		RuleOutcome{ConditionsMet: true, Success: true, ActionsExecuted: 2})
	span.End()
	span.End() // second End is ignored
	buf.Flush()

	app := fiber.New()
	h := NewEventHandler(s.DB, s.Dialect)
	app.Get("/events", h.List)
	app.Get("/events/trace/:traceId", h.GetTrace)

	var list listResponse
	require.Equal(t, 200, getJSON(t, app, "/events?rule_id=r-approval", &list))
	require.Len(t, list.Data, 2)

	var business map[string]any
	for _, e := range list.Data {
		if e["event_type"] == "business" {
			business = e
		}
	}
	require.NotNil(t, business)
	assert.Equal(t, "rule.executed", business["action"])
	assert.Equal(t, "purchaseOrder", business["data_object"])
	assert.Equal(t, "beforeSave", business["hook_point"])
	assert.Equal(t, "success", business["status"])
	assert.Equal(t, map[string]any{"conditionsMet": true, "success": true, "actionsExecuted": float64(2)}, business["metadata"])
	assert.Equal(t, span.SpanID(), business["parent_span_id"])

	var trace struct {
		Data struct {
			RootSpan map[string]any   `json:"root_span"`
			Spans    []map[string]any `json:"spans"`
		} `json:"data"`
	}
	require.Equal(t, 200, getJSON(t, app, "/events/trace/"+span.TraceID(), &trace))
	assert.Len(t, trace.Data.Spans, 2)
	assert.Equal(t, "rule.execute", trace.Data.RootSpan["action"])
	assert.Len(t, trace.Data.RootSpan["children"], 1)

	var missing map[string]any
	assert.Equal(t, 404, getJSON(t, app, "/events/trace/nope", &missing))
}

func TestListEvents_FilterByHookPoint(t *testing.T) {
	s := newEventStore(t)
	buf := NewEventBuffer(s.DB, s.Dialect, 100, 60000)
	defer buf.Stop()
	inst := NewInstrumenter(buf)
	ctx := WithTraceID(context.Background(), newUUID())

	inst.RuleExecuted(ctx, RuleTag{RuleID: "r1", HookPoint: "beforeSave"}, RuleOutcome{ConditionsMet: true, Success: true})
	inst.RuleExecuted(ctx, RuleTag{RuleID: "r1", HookPoint: "afterSave"}, RuleOutcome{ConditionsMet: true})
	inst.RuleExecuted(ctx, RuleTag{RuleID: "r1"}, RuleOutcome{Success: true})
	buf.Flush()

	app := fiber.New()
	app.Get("/events", NewEventHandler(s.DB, s.Dialect).List)

	var list listResponse
	require.Equal(t, 200, getJSON(t, app, "/events?hook_point=afterSave", &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "failure", list.Data[0]["status"])
	_, inMetadata := list.Data[0]["metadata"].(map[string]any)["hookPoint"]
	assert.False(t, inMetadata)

	require.Equal(t, 200, getJSON(t, app, "/events?status=skipped", &list))
	require.Len(t, list.Data, 1)
	assert.Nil(t, list.Data[0]["hook_point"])
}

func TestRuleOutcomeStatus(t *testing.T) {
	assert.Equal(t, "skipped", RuleOutcome{Success: true}.Status())
	assert.Equal(t, "success", RuleOutcome{ConditionsMet: true, Success: true}.Status())
	assert.Equal(t, "failure", RuleOutcome{ConditionsMet: true}.Status())
	assert.Equal(t, "failure", RuleOutcome{}.Status())
}

func TestListEvents_Limit(t *testing.T) {
	s := newEventStore(t)
	buf := NewEventBuffer(s.DB, s.Dialect, 100, 60000)
	defer buf.Stop()
	inst := NewInstrumenter(buf)
	ctx := WithTraceID(context.Background(), newUUID())
	for i := 0; i < 5; i++ {
		inst.RuleExecuted(ctx, RuleTag{RuleID: "r1"}, RuleOutcome{Success: true})
	}
	buf.Flush()

	app := fiber.New()
	app.Get("/events", NewEventHandler(s.DB, s.Dialect).List)

	var list listResponse
	require.Equal(t, 200, getJSON(t, app, "/events?limit=3", &list))
	assert.Len(t, list.Data, 3)
}

func TestCleanupOldEvents_KeepsRecent(t *testing.T) {
	s := newEventStore(t)
	ctx := context.Background()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO _events (id, trace_id, span_id, event_type, source, component, action, created_at)
		 VALUES ('old', 't', 's1', 'system', 'engine', 'rules', 'hook.run', '2020-01-01T00:00:00.000000000Z'),
		        ('new', 't', 's2', 'system', 'engine', 'rules', 'hook.run', strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))`)
	require.NoError(t, err)

	CleanupOldEvents(ctx, s.DB, s.Dialect, 7)

	var ids []string
	rows, err := store.QueryRows(ctx, s.DB, "SELECT id FROM _events")
	require.NoError(t, err)
	for _, r := range rows {
		ids = append(ids, r["id"].(string))
	}
	assert.Equal(t, []string{"new"}, ids)
}

func TestMiddleware_SetsTraceHeader(t *testing.T) {
	s := newEventStore(t)
	buf := NewEventBuffer(s.DB, s.Dialect, 100, 60000)
	defer buf.Stop()

	app := fiber.New()
	app.Use(Middleware(config.InstrumentationConfig{Enabled: true, SamplingRate: 1.0}, buf))
	app.Get("/ping", func(c *fiber.Ctx) error {
		if GetTraceID(c.UserContext()) == "" {
			return c.SendStatus(500)
		}
		return c.SendString("pong")
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Trace-ID", "not-a-uuid")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	traceID := resp.Header.Get("X-Trace-ID")
	assert.NotEqual(t, "not-a-uuid", traceID)
	assert.Len(t, traceID, 36)
}

func TestNoopInstrumenterByDefault(t *testing.T) {
	ctx, span := GetInstrumenter(context.Background()).StartSpan(context.Background(), "engine", "rules", "x")
	span.Tag(RuleTag{RuleID: "r", DataObject: "d"})
	span.End()
	assert.Equal(t, "", span.TraceID())
	assert.Equal(t, "", GetTraceID(ctx))
}
