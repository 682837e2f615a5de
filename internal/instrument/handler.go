package instrument

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"erp-rules/internal/store"
)

const eventColumns = "id, trace_id, span_id, parent_span_id, event_type, source, component, action, rule_id, data_object, hook_point, user_id, duration_ms, status, metadata, created_at"

// EventHandler exposes read endpoints over the _events table.
type EventHandler struct {
	db      *sql.DB
	dialect store.Dialect
}

// NewEventHandler creates an EventHandler backed by the given db and dialect.
func NewEventHandler(db *sql.DB, dialect store.Dialect) *EventHandler {
	return &EventHandler{db: db, dialect: dialect}
}

// List handles GET /api/_admin/events. Filters: rule_id, data_object,
// hook_point, action, event_type, status, trace_id. Newest first.
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pb := h.dialect.NewParamBuilder()

	var conditions []string
	for _, col := range []string{"rule_id", "data_object", "hook_point", "action", "event_type", "status", "trace_id"} {
		if v := c.Query(col); v != "" {
			conditions = append(conditions, fmt.Sprintf("%s = %s", col, pb.Add(v)))
		}
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlStr := fmt.Sprintf("SELECT %s FROM _events%s ORDER BY created_at DESC LIMIT %s",
		eventColumns, whereClause, pb.Add(limit))

	rows, err := store.QueryRows(ctx, h.db, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	decodeMetadata(rows)

	return c.JSON(fiber.Map{"data": rows})
}

// GetTrace handles GET /api/_admin/events/trace/:traceId and returns the
// spans of one trace with their children attached.
func (h *EventHandler) GetTrace(c *fiber.Ctx) error {
	ctx := c.UserContext()
	traceID := c.Params("traceId")

	pb := h.dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, h.db,
		fmt.Sprintf("SELECT %s FROM _events WHERE trace_id = %s ORDER BY created_at ASC", eventColumns, pb.Add(traceID)),
		pb.Params()...,
	)
	if err != nil {
		return fmt.Errorf("get trace: %w", err)
	}
	if len(rows) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Trace not found: " + traceID}})
	}
	decodeMetadata(rows)

	children := make(map[string][]map[string]any, len(rows))
	var root map[string]any
	for _, row := range rows {
		parentID, _ := row["parent_span_id"].(string)
		if parentID == "" {
			if root == nil {
				root = row
			}
			continue
		}
		children[parentID] = append(children[parentID], row)
	}
	for _, row := range rows {
		spanID, _ := row["span_id"].(string)
		kids := children[spanID]
		if kids == nil {
			kids = []map[string]any{}
		}
		row["children"] = kids
	}
	if root == nil {
		root = rows[0]
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"trace_id":          traceID,
			"root_span":         root,
			"spans":             rows,
			"total_duration_ms": root["duration_ms"],
		},
	})
}

// decodeMetadata turns the stored JSON document back into an object.
func decodeMetadata(rows []map[string]any) {
	for _, row := range rows {
		raw, ok := row["metadata"].(string)
		if !ok || raw == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			row["metadata"] = m
		}
	}
}
