package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"erp-rules/internal/auth"
	"erp-rules/internal/engine"
	"erp-rules/internal/instrument"
	"erp-rules/internal/metadata"
	"erp-rules/internal/store"
)

type Handler struct {
	rules    store.RuleStore
	registry *metadata.Registry
	events   *instrument.EventHandler
}

// NewHandler wires the rule administration endpoints. events may be nil
// when instrumentation is disabled.
func NewHandler(rules store.RuleStore, reg *metadata.Registry, events *instrument.EventHandler) *Handler {
	return &Handler{rules: rules, registry: reg, events: events}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/rules", h.ListRules)
	admin.Get("/rules/:id", h.GetRule)
	admin.Post("/rules", h.CreateRule)
	admin.Put("/rules/:id", h.UpdateRule)
	admin.Post("/rules/:id/status", h.SetRuleStatus)
	admin.Get("/rules/:id/stats", h.GetRuleStats)

	if h.events != nil {
		admin.Get("/events", h.events.List)
		admin.Get("/events/trace/:traceId", h.events.GetTrace)
	}
}

func (h *Handler) ListRules(c *fiber.Ctx) error {
	rules, err := h.rules.List(c.UserContext(), store.RuleFilter{
		HookPoint:  c.Query("hookPoint"),
		Status:     c.Query("status"),
		DataObject: c.Query("dataObject"),
	})
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	return c.JSON(fiber.Map{"data": rules})
}

func (h *Handler) GetRule(c *fiber.Ctx) error {
	rule, err := h.loadRule(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rule})
}

func (h *Handler) CreateRule(c *fiber.Ctx) error {
	var rule metadata.Rule
	if err := c.BodyParser(&rule); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	if errs := engine.ValidateRule(&rule); len(errs) > 0 {
		return engine.ConfigValidationError(errs)
	}
	if user := auth.GetUser(c); user != nil {
		rule.CreatedBy = user.ID
	}

	created, err := h.rules.Create(c.UserContext(), &rule)
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.NewAppError("CONFLICT", 409, fmt.Sprintf("Rule with id %s already exists", rule.ID))
		}
		return fmt.Errorf("create rule: %w", err)
	}

	h.reload(c.UserContext())
	log.WithField("rule_id", created.ID).Infof("Rule created: %s", created.Name)
	return c.Status(201).JSON(fiber.Map{"data": created})
}

// UpdateRule replaces every admin-owned field of the rule. Arrays in the
// payload replace the stored arrays; statistics in the payload are ignored.
func (h *Handler) UpdateRule(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.loadRule(c.UserContext(), id); err != nil {
		return err
	}

	var rule metadata.Rule
	if err := c.BodyParser(&rule); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	rule.ID = id
	if errs := engine.ValidateRule(&rule); len(errs) > 0 {
		return engine.ConfigValidationError(errs)
	}

	updated, err := h.rules.Update(c.UserContext(), &rule)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.NotFoundError("Rule", id)
		}
		return fmt.Errorf("update rule: %w", err)
	}

	h.reload(c.UserContext())
	return c.JSON(fiber.Map{"data": updated})
}

// SetRuleStatus handles POST /api/_admin/rules/:id/status. Rules are never
// deleted; archiving takes them out of hook batches.
func (h *Handler) SetRuleStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	var body struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	if !metadata.ValidStatus(body.Status) {
		return engine.ValidationError([]engine.ErrorDetail{{
			Field:   "status",
			Rule:    "enum",
			Message: fmt.Sprintf("unknown status %q", body.Status),
		}})
	}

	rule, err := h.rules.SetStatus(c.UserContext(), id, body.Status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.NotFoundError("Rule", id)
		}
		return fmt.Errorf("set rule status: %w", err)
	}

	h.reload(c.UserContext())
	log.WithField("rule_id", id).Infof("Rule status changed to %s", body.Status)
	return c.JSON(fiber.Map{"data": rule})
}

func (h *Handler) GetRuleStats(c *fiber.Ctx) error {
	rule, err := h.loadRule(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ruleId":          rule.ID,
		"usageCount":      rule.UsageCount,
		"executionCount":  rule.ExecutionCount,
		"successCount":    rule.SuccessCount,
		"failureCount":    rule.FailureCount,
		"lastExecutedAt":  rule.LastExecutedAt,
		"successRate":     rule.SuccessRate(),
		"isEffective":     rule.IsEffective(),
		"complexityScore": rule.ComplexityScore(),
	}})
}

func (h *Handler) loadRule(ctx context.Context, id string) (*metadata.Rule, error) {
	rule, err := h.rules.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, engine.NotFoundError("Rule", id)
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

// reload refreshes the in-memory registry after a write. The write itself
// has already succeeded, so a failed reload is only logged; the scheduler
// retries on its next tick.
func (h *Handler) reload(ctx context.Context) {
	if err := metadata.Reload(ctx, h.rules, h.registry); err != nil {
		log.Errorf("reload registry: %v", err)
	}
}
