package engine

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	service     *Service
	hookTimeout time.Duration
}

// NewHandler wires the execution endpoints. A positive hookTimeout bounds
// each hook-point batch.
func NewHandler(svc *Service, hookTimeout time.Duration) *Handler {
	return &Handler{service: svc, hookTimeout: hookTimeout}
}

// ExecuteRule handles POST /api/rules/:id/execute
func (h *Handler) ExecuteRule(c *fiber.Ctx) error {
	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}
	if body.Data == nil {
		return InvalidPayloadError("data is required")
	}

	res, err := h.service.ExecuteRule(c.UserContext(), c.Params("id"), body.Data)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// ExecuteHook handles POST /api/hooks/:hookPoint/execute
func (h *Handler) ExecuteHook(c *fiber.Ctx) error {
	var req HookRequest
	if err := c.BodyParser(&req); err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}
	req.HookPoint = c.Params("hookPoint")

	ctx := c.UserContext()
	if h.hookTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.hookTimeout)
		defer cancel()
	}

	res, err := h.service.RunHook(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.WithField("hook_point", req.HookPoint).Warnf("hook batch timed out after %s", h.hookTimeout)
			return HookTimeoutError(req.HookPoint)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// ErrorHandler renders AppErrors in the standard envelope and hides
// everything else behind INTERNAL_ERROR.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: &AppError{Code: "HTTP_ERROR", Status: fiberErr.Code, Message: fiberErr.Message},
		})
	}

	log.Errorf("unhandled error: %v", err)
	ie := InternalError()
	return c.Status(ie.Status).JSON(ErrorResponse{Error: ie})
}
