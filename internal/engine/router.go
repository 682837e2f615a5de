package engine

import "github.com/gofiber/fiber/v2"

// RegisterExecutionRoutes registers the rule and hook-point execution endpoints.
// Routes are registered directly on the app (not via app.Group("/api"))
// so the middleware chain does not leak onto /api/_admin.
func RegisterExecutionRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	wrap := func(fn fiber.Handler) []fiber.Handler {
		all := make([]fiber.Handler, len(middleware)+1)
		copy(all, middleware)
		all[len(middleware)] = fn
		return all
	}

	app.Post("/api/rules/:id/execute", wrap(h.ExecuteRule)...)
	app.Post("/api/hooks/:hookPoint/execute", wrap(h.ExecuteHook)...)
}
