package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/contact-dialer/internal/app"
	"github.com/acme/contact-dialer/internal/broadcast"
	"github.com/acme/contact-dialer/internal/engine"
)

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	container *app.Container
	engine    *engine.Engine
	registry  *broadcast.Registry
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container) *HandlerSet {
	return &HandlerSet{
		container: container,
		engine:    container.Engine(),
		registry:  container.Registry(),
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Post("/datasets", h.submitDataset)
	v1.Post("/controls/:action", h.controlAction)
	v1.Get("/status", h.status)
	v1.Get("/events", h.events)

	clients := v1.Group("/clients")
	clients.Post("/", h.registerClient)
	clients.Get("/", h.listClients)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.container.Logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	snapshot := h.engine.Status()
	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
		"mode":   snapshot.Mode,
	})
}
