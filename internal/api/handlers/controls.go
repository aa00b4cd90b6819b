package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func (h *HandlerSet) controlAction(ctx *fiber.Ctx) error {
	action := ctx.Params("action")

	result, err := h.engine.Control(ctx.Context(), action)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"action":  action,
		"applied": result.Applied,
		"message": result.Message,
	})
}

func (h *HandlerSet) status(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(h.engine.Status())
}

func (h *HandlerSet) events(ctx *fiber.Ctx) error {
	since := uint64(0)
	if raw := ctx.Query("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid since parameter")
		}
		since = parsed
	}

	events, lastID := h.engine.Events(since)
	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"events":  events,
		"last_id": lastID,
	})
}
