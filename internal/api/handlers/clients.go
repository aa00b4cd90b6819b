package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

type registerClientRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (h *HandlerSet) registerClient(ctx *fiber.Ctx) error {
	var req registerClientRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	clients, err := h.registry.Register(req.Host, req.Port)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"clients": clients})
}

func (h *HandlerSet) listClients(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"clients": h.registry.List()})
}
