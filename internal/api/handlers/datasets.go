package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/contact-dialer/internal/domain"
)

type credentialPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type contactItemPayload struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	EC1Name   string `json:"ec_name_1"`
	EC1Phone  string `json:"ec_phone_1"`
	EC2Name   string `json:"ec_name_2"`
	EC2Phone  string `json:"ec_phone_2"`
	AmountDue string `json:"total_due"`
}

type submitDatasetRequest struct {
	Credential credentialPayload    `json:"credential"`
	Items      []contactItemPayload `json:"items"`
}

func (h *HandlerSet) submitDataset(ctx *fiber.Ctx) error {
	var req submitDatasetRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	items := make([]domain.ContactItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.ContactItem{
			Name:          it.Name,
			PrimaryNumber: it.Phone,
			EC1Name:       it.EC1Name,
			EC1Number:     it.EC1Phone,
			EC2Name:       it.EC2Name,
			EC2Number:     it.EC2Phone,
			AmountDue:     it.AmountDue,
		})
	}

	cred := domain.Credential{Username: req.Credential.Username, Password: req.Credential.Password}
	result, err := h.engine.Submit(cred, items)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(result)
}
