package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/forwardly/internal/services"
	"github.com/example/forwardly/internal/utils"
)

// PaymentHandler serves the caller's payment requests.
type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func (h *PaymentHandler) List(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	payments, total, err := h.payments.List(c.UserContext(), userID, c.Query("status"), pg)
	if err != nil {
		return err
	}
	return paginated(c, payments, pg, total)
}

func (h *PaymentHandler) Get(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	payment, err := h.payments.Get(c.UserContext(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": payment})
}

// Stats sums the caller's payments per status. A failed query is a 500,
// never an all-zero body.
func (h *PaymentHandler) Stats(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	stats, err := h.payments.Stats(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": stats})
}

type payRequest struct {
	Method string `json:"method"`
}

// Pay marks the payment as submitted with one of its accepted methods.
func (h *PaymentHandler) Pay(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req payRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	payment, err := h.payments.Pay(c.UserContext(), userID, id, req.Method)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": payment})
}
