package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/forwardly/internal/services"
	"github.com/example/forwardly/internal/utils"
)

// PurchaseHandler serves purchase requests of the caller.
type PurchaseHandler struct {
	purchases *services.PurchaseService
}

func NewPurchaseHandler(purchases *services.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

func (h *PurchaseHandler) Create(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req services.NewPurchaseRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	created, err := h.purchases.Create(c.UserContext(), userID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": created})
}

func (h *PurchaseHandler) List(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	requests, total, err := h.purchases.List(c.UserContext(), userID, c.Query("status"), pg)
	if err != nil {
		return err
	}
	return paginated(c, requests, pg, total)
}

func (h *PurchaseHandler) Get(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	req, err := h.purchases.Get(c.UserContext(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": req})
}

// Cancel withdraws a request that is still pending review or quoted.
func (h *PurchaseHandler) Cancel(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	req, err := h.purchases.Cancel(c.UserContext(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": req})
}
