package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/services"
	"github.com/example/forwardly/internal/utils"
)

// AdminHandler bundles the operator endpoints.
type AdminHandler struct {
	admin       *services.AdminService
	users       *services.UserService
	packages    *services.PackageService
	purchases   *services.PurchaseService
	payments    *services.PaymentService
	attachments *services.AttachmentService
}

func NewAdminHandler(
	admin *services.AdminService,
	users *services.UserService,
	packages *services.PackageService,
	purchases *services.PurchaseService,
	payments *services.PaymentService,
	attachments *services.AttachmentService,
) *AdminHandler {
	return &AdminHandler{
		admin:       admin,
		users:       users,
		packages:    packages,
		purchases:   purchases,
		payments:    payments,
		attachments: attachments,
	}
}

// Stats returns the dashboard figures.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.admin.Dashboard(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": stats})
}

// ListUsers returns registered users with pagination and search.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	users, total, err := h.users.List(c.UserContext(), c.Query("search"), pg)
	if err != nil {
		return err
	}
	return paginated(c, users, pg, total)
}

func optionalUserID(c *fiber.Ctx) (*uuid.UUID, error) {
	raw := c.Query("user_id")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("invalid user_id")
	}
	return &id, nil
}

func (h *AdminHandler) ListPackages(c *fiber.Ctx) error {
	userID, err := optionalUserID(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	packages, total, err := h.packages.ListAll(c.UserContext(), services.PackageFilter{
		Status: c.Query("status"),
		UserID: userID,
		Search: c.Query("search"),
	}, pg)
	if err != nil {
		return err
	}
	return paginated(c, packages, pg, total)
}

// GetPackage returns any package with its timeline and attachments.
func (h *AdminHandler) GetPackage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	pkg, err := h.packages.GetAny(ctx, id)
	if err != nil {
		return err
	}
	attachments, err := h.attachments.ListFor(ctx, models.AttachmentRelatedPackage, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": pkg, "attachments": attachments})
}

func (h *AdminHandler) UpdatePackageStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req services.PackageStatusChange
	if err := parseBody(c, &req); err != nil {
		return err
	}

	pkg, err := h.packages.UpdateStatus(c.UserContext(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": pkg})
}

func (h *AdminHandler) ListPurchaseRequests(c *fiber.Ctx) error {
	userID, err := optionalUserID(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	requests, total, err := h.purchases.ListAll(c.UserContext(), services.PurchaseFilter{
		Status: c.Query("status"),
		UserID: userID,
		Search: c.Query("search"),
	}, pg)
	if err != nil {
		return err
	}
	return paginated(c, requests, pg, total)
}

// GetPurchaseRequest returns any request with request-level attachments.
func (h *AdminHandler) GetPurchaseRequest(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	req, err := h.purchases.GetAny(ctx, id)
	if err != nil {
		return err
	}
	attachments, err := h.attachments.ListFor(ctx, models.AttachmentRelatedPurchaseRequest, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": req, "attachments": attachments})
}

func (h *AdminHandler) UpdatePurchaseStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req services.PurchaseStatusChange
	if err := parseBody(c, &req); err != nil {
		return err
	}

	updated, err := h.purchases.UpdateStatus(c.UserContext(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": updated})
}

func (h *AdminHandler) ListPayments(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	payments, total, err := h.payments.ListAll(c.UserContext(), c.Query("status"), pg)
	if err != nil {
		return err
	}
	return paginated(c, payments, pg, total)
}

// CreatePayment bills a customer. The amount is stored as given.
func (h *AdminHandler) CreatePayment(c *fiber.Ctx) error {
	var req services.NewPaymentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	payment, err := h.payments.Create(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": payment})
}

type paymentStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandler) UpdatePaymentStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req paymentStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	payment, err := h.payments.UpdateStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": payment})
}

// PaymentStats aggregates payments of every user.
func (h *AdminHandler) PaymentStats(c *fiber.Ctx) error {
	stats, err := h.payments.Stats(c.UserContext(), uuid.Nil)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": stats})
}
