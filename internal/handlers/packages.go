package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/forwardly/internal/services"
	"github.com/example/forwardly/internal/utils"
)

// PackageHandler serves the customer's packages.
type PackageHandler struct {
	packages *services.PackageService
}

func NewPackageHandler(packages *services.PackageService) *PackageHandler {
	return &PackageHandler{packages: packages}
}

// Create registers a pre-alert for an inbound shipment.
func (h *PackageHandler) Create(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req services.NewPackage
	if err := parseBody(c, &req); err != nil {
		return err
	}

	pkg, err := h.packages.Create(c.UserContext(), userID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": pkg})
}

func (h *PackageHandler) List(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	packages, total, err := h.packages.List(c.UserContext(), userID, c.Query("status"), pg)
	if err != nil {
		return err
	}
	return paginated(c, packages, pg, total)
}

func (h *PackageHandler) Get(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	pkg, err := h.packages.Get(c.UserContext(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": pkg})
}

// Label returns a PNG QR code of the tracking number.
func (h *PackageHandler) Label(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	png, err := h.packages.Label(c.UserContext(), userID, id)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}
