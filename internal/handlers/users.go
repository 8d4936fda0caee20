package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/services"
)

// UserHandler exposes the caller's own profile.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Me returns the authenticated user.
func (h *UserHandler) Me(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	user, err := h.users.GetByID(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": user})
}

// ownUserID parses :id and rejects ids other than the caller's.
func ownUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return uuid.Nil, err
	}
	if id != userID {
		return uuid.Nil, apperr.Forbidden("cannot access another user's profile")
	}
	return id, nil
}

func (h *UserHandler) Get(c *fiber.Ctx) error {
	id, err := ownUserID(c)
	if err != nil {
		return err
	}

	user, err := h.users.GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": user})
}

// Update changes profile fields. Omitted fields stay as they are.
func (h *UserHandler) Update(c *fiber.Ctx) error {
	id, err := ownUserID(c)
	if err != nil {
		return err
	}

	var profile services.Profile
	if err := parseBody(c, &profile); err != nil {
		return err
	}

	user, err := h.users.UpdateProfile(c.UserContext(), id, profile)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": user})
}
