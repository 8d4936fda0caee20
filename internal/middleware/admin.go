package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/models"
)

// UserLookup loads users by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RequireAdmin lets operators through. Must run after RequireAuth.
func RequireAdmin(users UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := GetCurrentUserID(c)
		if !ok {
			return apperr.Unauthenticated("authentication required")
		}

		user, err := users.GetByID(c.UserContext(), userID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Unauthenticated("user no longer exists")
			}
			return err
		}
		if !user.IsAdmin() {
			return apperr.Forbidden("admin access required")
		}
		return c.Next()
	}
}
