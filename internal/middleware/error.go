package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
)

// StatusOf maps an error onto an HTTP status.
func StatusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrInvalidOTP):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthenticated), errors.Is(err, apperr.ErrInvalidRefreshToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, apperr.ErrRateLimited):
		return fiber.StatusTooManyRequests
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders every error as {"success": false, "error": "..."}.
// Internal failures are logged and reported without detail.
func ErrorHandler(log logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusOf(err)

		message := apperr.Message(err)
		var fe *fiber.Error
		if errors.As(err, &fe) {
			message = fe.Message
		}
		if status >= fiber.StatusInternalServerError {
			log.Error(c.UserContext(), "request failed",
				"method", c.Method(),
				"path", c.Path(),
				"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
				"error", err,
			)
			message = "internal server error"
		}

		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   message,
		})
	}
}
