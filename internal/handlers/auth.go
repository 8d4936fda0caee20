package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/middleware"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/notify"
	"github.com/example/forwardly/internal/services"
	"github.com/example/forwardly/internal/utils"
)

// AuthHandler serves the phone OTP login and registration flow.
type AuthHandler struct {
	otps     *services.OTPService
	sessions *services.SessionService
	users    *services.UserService
	sender   notify.OTPSender
	otpTTL   time.Duration
	otpDebug bool
	log      logging.Logger
}

// AuthOptions tunes responses of the OTP endpoints.
type AuthOptions struct {
	OTPTTL time.Duration
	// OTPDebug echoes the code in the send-otp response. Never enable in production.
	OTPDebug bool
}

func NewAuthHandler(otps *services.OTPService, sessions *services.SessionService, users *services.UserService, sender notify.OTPSender, opts AuthOptions, log logging.Logger) *AuthHandler {
	return &AuthHandler{
		otps:     otps,
		sessions: sessions,
		users:    users,
		sender:   sender,
		otpTTL:   opts.OTPTTL,
		otpDebug: opts.OTPDebug,
		log:      log,
	}
}

type sendOTPRequest struct {
	Phone   string `json:"phone"`
	Purpose string `json:"purpose"`
}

// SendOTP issues a code and hands it to the delivery channel.
func (h *AuthHandler) SendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Phone) == "" {
		return apperr.Validation("phone is required")
	}
	if req.Purpose == "" {
		req.Purpose = models.OTPPurposeLogin
	}

	ctx := c.UserContext()
	code, err := h.otps.CreateOTPCode(ctx, req.Phone, req.Purpose)
	if err != nil {
		return err
	}

	phone := utils.NormalizePhone(req.Phone)
	if err := h.sender.SendOTP(ctx, phone, code); err != nil {
		return apperr.Upstream("deliver otp", err)
	}

	resp := fiber.Map{
		"success":    true,
		"message":    "OTP sent",
		"expires_in": int(h.otpTTL.Seconds()),
	}
	if h.otpDebug {
		resp["code"] = code
	}
	return c.JSON(resp)
}

type verifyOTPRequest struct {
	Phone   string `json:"phone"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
}

// VerifyOTP checks the code and opens a session: authenticated for a known
// phone, pending registration otherwise.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Phone) == "" {
		return apperr.Validation("phone is required")
	}
	if req.Purpose == "" {
		req.Purpose = models.OTPPurposeLogin
	}

	ctx := c.UserContext()
	if err := h.otps.VerifyOTPCode(ctx, req.Phone, strings.TrimSpace(req.Code), req.Purpose); err != nil {
		return err
	}

	phone := utils.NormalizePhone(req.Phone)
	user, err := h.users.FindByPhone(ctx, phone)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	meta := clientMeta(c)
	if user == nil {
		issued, err := h.sessions.CreateSession(ctx, services.NewSession{
			Phone:     phone,
			Type:      models.SessionTypePendingRegistration,
			UserAgent: meta.UserAgent,
			IPAddress: meta.IPAddress,
		})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success":      true,
			"is_new_user":  true,
			"session_type": models.SessionTypePendingRegistration,
			"data":         sessionPayload(issued),
		})
	}

	issued, err := h.sessions.CreateSession(ctx, services.NewSession{
		Phone:     phone,
		Type:      models.SessionTypeAuthenticated,
		UserID:    &user.ID,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	})
	if err != nil {
		return err
	}
	if err := h.users.TouchLastLogin(ctx, user.ID); err != nil {
		h.log.Warn(ctx, "last login update failed", "user_id", user.ID, "error", err)
	}

	h.log.Info(ctx, "user logged in", "user_id", user.ID, "session_id", issued.Session.ID)
	return c.JSON(fiber.Map{
		"success":      true,
		"is_new_user":  false,
		"session_type": models.SessionTypeAuthenticated,
		"data":         sessionPayload(issued),
		"user":         user,
	})
}

type completeRegistrationRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	services.Profile
}

// CompleteRegistration turns a pending-registration session into an account.
func (h *AuthHandler) CompleteRegistration(c *fiber.Ctx) error {
	var req completeRegistrationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.SessionID == uuid.Nil {
		return apperr.Validation("session_id is required")
	}

	user, issued, err := h.sessions.CompleteRegistration(c.UserContext(), req.SessionID, req.Profile, clientMeta(c))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":      true,
		"session_type": models.SessionTypeAuthenticated,
		"data":         sessionPayload(issued),
		"user":         user,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token for the session behind a refresh token.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	issued, err := h.sessions.RefreshSession(c.UserContext(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": sessionPayload(issued)})
}

// Logout ends the caller's session. Provider tokens have no local session.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		return apperr.Unauthenticated("unauthorized")
	}
	if principal.SessionID != uuid.Nil {
		if err := h.sessions.InvalidateSession(c.UserContext(), principal.SessionID); err != nil {
			return err
		}
	}
	return c.JSON(fiber.Map{"success": true, "message": "logged out"})
}

// ListSessions returns the caller's live sessions.
func (h *AuthHandler) ListSessions(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	sessions, err := h.sessions.ListUserSessions(c.UserContext(), userID)
	if err != nil {
		return err
	}

	principal, _ := middleware.GetPrincipal(c)
	data := make([]fiber.Map, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		data = append(data, fiber.Map{
			"id":           s.ID,
			"user_agent":   s.UserAgent,
			"ip_address":   s.IPAddress,
			"created_at":   s.CreatedAt,
			"last_used_at": s.LastUsedAt,
			"expires_at":   s.ExpiresAt,
			"current":      s.ID == principal.SessionID,
		})
	}
	return c.JSON(fiber.Map{"success": true, "data": data})
}

// RevokeSession deletes one of the caller's sessions.
func (h *AuthHandler) RevokeSession(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := h.sessions.InvalidateUserSession(c.UserContext(), userID, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func clientMeta(c *fiber.Ctx) services.ClientMeta {
	return services.ClientMeta{
		UserAgent: c.Get(fiber.HeaderUserAgent),
		IPAddress: c.IP(),
	}
}

func sessionPayload(issued *services.IssuedSession) fiber.Map {
	payload := fiber.Map{
		"session_id":        issued.Session.ID,
		"session_type":      issued.Session.SessionType,
		"access_token":      issued.AccessToken,
		"access_expires_at": issued.AccessExpiresAt,
		"expires_at":        issued.Session.ExpiresAt,
	}
	if issued.RefreshToken != "" {
		payload["refresh_token"] = issued.RefreshToken
	}
	return payload
}
