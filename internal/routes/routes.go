package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/forwardly/internal/auth"
	"github.com/example/forwardly/internal/handlers"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/middleware"
	"github.com/example/forwardly/internal/notify"
	"github.com/example/forwardly/internal/ratelimit"
	"github.com/example/forwardly/internal/services"
)

// Deps is everything the HTTP layer needs.
type Deps struct {
	Resolver    auth.TokenResolver
	Counter     ratelimit.Counter
	OTPSender   notify.OTPSender
	OTPs        *services.OTPService
	Sessions    *services.SessionService
	Users       *services.UserService
	Packages    *services.PackageService
	Purchases   *services.PurchaseService
	Payments    *services.PaymentService
	Attachments *services.AttachmentService
	Admin       *services.AdminService
	Log         logging.Logger
	// Files, when set, serves in-memory attachments under /files.
	Files       handlers.FileSource

	OTPTTL          time.Duration
	OTPDebug        bool
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, d Deps) {
	authHandler := handlers.NewAuthHandler(d.OTPs, d.Sessions, d.Users, d.OTPSender, handlers.AuthOptions{
		OTPTTL:   d.OTPTTL,
		OTPDebug: d.OTPDebug,
	}, d.Log)
	userHandler := handlers.NewUserHandler(d.Users)
	packageHandler := handlers.NewPackageHandler(d.Packages)
	purchaseHandler := handlers.NewPurchaseHandler(d.Purchases)
	paymentHandler := handlers.NewPaymentHandler(d.Payments)
	attachmentHandler := handlers.NewAttachmentHandler(d.Attachments)
	adminHandler := handlers.NewAdminHandler(d.Admin, d.Users, d.Packages, d.Purchases, d.Payments, d.Attachments)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if d.Files != nil {
		app.Get("/files/*", handlers.NewFileHandler(d.Files).Serve)
	}

	api := app.Group("/api")

	// each OTP endpoint has its own window per client IP
	api.Post("/send-otp",
		middleware.RateLimit(d.Counter, "send-otp", d.RateLimitMax, d.RateLimitWindow, d.Log),
		authHandler.SendOTP)
	api.Post("/verify-otp",
		middleware.RateLimit(d.Counter, "verify-otp", d.RateLimitMax, d.RateLimitWindow, d.Log),
		authHandler.VerifyOTP)

	authGroup := api.Group("/auth")
	authGroup.Post("/complete-registration", authHandler.CompleteRegistration)
	authGroup.Post("/refresh", authHandler.Refresh)

	// Protected routes
	protected := api.Group("", middleware.RequireAuth(d.Resolver))

	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/sessions", authHandler.ListSessions)
	protected.Delete("/sessions/:id", authHandler.RevokeSession)

	protected.Get("/users/me", userHandler.Me)
	protected.Get("/users/:id", userHandler.Get)
	protected.Put("/users/:id", userHandler.Update)

	protected.Get("/packages", packageHandler.List)
	protected.Post("/packages", packageHandler.Create)
	protected.Get("/packages/:id", packageHandler.Get)
	protected.Get("/packages/:id/label", packageHandler.Label)

	protected.Get("/purchase-requests", purchaseHandler.List)
	protected.Post("/purchase-requests", purchaseHandler.Create)
	protected.Get("/purchase-requests/:id", purchaseHandler.Get)
	protected.Post("/purchase-requests/:id/cancel", purchaseHandler.Cancel)

	protected.Get("/payments", paymentHandler.List)
	protected.Get("/payments/stats", paymentHandler.Stats)
	protected.Get("/payments/:id", paymentHandler.Get)
	protected.Post("/payments/:id/pay", paymentHandler.Pay)

	protected.Get("/attachments", attachmentHandler.List)
	protected.Post("/attachments", attachmentHandler.Upload)
	protected.Patch("/attachments/:id", attachmentHandler.Link)
	protected.Delete("/attachments/:id", attachmentHandler.Delete)

	admin := protected.Group("/admin", middleware.RequireAdmin(d.Users))
	admin.Get("/stats", adminHandler.Stats)
	admin.Get("/users", adminHandler.ListUsers)
	admin.Get("/packages", adminHandler.ListPackages)
	admin.Get("/packages/:id", adminHandler.GetPackage)
	admin.Patch("/packages/:id/status", adminHandler.UpdatePackageStatus)
	admin.Get("/purchase-requests", adminHandler.ListPurchaseRequests)
	admin.Get("/purchase-requests/:id", adminHandler.GetPurchaseRequest)
	admin.Patch("/purchase-requests/:id/status", adminHandler.UpdatePurchaseStatus)
	admin.Get("/payments", adminHandler.ListPayments)
	admin.Post("/payments", adminHandler.CreatePayment)
	admin.Get("/payments/stats", adminHandler.PaymentStats)
	admin.Patch("/payments/:id/status", adminHandler.UpdatePaymentStatus)
}
