package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"golang.org/x/sync/errgroup"

	"github.com/example/forwardly/internal/auth"
	"github.com/example/forwardly/internal/config"
	"github.com/example/forwardly/internal/database"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/middleware"
	"github.com/example/forwardly/internal/notify"
	"github.com/example/forwardly/internal/ratelimit"
	"github.com/example/forwardly/internal/routes"
	"github.com/example/forwardly/internal/services"
	"github.com/example/forwardly/internal/storage"
)

func main() {
	cfg := config.Load()
	appLog := logging.New(cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLog); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, appLog logging.Logger) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBLogLevel)
	if err != nil {
		return err
	}

	var counter ratelimit.Counter = ratelimit.NewMemoryCounter(nil)
	if cfg.RedisAddr != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		counter = ratelimit.NewRedisCounter(rdb)
	} else {
		appLog.Warn(ctx, "REDIS_ADDR not set, rate limits are per process")
	}

	var store storage.ObjectStore
	var devFiles *storage.MemoryStore
	if cfg.S3Bucket != "" {
		store, err = storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return err
		}
	} else {
		appLog.Warn(ctx, "S3_BUCKET not set, attachments are kept in memory")
		devFiles = storage.NewMemoryStore("http://localhost:" + cfg.AppPort + "/files")
		store = devFiles
	}

	var otpSender notify.OTPSender = notify.NewLogSender(appLog)
	if cfg.WhatsAppAPIURL != "" {
		otpSender = notify.NewWhatsAppSender(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIToken, cfg.OTPTTL)
	}
	operators := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramAdminChat, appLog)
	mailer := notify.NewEmailSender(cfg.ResendAPIKey, cfg.EmailFrom, appLog)

	clock := services.SystemClock
	timeline := services.NewTimelineService(db, clock)
	otps := services.NewOTPService(db, cfg.OTPTTL, cfg.OTPMaxAttempts, clock, appLog)
	users := services.NewUserService(db, clock, appLog)
	sessions := services.NewSessionService(db, services.SessionConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		PendingTTL: cfg.PendingSessionTTL,
	}, clock, appLog)
	packages := services.NewPackageService(db, timeline, mailer, clock, appLog)
	purchases := services.NewPurchaseService(db, timeline, mailer, operators, clock, appLog)
	payments := services.NewPaymentService(db, operators, clock, appLog)
	attachments := services.NewAttachmentService(db, store, int64(cfg.UploadMaxBytes), clock, appLog)
	admin := services.NewAdminService(db, packages, purchases, payments)

	resolver := &auth.ChainResolver{
		Session:        auth.NewSessionResolver(cfg.JWTSecret, sessions, clock),
		ProviderPrefix: cfg.AuthProviderPrefix,
	}
	if cfg.AuthProviderURL != "" {
		resolver.Provider = auth.NewProviderResolver(cfg.AuthProviderURL, users, appLog)
	}

	app := fiber.New(fiber.Config{
		AppName:      "Forwardly Backend",
		ErrorHandler: middleware.ErrorHandler(appLog),
		// multipart overhead on top of the largest accepted file
		BodyLimit: cfg.UploadMaxBytes + 1024*1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New())

	deps := routes.Deps{
		Resolver:        resolver,
		Counter:         counter,
		OTPSender:       otpSender,
		OTPs:            otps,
		Sessions:        sessions,
		Users:           users,
		Packages:        packages,
		Purchases:       purchases,
		Payments:        payments,
		Attachments:     attachments,
		Admin:           admin,
		Log:             appLog,
		OTPTTL:          cfg.OTPTTL,
		OTPDebug:        cfg.OTPDebug && !cfg.IsProduction(),
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
	}
	if devFiles != nil {
		deps.Files = devFiles
	}
	routes.Register(app, deps)

	worker := services.NewCleanupWorker(sessions, otps, payments, cfg.CleanupInterval, clock, appLog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLog.Info(gctx, "starting server", "port", cfg.AppPort)
		return app.Listen(":" + cfg.AppPort)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		appLog.Info(context.Background(), "shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
