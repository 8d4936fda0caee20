package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/forwardly/internal/auth"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/middleware"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/notify"
	"github.com/example/forwardly/internal/ratelimit"
	"github.com/example/forwardly/internal/services"
	"github.com/example/forwardly/internal/storage"
	"github.com/example/forwardly/internal/testutil"
)

const testSecret = "route-test-secret"

// captureSender keeps the last code sent to each phone.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *captureSender) SendOTP(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phone] = code
	return nil
}

func (s *captureSender) last(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

type nopNotifier struct{}

func (nopNotifier) NotifyStatusChange(context.Context, notify.StatusUpdate) error         { return nil }
func (nopNotifier) NotifyNewPurchaseRequest(context.Context, notify.PurchaseAlert) error { return nil }
func (nopNotifier) NotifyPaymentProcessing(context.Context, notify.PaymentAlert) error   { return nil }

type testServer struct {
	app      *fiber.App
	db       *gorm.DB
	clock    *testutil.Clock
	sender   *captureSender
	store    *storage.MemoryStore
	users    *services.UserService
	sessions *services.SessionService
	packages *services.PackageService
	payments *services.PaymentService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.OpenDB(t)
	clock := testutil.NewClock(time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC))
	log := logging.Discard()
	sender := &captureSender{codes: map[string]string{}}
	store := storage.NewMemoryStore("http://files.test")
	n := nopNotifier{}

	timeline := services.NewTimelineService(db, clock.Now)
	otps := services.NewOTPService(db, 10*time.Minute, 5, clock.Now, log)
	users := services.NewUserService(db, clock.Now, log)
	sessions := services.NewSessionService(db, services.SessionConfig{
		Secret:     testSecret,
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
		PendingTTL: 30 * time.Minute,
	}, clock.Now, log)
	packages := services.NewPackageService(db, timeline, n, clock.Now, log)
	purchases := services.NewPurchaseService(db, timeline, n, n, clock.Now, log)
	payments := services.NewPaymentService(db, n, clock.Now, log)
	attachments := services.NewAttachmentService(db, store, 1024*1024, clock.Now, log)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(log)})
	Register(app, Deps{
		Resolver: &auth.ChainResolver{
			Session:        auth.NewSessionResolver(testSecret, sessions, clock.Now),
			ProviderPrefix: "pvd_",
		},
		Counter:         ratelimit.NewMemoryCounter(clock.Now),
		OTPSender:       sender,
		OTPs:            otps,
		Sessions:        sessions,
		Users:           users,
		Packages:        packages,
		Purchases:       purchases,
		Payments:        payments,
		Attachments:     attachments,
		Admin:           services.NewAdminService(db, packages, purchases, payments),
		Log:             log,
		Files:           store,
		OTPTTL:          10 * time.Minute,
		RateLimitMax:    5,
		RateLimitWindow: 15 * time.Minute,
	})

	return &testServer{
		app:      app,
		db:       db,
		clock:    clock,
		sender:   sender,
		store:    store,
		users:    users,
		sessions: sessions,
		packages: packages,
		payments: payments,
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	if len(raw) > 0 && resp.Header.Get(fiber.HeaderContentType) == fiber.MIMEApplicationJSON {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp, body
}

func (s *testServer) request(t *testing.T, method, path, token string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return s.do(t, req)
}

func (s *testServer) upload(t *testing.T, token, fileName string, content []byte, fields map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/attachments", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	return s.do(t, req)
}

// loginAs registers phone (if needed) and returns an access token for it.
func (s *testServer) loginAs(t *testing.T, phone string) (*models.User, string) {
	t.Helper()
	ctx := context.Background()
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		user, err = s.users.Create(ctx, phone, services.Profile{})
		require.NoError(t, err)
	}
	issued, err := s.sessions.CreateSession(ctx, services.NewSession{
		Phone:  user.Phone,
		Type:   models.SessionTypeAuthenticated,
		UserID: &user.ID,
	})
	require.NoError(t, err)
	return user, issued.AccessToken
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
