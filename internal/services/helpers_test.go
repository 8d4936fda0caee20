package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/notify"
	"github.com/example/forwardly/internal/storage"
	"github.com/example/forwardly/internal/testutil"
)

type recordingNotifier struct {
	mu        sync.Mutex
	updates   []notify.StatusUpdate
	purchases []notify.PurchaseAlert
	payments  []notify.PaymentAlert
	err       error
}

func (r *recordingNotifier) NotifyStatusChange(_ context.Context, u notify.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return r.err
}

func (r *recordingNotifier) NotifyNewPurchaseRequest(_ context.Context, a notify.PurchaseAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases = append(r.purchases, a)
	return r.err
}

func (r *recordingNotifier) NotifyPaymentProcessing(_ context.Context, a notify.PaymentAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, a)
	return r.err
}

type testEnv struct {
	db          *gorm.DB
	clock       *testutil.Clock
	notifier    *recordingNotifier
	store       *storage.MemoryStore
	otps        *OTPService
	sessions    *SessionService
	users       *UserService
	timeline    *TimelineService
	packages    *PackageService
	purchases   *PurchaseService
	attachments *AttachmentService
	payments    *PaymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.OpenDB(t)
	clock := testutil.NewClock(time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC))
	log := logging.Discard()
	n := &recordingNotifier{}
	store := storage.NewMemoryStore("http://files.test")
	timeline := NewTimelineService(db, clock.Now)

	return &testEnv{
		db:       db,
		clock:    clock,
		notifier: n,
		store:    store,
		otps:     NewOTPService(db, 10*time.Minute, 5, clock.Now, log),
		sessions: NewSessionService(db, SessionConfig{
			Secret:     "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
			PendingTTL: 30 * time.Minute,
		}, clock.Now, log),
		users:       NewUserService(db, clock.Now, log),
		timeline:    timeline,
		packages:    NewPackageService(db, timeline, n, clock.Now, log),
		purchases:   NewPurchaseService(db, timeline, n, n, clock.Now, log),
		attachments: NewAttachmentService(db, store, 20*1024*1024, clock.Now, log),
		payments:    NewPaymentService(db, n, clock.Now, log),
	}
}

func (e *testEnv) createUser(t *testing.T, phone string) *models.User {
	t.Helper()
	first := "Test"
	user, err := e.users.Create(context.Background(), phone, Profile{FirstName: &first})
	require.NoError(t, err)
	return user
}

func (e *testEnv) createUserWithEmail(t *testing.T, phone, email string) *models.User {
	t.Helper()
	user, err := e.users.Create(context.Background(), phone, Profile{Email: &email})
	require.NoError(t, err)
	return user
}

func strPtr(s string) *string { return &s }

func idPtr(id uuid.UUID) *uuid.UUID { return &id }
