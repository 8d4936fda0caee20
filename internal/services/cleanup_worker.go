package services

import (
	"context"
	"time"

	"github.com/example/forwardly/internal/logging"
)

const otpRetention = 24 * time.Hour

// CleanupWorker periodically purges expired sessions and old OTP rows and
// flags overdue payments.
type CleanupWorker struct {
	sessions *SessionService
	otps     *OTPService
	payments *PaymentService
	interval time.Duration
	now      Clock
	log      logging.Logger
}

func NewCleanupWorker(sessions *SessionService, otps *OTPService, payments *PaymentService, interval time.Duration, now Clock, log logging.Logger) *CleanupWorker {
	return &CleanupWorker{
		sessions: sessions,
		otps:     otps,
		payments: payments,
		interval: interval,
		now:      clockOrSystem(now),
		log:      log.With("worker", "cleanup"),
	}
}

// Run ticks until ctx is cancelled. It runs once immediately.
func (w *CleanupWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info(ctx, "cleanup worker started", "interval", w.interval)
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info(ctx, "cleanup worker stopped")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// CleanupResult counts what one pass removed or changed.
type CleanupResult struct {
	Sessions int64
	OTPCodes int64
	Overdue  int64
}

// RunOnce performs one pass. Failures are logged; the next tick retries.
func (w *CleanupWorker) RunOnce(ctx context.Context) CleanupResult {
	now := w.now()
	var res CleanupResult
	var err error

	if res.Sessions, err = w.sessions.PurgeExpired(ctx, now); err != nil {
		w.log.Error(ctx, "purge sessions failed", "error", err)
	}
	if res.OTPCodes, err = w.otps.PurgeStale(ctx, now.Add(-otpRetention)); err != nil {
		w.log.Error(ctx, "purge otp codes failed", "error", err)
	}
	if res.Overdue, err = w.payments.MarkOverdue(ctx, now); err != nil {
		w.log.Error(ctx, "mark overdue payments failed", "error", err)
	}

	if res.Sessions+res.OTPCodes+res.Overdue > 0 {
		w.log.Info(ctx, "cleanup pass",
			"sessions_purged", res.Sessions,
			"otp_codes_purged", res.OTPCodes,
			"payments_overdue", res.Overdue,
		)
	}
	return res
}
