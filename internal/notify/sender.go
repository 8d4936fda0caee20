// Package notify delivers OTP codes, operator alerts and customer emails.
// Every notifier here is optional: an unconfigured one logs and returns nil.
package notify

import (
	"context"

	"github.com/example/forwardly/internal/logging"
)

// OTPSender delivers a one-time code to a phone number.
type OTPSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log instead of delivering them.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendOTP(ctx context.Context, phone, code string) error {
	s.log.Info(ctx, "otp delivery mocked", "phone", phone, "code", code)
	return nil
}
