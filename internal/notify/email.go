package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/example/forwardly/internal/logging"
)

// UserNotifier tells customers about changes to their records.
type UserNotifier interface {
	NotifyStatusChange(ctx context.Context, update StatusUpdate) error
}

// StatusUpdate is a package or purchase request status change.
type StatusUpdate struct {
	Email       string
	Name        string
	Subject     string // e.g. "Package 1Z999"
	Status      string
	Description string
}

// EmailSender delivers status updates through Resend.
type EmailSender struct {
	client *resend.Client
	from   string
	log    logging.Logger
}

// NewEmailSender returns a sender; an empty apiKey yields a no-op sender.
func NewEmailSender(apiKey, from string, log logging.Logger) *EmailSender {
	s := &EmailSender{from: from, log: log}
	if apiKey != "" {
		s.client = resend.NewClient(apiKey)
	}
	return s
}

func (s *EmailSender) NotifyStatusChange(ctx context.Context, update StatusUpdate) error {
	if s.client == nil || update.Email == "" {
		s.log.Debug(ctx, "email not sent", "subject", update.Subject, "status", update.Status)
		return nil
	}

	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{update.Email},
		Subject: fmt.Sprintf("%s is now %s", update.Subject, humanStatus(update.Status)),
		Html:    statusEmailHTML(update),
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

func statusEmailHTML(u StatusUpdate) string {
	var b strings.Builder
	b.WriteString("<p>Hello " + html.EscapeString(u.Name) + ",</p>")
	b.WriteString("<p><b>" + html.EscapeString(u.Subject) + "</b> changed status to <b>" + html.EscapeString(humanStatus(u.Status)) + "</b>.</p>")
	if u.Description != "" {
		b.WriteString("<p>" + html.EscapeString(u.Description) + "</p>")
	}
	return b.String()
}

func humanStatus(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}
