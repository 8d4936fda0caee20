package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsAppSender posts OTP messages to a WhatsApp relay API.
type WhatsAppSender struct {
	apiURL string
	token  string
	ttl    time.Duration
	client *http.Client
}

// NewWhatsAppSender builds a sender; ttl is the code lifetime quoted in the message.
func NewWhatsAppSender(apiURL, token string, ttl time.Duration) *WhatsAppSender {
	return &WhatsAppSender{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		ttl:    ttl,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type whatsAppMessage struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *WhatsAppSender) SendOTP(ctx context.Context, phone, code string) error {
	payload, err := json.Marshal(whatsAppMessage{
		To:      strings.TrimPrefix(phone, "+"),
		Message: fmt.Sprintf("Your verification code is %s. It expires in %s.", code, humanTTL(s.ttl)),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("whatsapp request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("whatsapp relay: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

func humanTTL(d time.Duration) string {
	if d < time.Minute {
		secs := int(d.Round(time.Second).Seconds())
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	mins := int(d.Round(time.Minute).Minutes())
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}
