package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/example/forwardly/internal/logging"
)

const telegramAPI = "https://api.telegram.org"

// OperatorNotifier alerts the operating team.
type OperatorNotifier interface {
	NotifyNewPurchaseRequest(ctx context.Context, alert PurchaseAlert) error
	NotifyPaymentProcessing(ctx context.Context, alert PaymentAlert) error
}

// PurchaseAlert describes a freshly submitted purchase request.
type PurchaseAlert struct {
	RequestNumber string
	CustomerName  string
	CustomerPhone string
	StoreName     string
	Items         []PurchaseAlertItem
	Total         float64
}

type PurchaseAlertItem struct {
	Name      string
	Quantity  int
	UnitPrice float64
}

// PaymentAlert describes a payment the customer claims to have made.
type PaymentAlert struct {
	PaymentID     string
	CustomerName  string
	CustomerPhone string
	Amount        float64
	Currency      string
	Method        string
}

// TelegramNotifier sends operator alerts to an admin chat.
type TelegramNotifier struct {
	apiBase     string
	botToken    string
	adminChatID string
	client      *http.Client
	log         logging.Logger
}

func NewTelegramNotifier(botToken, adminChatID string, log logging.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		apiBase:     telegramAPI,
		botToken:    botToken,
		adminChatID: adminChatID,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendToAdmin posts an HTML message to the admin chat.
func (n *TelegramNotifier) SendToAdmin(ctx context.Context, text string) error {
	if n.botToken == "" || n.adminChatID == "" {
		n.log.Debug(ctx, "telegram not configured, alert dropped")
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    n.adminChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *TelegramNotifier) NotifyNewPurchaseRequest(ctx context.Context, alert PurchaseAlert) error {
	var items strings.Builder
	for i, item := range alert.Items {
		items.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d x %s\n",
			i+1,
			html.EscapeString(item.Name),
			item.Quantity,
			FormatAmount(item.UnitPrice, ""),
		))
	}

	message := fmt.Sprintf(`<b>New purchase request</b>
<b>Request:</b> %s
<b>Customer:</b> %s
<b>Phone:</b> %s
<b>Store:</b> %s
<b>Items:</b>
%s
<b>Items total:</b> %s`,
		alert.RequestNumber,
		html.EscapeString(alert.CustomerName),
		alert.CustomerPhone,
		html.EscapeString(alert.StoreName),
		items.String(),
		FormatAmount(alert.Total, ""),
	)

	return n.SendToAdmin(ctx, strings.TrimSpace(message))
}

func (n *TelegramNotifier) NotifyPaymentProcessing(ctx context.Context, alert PaymentAlert) error {
	message := fmt.Sprintf(`<b>Payment submitted</b>
<b>Payment:</b> %s
<b>Customer:</b> %s
<b>Phone:</b> %s
<b>Amount:</b> %s
<b>Method:</b> %s`,
		alert.PaymentID,
		html.EscapeString(alert.CustomerName),
		alert.CustomerPhone,
		FormatAmount(alert.Amount, alert.Currency),
		html.EscapeString(alert.Method),
	)

	return n.SendToAdmin(ctx, message)
}

// FormatAmount renders an amount with thousand separators and two decimals.
func FormatAmount(amount float64, currency string) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	cents := int64(amount*100 + 0.5)
	whole := fmt.Sprintf("%d", cents/100)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	b.WriteString(fmt.Sprintf(".%02d", cents%100))

	if currency != "" {
		b.WriteString(" " + currency)
	}
	return b.String()
}
