package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/myhmtk/storefront/internal/domain"
)

// Mail is the body accepted by the mailer's /send endpoint.
type Mail struct {
	To      string `json:"to"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type NotificationHandler struct {
	mailerURL  string
	storeName  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewNotificationHandler(mailerURL, storeName string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		mailerURL:  mailerURL,
		storeName:  storeName,
		httpClient: client,
		logger:     logger,
	}
}

// Handle turns a transaction event into at most one mail. Events that need
// no mail are acknowledged without side effects; only delivery failures are
// returned so the message is redelivered.
func (h *NotificationHandler) Handle(ctx context.Context, eventType string, payload []byte) error {
	var event domain.TransactionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal transaction event: %w", err)
	}
	if eventType == "" {
		eventType = event.Type
	}

	h.logger.Info("processing transaction event", "type", eventType,
		"transaction_id", event.TransactionID, "status", event.Status)

	if event.StudentEmail == "" {
		h.logger.Warn("student has no email, skipping notification",
			"transaction_id", event.TransactionID, "student_nim", event.StudentID)
		return nil
	}

	mail, ok := h.compose(eventType, event)
	if !ok {
		h.logger.Debug("event needs no notification", "type", eventType, "status", event.Status)
		return nil
	}

	if err := h.sendMail(ctx, mail); err != nil {
		h.logger.Error("failed to send notification", "error", err, "transaction_id", event.TransactionID)
		return fmt.Errorf("send notification: %w", err)
	}

	h.logger.Info("notification sent", "transaction_id", event.TransactionID, "subject", mail.Subject)
	return nil
}

func (h *NotificationHandler) compose(eventType string, event domain.TransactionEvent) (Mail, bool) {
	mail := Mail{To: event.StudentEmail, Name: event.StudentName}
	ref := fmt.Sprintf("#%d", event.TransactionID)

	switch eventType {
	case domain.EventTransactionCreated:
		mail.Subject = fmt.Sprintf("%s - Complete your payment %s", h.storeName, ref)
		mail.Body = fmt.Sprintf("Your order %s totals Rp%s.\n\nComplete the payment here:\n%s\n",
			ref, rupiah(event.Total), event.PaymentURL)
	case domain.EventTransactionStatusChanged:
		switch event.Status {
		case domain.TransactionStatusSettled:
			mail.Subject = fmt.Sprintf("%s - Payment received %s", h.storeName, ref)
			mail.Body = fmt.Sprintf("We received your payment of Rp%s for order %s.\n\nThank you for shopping with %s.\n",
				rupiah(event.Total), ref, h.storeName)
		case domain.TransactionStatusExpired:
			mail.Subject = fmt.Sprintf("%s - Payment expired %s", h.storeName, ref)
			mail.Body = fmt.Sprintf("The payment window for order %s has closed.\n\nPlace a new order if you still want the items.\n", ref)
		case domain.TransactionStatusDenied, domain.TransactionStatusCancelled, domain.TransactionStatusFailed:
			mail.Subject = fmt.Sprintf("%s - Payment %s %s", h.storeName, event.Status, ref)
			mail.Body = fmt.Sprintf("The payment for order %s was %s and no money was taken.\n", ref, event.Status)
		default:
			return Mail{}, false
		}
	default:
		return Mail{}, false
	}

	return mail, true
}

func (h *NotificationHandler) sendMail(ctx context.Context, mail Mail) error {
	data, err := json.Marshal(mail)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.mailerURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mailer returned status %d", resp.StatusCode)
	}

	return nil
}

// rupiah formats an amount with dot thousands separators.
func rupiah(amount int64) string {
	s := fmt.Sprintf("%d", amount)
	neg := false
	if amount < 0 {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
