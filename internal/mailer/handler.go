package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"net/smtp"
	"strings"
	"text/template"
)

var messageTemplate = template.Must(template.New("message").Parse(
	"From: No Reply <{{.From}}>\r\n" +
		"To: {{.Name}} <{{.To}}>\r\n" +
		"Subject: {{.Subject}}\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		"{{.Body}}\r\n" +
		"\r\n" +
		"You can ignore this email if this isn't you.\r\n"))

// Sender delivers a rendered RFC 5322 message.
type Sender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// LogSender only logs messages. It is used when no SMTP relay is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, from string, to []string, msg []byte) error {
	s.Logger.Info("mail delivered to log", "from", from, "to", to, "bytes", len(msg))
	return nil
}

// SMTPSender relays through a plain SMTP server such as a local MTA.
type SMTPSender struct {
	Addr string
}

func (s SMTPSender) Send(_ context.Context, from string, to []string, msg []byte) error {
	return smtp.SendMail(s.Addr, nil, from, to, msg)
}

type Handler struct {
	from   string
	sender Sender
	logger *slog.Logger
}

func NewHandler(from string, sender Sender, logger *slog.Logger) *Handler {
	return &Handler{
		from:   from,
		sender: sender,
		logger: logger,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (r sendRequest) validate() error {
	if _, err := mail.ParseAddress(r.To); err != nil {
		return fmt.Errorf("invalid recipient %q", r.To)
	}
	if strings.TrimSpace(r.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if strings.ContainsAny(r.Subject+r.Name, "\r\n") {
		return fmt.Errorf("headers must not contain line breaks")
	}
	return nil
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.render(req)
	if err != nil {
		h.logger.Error("failed to render message", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to render message")
		return
	}

	if err := h.sender.Send(r.Context(), h.from, []string{req.To}, msg); err != nil {
		h.logger.Error("failed to send email", "error", err, "to", req.To)
		h.writeError(w, http.StatusBadGateway, "failed to send email")
		return
	}

	h.logger.Info("email sent", "to", req.To, "subject", req.Subject)

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent"})
}

func (h *Handler) render(req sendRequest) ([]byte, error) {
	name := req.Name
	if name == "" {
		name = req.To
	}

	var buf bytes.Buffer
	err := messageTemplate.Execute(&buf, struct {
		From, To, Name, Subject, Body string
	}{h.from, req.To, name, req.Subject, req.Body})
	return buf.Bytes(), err
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
