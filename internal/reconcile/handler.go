package reconcile

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

type Handler struct {
	reconciler *Reconciler
	logger     *slog.Logger
}

func NewHandler(reconciler *Reconciler, logger *slog.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// HandleNotification acknowledges with a plain "OK" whenever the gateway
// should stop redelivering, including for unknown or already final
// transactions. Only a bad signature or an internal failure is not acked.
func (h *Handler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	var n Notification
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&n); err != nil {
		writeText(w, http.StatusBadRequest, "invalid notification body")
		return
	}

	outcome, err := h.reconciler.ApplyNotification(r.Context(), n)
	switch {
	case errors.Is(err, ErrSignatureMismatch):
		writeText(w, http.StatusUnauthorized, "invalid signature")
		return
	case err != nil:
		h.logger.Error("failed to apply notification", "error", err, "order_id", n.OrderID)
		writeText(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("notification handled", "order_id", n.OrderID, "transaction_status", n.TransactionStatus, "outcome", outcome.String())
	writeText(w, http.StatusOK, "OK")
}

// HandleFinish is the page the customer returns to after paying. It never
// changes state; only signed notifications do.
func (h *Handler) HandleFinish(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("transaction_status") {
	case "settlement", "capture":
		writeText(w, http.StatusOK, "Payment Successful")
	default:
		writeText(w, http.StatusOK, "Payment Pending")
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
