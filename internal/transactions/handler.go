package transactions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/myhmtk/storefront/internal/checkout"
	"github.com/myhmtk/storefront/internal/domain"
	"github.com/myhmtk/storefront/internal/web"
)

type Checkouter interface {
	Checkout(ctx context.Context, nim int64, cartLineIDs []int64) (checkout.Result, error)
}

type Handler struct {
	reads    *ReadModel
	repo     *Repository
	checkout Checkouter
	logger   *slog.Logger
}

func NewHandler(reads *ReadModel, repo *Repository, co Checkouter, logger *slog.Logger) *Handler {
	return &Handler{
		reads:    reads,
		repo:     repo,
		checkout: co,
		logger:   logger,
	}
}

type listResponse struct {
	web.Envelope
	Transactions []domain.Transaction `json:"transactions"`
}

type getResponse struct {
	web.Envelope
	Transaction *domain.Transaction `json:"transaction"`
}

// checkoutResponse carries a null payment_url when checkout fails.
type checkoutResponse struct {
	web.Envelope
	TransactionID int64   `json:"transaction_id,omitempty"`
	Total         int64   `json:"total,omitempty"`
	PaymentURL    *string `json:"payment_url"`
}

// parseCartIDs accepts {"cart_ids":[...]} or a bare JSON array.
func parseCartIDs(r io.Reader) ([]int64, error) {
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)

	var ids []int64
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &ids)
	} else {
		var body struct {
			CartIDs []int64 `json:"cart_ids"`
		}
		err = json.Unmarshal(data, &body)
		ids = body.CartIDs
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return ids, nil
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	nim, err := web.PathID(r, "nim")
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	ids, err := parseCartIDs(r.Body)
	if err != nil {
		h.checkoutFailed(w, err)
		return
	}

	res, err := h.checkout.Checkout(r.Context(), nim, ids)
	if err != nil {
		h.checkoutFailed(w, err)
		return
	}

	web.WriteJSON(w, h.logger, http.StatusCreated, checkoutResponse{
		Envelope:      web.OK("transaction created"),
		TransactionID: res.TransactionID,
		Total:         res.Total,
		PaymentURL:    &res.PaymentURL,
	})
}

func (h *Handler) checkoutFailed(w http.ResponseWriter, err error) {
	status, message := web.ErrorStatus(h.logger, err)
	web.WriteJSON(w, h.logger, status, checkoutResponse{
		Envelope: web.Envelope{Message: message},
	})
}

func (h *Handler) HandleListForStudent(w http.ResponseWriter, r *http.Request) {
	nim, err := web.PathID(r, "nim")
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	txns, err := h.reads.ListByStudent(r.Context(), nim)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("transactions listed", "student_nim", nim, "count", len(txns))
	web.WriteJSON(w, h.logger, http.StatusOK, listResponse{
		Envelope:     web.OK(fmt.Sprintf("transactions of student %d retrieved", nim)),
		Transactions: txns,
	})
}

func (h *Handler) HandleGetForStudent(w http.ResponseWriter, r *http.Request) {
	nim, err := web.PathID(r, "nim")
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	id, err := web.PathID(r, "id")
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	t, err := h.reads.GetForStudent(r.Context(), nim, id)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	web.WriteJSON(w, h.logger, http.StatusOK, getResponse{
		Envelope:    web.OK(fmt.Sprintf("transaction %d retrieved", id)),
		Transaction: t,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	t, err := h.reads.Get(r.Context(), id)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	web.WriteJSON(w, h.logger, http.StatusOK, getResponse{
		Envelope:    web.OK(fmt.Sprintf("transaction %d retrieved", id)),
		Transaction: t,
	})
}

func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	var o Override
	if err := web.DecodeJSON(r, &o); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	updated, err := h.repo.ApplyOverride(r.Context(), id, o)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	h.logger.Info("transaction overridden", "transaction_id", id, "status", updated.Status, "paid", updated.Paid, "completed", updated.Completed)

	t, err := h.repo.Get(r.Context(), id)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	web.WriteJSON(w, h.logger, http.StatusOK, getResponse{
		Envelope:    web.OK(fmt.Sprintf("transaction %d updated", id)),
		Transaction: &t,
	})
}
