package cart

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/myhmtk/storefront/internal/domain"
	"github.com/myhmtk/storefront/internal/web"
)

type StudentLookup interface {
	Get(ctx context.Context, nim int64) (domain.Student, error)
}

type Handler struct {
	repo     *Repository
	students StudentLookup
	logger   *slog.Logger
}

func NewHandler(repo *Repository, students StudentLookup, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		students: students,
		logger:   logger,
	}
}

type cartResponse struct {
	web.Envelope
	Cart []domain.CartItem `json:"cart"`
}

type itemResponse struct {
	web.Envelope
	Item domain.CartItem `json:"cart_item"`
}

type addResponse struct {
	web.Envelope
	ID int64 `json:"id"`
}

// student resolves the {nim} path value to an existing student.
func (h *Handler) student(r *http.Request) (int64, error) {
	nim, err := web.PathID(r, "nim")
	if err != nil {
		return 0, err
	}
	if _, err := h.students.Get(r.Context(), nim); err != nil {
		return 0, err
	}
	return nim, nil
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	nim, err := h.student(r)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	items, err := h.repo.List(r.Context(), nim)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	web.WriteJSON(w, h.logger, http.StatusOK, cartResponse{
		Envelope: web.OK(fmt.Sprintf("cart of student %d retrieved", nim)),
		Cart:     items,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	nim, err := h.student(r)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	id, err := web.PathID(r, "id")
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	item, err := h.repo.Get(r.Context(), nim, id)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	web.WriteJSON(w, h.logger, http.StatusOK, itemResponse{
		Envelope: web.OK(fmt.Sprintf("cart line %d retrieved", id)),
		Item:     item,
	})
}

type addRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  int     `json:"quantity" validate:"gt=0"`
	Size      string  `json:"size" validate:"oneof=xs s m l xl xxl"`
	Note      *string `json:"information"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	nim, err := h.student(r)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	var req addRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	req.Size = string(domain.NormalizeSize(req.Size))
	if err := web.Validate(req); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	line := domain.CartLine{
		StudentID: nim,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Size:      domain.Size(req.Size),
		Note:      req.Note,
	}

	if err := h.repo.Add(r.Context(), &line); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("cart line added", "student_nim", nim, "cart_line_id", line.ID, "product_id", line.ProductID)
	web.WriteJSON(w, h.logger, http.StatusCreated, addResponse{
		Envelope: web.OK("cart line added"),
		ID:       line.ID,
	})
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	nim, err := h.student(r)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	id, err := web.PathID(r, "id")
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	var patch Patch
	if err := web.DecodeJSON(r, &patch); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	if err := patch.Normalize(); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	if err := h.repo.Update(r.Context(), nim, id, patch); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("cart line updated", "student_nim", nim, "cart_line_id", id)
	web.WriteMessage(w, h.logger, http.StatusOK, fmt.Sprintf("cart line %d updated", id))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	nim, err := h.student(r)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	id, err := web.PathID(r, "id")
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	if err := h.repo.Delete(r.Context(), nim, id); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("cart line deleted", "student_nim", nim, "cart_line_id", id)
	web.WriteMessage(w, h.logger, http.StatusOK, fmt.Sprintf("cart line %d deleted", id))
}
