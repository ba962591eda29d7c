package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/myhmtk/storefront/internal/domain"
	"github.com/myhmtk/storefront/internal/web"
)

type Invalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

type Handler struct {
	repo   *Repository
	cache  Invalidator
	logger *slog.Logger
}

// NewHandler builds the product endpoints. cache may be nil when no product
// cache is configured.
func NewHandler(repo *Repository, cache Invalidator, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

type productsResponse struct {
	web.Envelope
	Products []domain.Product `json:"products"`
}

type productResponse struct {
	web.Envelope
	Product *domain.Product `json:"product,omitempty"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.List(r.Context())
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("products listed", "count", len(products))
	web.WriteJSON(w, h.logger, http.StatusOK, productsResponse{
		Envelope: web.OK("products retrieved"),
		Products: products,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	p, err := h.repo.Get(r.Context(), id)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	web.WriteJSON(w, h.logger, http.StatusOK, productResponse{
		Envelope: web.OK(fmt.Sprintf("product %d retrieved", id)),
		Product:  &p,
	})
}

type createRequest struct {
	Name        string `json:"name" validate:"required"`
	Price       int64  `json:"price" validate:"gte=0"`
	Description string `json:"description"`
	ImageURL    string `json:"img_url"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	if err := web.Validate(req); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	p := domain.Product{
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	}
	if err := h.repo.Create(r.Context(), &p); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("product created", "product_id", p.ID)
	web.WriteJSON(w, h.logger, http.StatusCreated, productResponse{
		Envelope: web.OK("product created"),
		Product:  &p,
	})
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
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
	if err := web.Validate(patch); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	p, err := h.repo.Update(r.Context(), id, patch)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context(), id); err != nil {
			h.logger.Error("failed to invalidate product cache", "error", err, "product_id", id)
		}
	}

	h.logger.Info("product updated", "product_id", id)
	web.WriteJSON(w, h.logger, http.StatusOK, productResponse{
		Envelope: web.OK(fmt.Sprintf("product %d updated", id)),
		Product:  &p,
	})
}
