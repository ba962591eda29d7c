package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/myhmtk/storefront/internal/domain"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]domain.Product, error) {
	products := []domain.Product{}
	err := r.db.SelectContext(ctx, &products, `
		SELECT id, name, price, description, img_url
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, `
		SELECT id, name, price, description, img_url
		FROM products
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return p, err
}

// Products returns the products that exist among ids, keyed by id.
func (r *Repository) Products(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []domain.Product
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, price, description, img_url
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (r *Repository) Create(ctx context.Context, p *domain.Product) error {
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO products (name, price, description, img_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, p.Name, p.Price, p.Description, p.ImageURL).Scan(&p.ID)
}

// Patch is a partial update. Nil fields keep their stored value.
type Patch struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0"`
	Description *string `json:"description"`
	ImageURL    *string `json:"img_url"`
}

func (r *Repository) Update(ctx context.Context, id int64, patch Patch) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, `
		UPDATE products SET
			name = COALESCE($2, name),
			price = COALESCE($3, price),
			description = COALESCE($4, description),
			img_url = COALESCE($5, img_url)
		WHERE id = $1
		RETURNING id, name, price, description, img_url
	`, id, patch.Name, patch.Price, patch.Description, patch.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return p, err
}
