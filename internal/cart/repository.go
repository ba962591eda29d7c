package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/myhmtk/storefront/internal/domain"
	"github.com/myhmtk/storefront/internal/web"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type itemRow struct {
	ID                 int64       `db:"id"`
	Quantity           int         `db:"quantity"`
	Size               domain.Size `db:"size"`
	Note               *string     `db:"information"`
	ProductID          int64       `db:"product_id"`
	ProductName        string      `db:"product_name"`
	ProductPrice       int64       `db:"product_price"`
	ProductDescription string      `db:"product_description"`
	ProductImageURL    string      `db:"product_img_url"`
}

func (r itemRow) item() domain.CartItem {
	return domain.CartItem{
		ID: r.ID,
		Product: domain.Product{
			ID:          r.ProductID,
			Name:        r.ProductName,
			Price:       r.ProductPrice,
			Description: r.ProductDescription,
			ImageURL:    r.ProductImageURL,
		},
		Quantity: r.Quantity,
		Size:     r.Size,
		Note:     r.Note,
	}
}

const selectItems = `
	SELECT
		c.id, c.quantity, c.size, c.information,
		p.id AS product_id,
		p.name AS product_name,
		p.price AS product_price,
		p.description AS product_description,
		p.img_url AS product_img_url
	FROM cart_lines c
	JOIN products p ON p.id = c.product_id
`

func (r *Repository) List(ctx context.Context, nim int64) ([]domain.CartItem, error) {
	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, selectItems+`
		WHERE c.student_nim = $1
		ORDER BY c.id
	`, nim); err != nil {
		return nil, err
	}

	items := make([]domain.CartItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.item())
	}
	return items, nil
}

func (r *Repository) Get(ctx context.Context, nim, id int64) (domain.CartItem, error) {
	var row itemRow
	err := r.db.GetContext(ctx, &row, selectItems+`
		WHERE c.student_nim = $1 AND c.id = $2
	`, nim, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CartItem{}, fmt.Errorf("cart line %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CartItem{}, err
	}
	return row.item(), nil
}

// Add inserts line if its product exists and sets line.ID.
func (r *Repository) Add(ctx context.Context, line *domain.CartLine) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO cart_lines (student_nim, product_id, quantity, size, information)
		SELECT $1, p.id, $3, $4, $5
		FROM products p
		WHERE p.id = $2
		RETURNING id
	`, line.StudentID, line.ProductID, line.Quantity, line.Size, line.Note).Scan(&line.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", line.ProductID, domain.ErrNotFound)
	}
	return err
}

// Patch is a partial update of a cart line. Nil fields are left unchanged.
type Patch struct {
	Quantity *int         `json:"quantity" validate:"omitempty,gt=0"`
	Size     *domain.Size `json:"size" validate:"omitempty,oneof=xs s m l xl xxl"`
	Note     *string      `json:"information"`
}

// Normalize folds the size to its stored form and validates the patch.
func (p *Patch) Normalize() error {
	if p.Size != nil {
		size := domain.NormalizeSize(string(*p.Size))
		p.Size = &size
	}
	return web.Validate(p)
}

func (r *Repository) Update(ctx context.Context, nim, id int64, patch Patch) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_lines SET
			quantity = COALESCE($3, quantity),
			size = COALESCE($4, size),
			information = COALESCE($5, information)
		WHERE student_nim = $1 AND id = $2
	`, nim, id, patch.Quantity, patch.Size, patch.Note)
	if err != nil {
		return err
	}
	return requireOne(result, id)
}

func (r *Repository) Delete(ctx context.Context, nim, id int64) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_lines
		WHERE student_nim = $1 AND id = $2
	`, nim, id)
	if err != nil {
		return err
	}
	return requireOne(result, id)
}

func requireOne(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cart line %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
