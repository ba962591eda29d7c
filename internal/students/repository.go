package students

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/myhmtk/storefront/internal/domain"
)

// Repository is a read-only view of the student directory. Students are
// managed elsewhere.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, nim int64) (domain.Student, error) {
	var s domain.Student
	err := r.db.GetContext(ctx, &s, `
		SELECT nim, name, email, tel, avatar_url, address
		FROM students
		WHERE nim = $1
	`, nim)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("student %d: %w", nim, domain.ErrNotFound)
	}
	return s, err
}
