package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/myhmtk/storefront/internal/domain"
)

type Store interface {
	Begin(ctx context.Context) (Tx, error)
	// ExpireIfPending moves id from pending to expired and reports whether
	// this call did it.
	ExpireIfPending(ctx context.Context, id int64) (bool, error)
	CurrentStatus(ctx context.Context, id int64) (domain.TransactionStatus, bool, error)
	// ExpireDue expires every pending transaction created at or before cutoff.
	ExpireDue(ctx context.Context, cutoff time.Time) ([]Expired, error)
}

type Tx interface {
	LockTransaction(ctx context.Context, id int64) (domain.Transaction, error)
	SetStatus(ctx context.Context, id int64, status domain.TransactionStatus, paid bool) error
	Commit() error
	Rollback() error
}

type Expired struct {
	ID        int64 `db:"id"`
	StudentID int64 `db:"student_nim"`
	Total     int64 `db:"total"`
}

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (s *SQLStore) ExpireIfPending(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = 'expired'
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLStore) CurrentStatus(ctx context.Context, id int64) (domain.TransactionStatus, bool, error) {
	var row struct {
		Status domain.TransactionStatus `db:"status"`
		Paid   bool                     `db:"paid"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT status, paid FROM transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	return row.Status, row.Paid, err
}

func (s *SQLStore) ExpireDue(ctx context.Context, cutoff time.Time) ([]Expired, error) {
	expired := []Expired{}
	err := s.db.SelectContext(ctx, &expired, `
		UPDATE transactions SET status = 'expired'
		WHERE status = 'pending' AND created_at <= $1
		RETURNING id, student_nim, total
	`, cutoff)
	return expired, err
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) LockTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	var row struct {
		ID        int64                    `db:"id"`
		StudentID int64                    `db:"student_nim"`
		CreatedAt time.Time                `db:"created_at"`
		Total     int64                    `db:"total"`
		Paid      bool                     `db:"paid"`
		Completed bool                     `db:"completed"`
		Status    domain.TransactionStatus `db:"status"`
	}
	err := t.tx.GetContext(ctx, &row, `
		SELECT id, student_nim, created_at, total, paid, completed, status
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{
		ID:        row.ID,
		StudentID: row.StudentID,
		CreatedAt: row.CreatedAt,
		Total:     row.Total,
		Paid:      row.Paid,
		Completed: row.Completed,
		Status:    row.Status,
	}, nil
}

func (t *sqlTx) SetStatus(ctx context.Context, id int64, status domain.TransactionStatus, paid bool) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE transactions SET status = $2, paid = $3
		WHERE id = $1
	`, id, status, paid)
	return err
}

func (t *sqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}
