package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

type transactionRow struct {
	ID         int64                    `db:"id"`
	StudentID  int64                    `db:"student_nim"`
	CreatedAt  time.Time                `db:"created_at"`
	Total      int64                    `db:"total"`
	PaymentURL *string                  `db:"payment_url"`
	Paid       bool                     `db:"paid"`
	Completed  bool                     `db:"completed"`
	Status     domain.TransactionStatus `db:"status"`
}

func (r transactionRow) transaction() domain.Transaction {
	return domain.Transaction{
		ID:         r.ID,
		StudentID:  r.StudentID,
		Orders:     []domain.Order{},
		CreatedAt:  r.CreatedAt,
		Total:      r.Total,
		PaymentURL: r.PaymentURL,
		Paid:       r.Paid,
		Completed:  r.Completed,
		Status:     r.Status,
	}
}

type orderRow struct {
	ID                 int64       `db:"id"`
	TransactionID      int64       `db:"transaction_id"`
	ProductID          int64       `db:"product_id"`
	ProductName        string      `db:"product_name"`
	ProductPrice       int64       `db:"product_price"`
	ProductDescription string      `db:"product_description"`
	ProductImageURL    string      `db:"product_img_url"`
	Quantity           int         `db:"quantity"`
	Size               domain.Size `db:"size"`
	Note               *string     `db:"information"`
}

func (r orderRow) order() domain.Order {
	return domain.Order{
		ID:            r.ID,
		TransactionID: r.TransactionID,
		Product: domain.ProductSnapshot{
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

const selectTransactions = `
	SELECT id, student_nim, created_at, total, payment_url, paid, completed, status
	FROM transactions
`

func (r *Repository) Get(ctx context.Context, id int64) (domain.Transaction, error) {
	var row transactionRow
	err := r.db.GetContext(ctx, &row, selectTransactions+`WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transaction{}, err
	}

	txns := []domain.Transaction{row.transaction()}
	if err := r.attachOrders(ctx, txns); err != nil {
		return domain.Transaction{}, err
	}
	return txns[0], nil
}

// ListByStudent returns the student's transactions, newest first.
func (r *Repository) ListByStudent(ctx context.Context, nim int64) ([]domain.Transaction, error) {
	var rows []transactionRow
	if err := r.db.SelectContext(ctx, &rows, selectTransactions+`
		WHERE student_nim = $1
		ORDER BY created_at DESC, id DESC
	`, nim); err != nil {
		return nil, err
	}

	txns := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txns = append(txns, row.transaction())
	}
	if err := r.attachOrders(ctx, txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// attachOrders loads the order snapshots of txns in one query, keeping
// insertion order within each transaction.
func (r *Repository) attachOrders(ctx context.Context, txns []domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	ids := make([]int64, len(txns))
	index := make(map[int64]int, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
		index[t.ID] = i
	}

	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, transaction_id, product_id, product_name, product_price,
			product_description, product_img_url, quantity, size, information
		FROM orders
		WHERE transaction_id = ANY($1)
		ORDER BY id
	`, pq.Array(ids)); err != nil {
		return err
	}

	for _, row := range rows {
		i := index[row.TransactionID]
		txns[i].Orders = append(txns[i].Orders, row.order())
	}
	return nil
}

// Override is an administrative correction. Nil fields are kept.
type Override struct {
	Paid      *bool                     `json:"paid"`
	Completed *bool                     `json:"completed"`
	Status    *domain.TransactionStatus `json:"status"`
}

// apply returns the fields after o is applied to t. Marking a transaction
// paid without a status settles it.
func (o Override) apply(t domain.Transaction) (domain.Transaction, error) {
	if o.Status != nil {
		if !o.Status.Valid() {
			return t, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, *o.Status)
		}
		t.Status = *o.Status
	}
	if o.Paid != nil {
		t.Paid = *o.Paid
		if t.Paid && o.Status == nil {
			t.Status = domain.TransactionStatusSettled
		}
	}
	if o.Completed != nil {
		t.Completed = *o.Completed
	}
	if t.Paid && t.Status != domain.TransactionStatusSettled {
		return t, fmt.Errorf("%w: a paid transaction must be settled", domain.ErrValidation)
	}
	return t, nil
}

// ApplyOverride updates id under a row lock. Unlike gateway-driven changes
// it may move a transaction out of a final status.
func (r *Repository) ApplyOverride(ctx context.Context, id int64, o Override) (domain.Transaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var row transactionRow
	err = tx.GetContext(ctx, &row, selectTransactions+`WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transaction{}, err
	}

	updated, err := o.apply(row.transaction())
	if err != nil {
		return domain.Transaction{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE transactions SET paid = $2, completed = $3, status = $4
		WHERE id = $1
	`, id, updated.Paid, updated.Completed, updated.Status); err != nil {
		return domain.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Transaction{}, err
	}
	return updated, nil
}
