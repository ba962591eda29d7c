package checkout

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/myhmtk/storefront/internal/domain"
)

// SQLStore runs checkouts against Postgres.
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

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) LockCartLines(ctx context.Context, nim int64, ids []int64) ([]domain.CartLine, error) {
	lines := []domain.CartLine{}
	err := t.tx.SelectContext(ctx, &lines, `
		SELECT id, student_nim, product_id, quantity, size, information
		FROM cart_lines
		WHERE student_nim = $1 AND id = ANY($2)
		ORDER BY id
		FOR UPDATE
	`, nim, pq.Array(ids))
	return lines, err
}

func (t *sqlTx) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	return t.tx.QueryRowxContext(ctx, `
		INSERT INTO transactions (student_nim, created_at, total, paid, completed, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, txn.StudentID, txn.CreatedAt, txn.Total, txn.Paid, txn.Completed, txn.Status).Scan(&txn.ID)
}

func (t *sqlTx) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	return err
}

func (t *sqlTx) AttachPaymentURL(ctx context.Context, id int64, url string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE transactions SET payment_url = $2 WHERE id = $1`, id, url)
	return err
}

func (t *sqlTx) InsertOrders(ctx context.Context, transactionID int64, orders []domain.Order) error {
	for i := range orders {
		o := &orders[i]
		err := t.tx.QueryRowxContext(ctx, `
			INSERT INTO orders (
				transaction_id, product_id, product_name, product_price,
				product_description, product_img_url, quantity, size, information
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, transactionID, o.Product.ID, o.Product.Name, o.Product.Price,
			o.Product.Description, o.Product.ImageURL, o.Quantity, o.Size, o.Note).Scan(&o.ID)
		if err != nil {
			return err
		}
		o.TransactionID = transactionID
	}
	return nil
}

func (t *sqlTx) ConsumeCartLines(ctx context.Context, nim int64, ids []int64) (int, error) {
	var deleted []int64
	err := t.tx.SelectContext(ctx, &deleted, `
		DELETE FROM cart_lines
		WHERE student_nim = $1 AND id = ANY($2)
		RETURNING id
	`, nim, pq.Array(ids))
	return len(deleted), err
}

func (t *sqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}
