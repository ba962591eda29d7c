package checkout

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myhmtk/storefront/internal/domain"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "postgres")), mock
}

func TestSQLStore_CheckoutStatements(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(nim, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_nim", "product_id", "quantity", "size", "information"}).
			AddRow(1, nim, 1, 2, "m", nil))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO transactions")).
		WithArgs(nim, created, int64(25000), false, false, "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions SET payment_url = $2 WHERE id = $1")).
		WithArgs(int64(7), "https://pay.example/7").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(int64(7), int64(1), "Shirt", int64(10000), "", "", 2, "m", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(70))
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM cart_lines")).
		WithArgs(nim, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	lines, err := tx.LockCartLines(ctx, nim, []int64{1})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, domain.SizeM, lines[0].Size)

	txn := &domain.Transaction{StudentID: nim, CreatedAt: created, Total: 25000, Status: domain.TransactionStatusPending}
	require.NoError(t, tx.CreateTransaction(ctx, txn))
	assert.Equal(t, int64(7), txn.ID)

	require.NoError(t, tx.AttachPaymentURL(ctx, 7, "https://pay.example/7"))

	orders := []domain.Order{{Product: domain.ProductSnapshot{ID: 1, Name: "Shirt", Price: 10000}, Quantity: 2, Size: domain.SizeM}}
	require.NoError(t, tx.InsertOrders(ctx, 7, orders))
	assert.Equal(t, int64(70), orders[0].ID)
	assert.Equal(t, int64(7), orders[0].TransactionID)

	n, err := tx.ConsumeCartLines(ctx, nim, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Compensation(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM transactions WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteTransaction(ctx, 7))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}
