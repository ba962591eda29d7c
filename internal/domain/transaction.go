package domain

import "time"

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSettled   TransactionStatus = "settled"
	TransactionStatusExpired   TransactionStatus = "expired"
	TransactionStatusDenied    TransactionStatus = "denied"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPending
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusSettled, TransactionStatusExpired,
		TransactionStatusDenied, TransactionStatusCancelled, TransactionStatusFailed:
		return true
	}
	return false
}

func (s TransactionStatus) String() string {
	return string(s)
}

// ProductSnapshot is the product as it was when the order was placed. Later
// catalog edits never change it.
type ProductSnapshot struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
	ImageURL    string `json:"img_url"`
}

func SnapshotOf(p Product) ProductSnapshot {
	return ProductSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Description: p.Description,
		ImageURL:    p.ImageURL,
	}
}

type Order struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"-"`
	Product       ProductSnapshot `json:"product"`
	Quantity      int             `json:"quantity"`
	Size          Size            `json:"size"`
	Note          *string         `json:"information"`
}

func (o Order) Subtotal() int64 {
	return o.Product.Price * int64(o.Quantity)
}

type Transaction struct {
	ID         int64             `json:"id"`
	StudentID  int64             `json:"-"`
	Orders     []Order           `json:"orders"`
	CreatedAt  time.Time         `json:"transaction_date"`
	Total      int64             `json:"total"`
	PaymentURL *string           `json:"payment_url"`
	Paid       bool              `json:"paid"`
	Completed  bool              `json:"completed"`
	Status     TransactionStatus `json:"status"`
}

// ExpiresAt is the civil time after which an unpaid transaction is no longer
// payable.
func (t Transaction) ExpiresAt(window time.Duration) time.Time {
	return t.CreatedAt.Add(window)
}

// Due reports whether a pending transaction has outlived its payment window.
func (t Transaction) Due(now time.Time, window time.Duration) bool {
	return t.Status == TransactionStatusPending && !t.ExpiresAt(window).After(now)
}

// OrdersTotal sums snapshot subtotals and the administrative fee.
func OrdersTotal(orders []Order, fee int64) int64 {
	total := fee
	for _, o := range orders {
		total += o.Subtotal()
	}
	return total
}
