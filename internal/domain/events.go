package domain

import "time"

const (
	EventTransactionCreated       = "transaction.created"
	EventTransactionStatusChanged = "transaction.status_changed"
)

type TransactionEvent struct {
	EventID       string            `json:"event_id"`
	Type          string            `json:"type"`
	TransactionID int64             `json:"transaction_id"`
	StudentID     int64             `json:"student_nim"`
	StudentName   string            `json:"student_name"`
	StudentEmail  string            `json:"student_email"`
	Status        TransactionStatus `json:"status"`
	Paid          bool              `json:"paid"`
	Total         int64             `json:"total"`
	PaymentURL    string            `json:"payment_url,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}
