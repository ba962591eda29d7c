// Package reconcile applies payment-gateway notifications and expiry to
// transactions.
//
// Automated transitions only ever leave pending. Once a transaction is
// settled, expired, denied, cancelled or failed, later notifications and
// expiry checks leave it alone, so replays and out-of-order deliveries are
// harmless.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/myhmtk/storefront/internal/clock"
	"github.com/myhmtk/storefront/internal/domain"
	"github.com/myhmtk/storefront/internal/payment"
	"github.com/myhmtk/storefront/internal/telemetry"
)

var ErrSignatureMismatch = errors.New("notification signature mismatch")

type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeIgnored
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeRejected:
		return "rejected"
	}
	return "unknown"
}

// Notification is the body the gateway posts when a payment changes state.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	PaymentType       string `json:"payment_type,omitempty"`
	TransactionID     string `json:"transaction_id,omitempty"`
}

// UnmarshalJSON accepts status_code and gross_amount as JSON strings or
// numbers. Either way the field keeps the literal text, which is what the
// signature covers.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type plain Notification
	aux := struct {
		*plain
		StatusCode  numberText `json:"status_code"`
		GrossAmount numberText `json:"gross_amount"`
	}{plain: (*plain)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.StatusCode = string(aux.StatusCode)
	n.GrossAmount = string(aux.GrossAmount)
	return nil
}

type numberText string

func (t *numberText) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = numberText(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*t = numberText(num.String())
	return nil
}

// Target maps a gateway status to the transaction status it leads to. ok is
// false for "pending", which changes nothing.
func Target(gatewayStatus string) (status domain.TransactionStatus, ok bool) {
	switch gatewayStatus {
	case "pending":
		return domain.TransactionStatusPending, false
	case "settlement", "capture":
		return domain.TransactionStatusSettled, true
	case "expire":
		return domain.TransactionStatusExpired, true
	case "deny":
		return domain.TransactionStatusDenied, true
	case "cancel":
		return domain.TransactionStatusCancelled, true
	}
	return domain.TransactionStatusFailed, true
}

type StudentLookup interface {
	Get(ctx context.Context, nim int64) (domain.Student, error)
}

type Publisher interface {
	Publish(ctx context.Context, key, eventType string, event any) error
}

type Config struct {
	ServerKey     string
	PaymentExpiry time.Duration
}

type Reconciler struct {
	store     Store
	students  StudentLookup
	signer    payment.Signer
	clock     clock.Clock
	publisher Publisher
	metrics   *telemetry.Metrics
	cfg       Config
	logger    *slog.Logger
}

type Option func(*Reconciler)

// WithSigner replaces the default SHA-512 notification signature.
func WithSigner(s payment.Signer) Option {
	return func(r *Reconciler) { r.signer = s }
}

func WithPublisher(p Publisher) Option {
	return func(r *Reconciler) { r.publisher = p }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func NewReconciler(store Store, students StudentLookup, clk clock.Clock, cfg Config, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		students: students,
		signer:   payment.SHA512Signature,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplyNotification verifies n and moves the referenced transaction out of
// pending. Notifications for unknown or already final transactions are
// acknowledged without effect.
func (r *Reconciler) ApplyNotification(ctx context.Context, n Notification) (Outcome, error) {
	outcome, err := r.apply(ctx, n)
	r.metrics.Notification(ctx, outcome.String())
	return outcome, err
}

func (r *Reconciler) apply(ctx context.Context, n Notification) (Outcome, error) {
	if !payment.VerifySignature(r.signer, n.OrderID, n.StatusCode, n.GrossAmount, r.cfg.ServerKey, n.SignatureKey) {
		r.logger.Warn("notification rejected", "order_id", n.OrderID, "transaction_status", n.TransactionStatus)
		return OutcomeRejected, ErrSignatureMismatch
	}

	id, err := strconv.ParseInt(n.OrderID, 10, 64)
	if err != nil {
		r.logger.Warn("notification for unparseable order id", "order_id", n.OrderID)
		return OutcomeIgnored, nil
	}

	target, ok := Target(n.TransactionStatus)
	if !ok {
		return OutcomeIgnored, nil
	}

	tx, err := r.store.Begin(ctx)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("begin reconcile: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txn, err := tx.LockTransaction(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Warn("notification for unknown transaction", "transaction_id", id)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("lock transaction %d: %w", id, err)
	}

	if txn.Status.IsTerminal() {
		r.logger.Info("notification for final transaction ignored",
			"transaction_id", id, "status", txn.Status, "transaction_status", n.TransactionStatus)
		return OutcomeIgnored, nil
	}

	if gross, ok := parseAmount(n.GrossAmount); !ok || gross != txn.Total {
		r.logger.Warn("notification gross amount differs from transaction total",
			"transaction_id", id, "gross_amount", n.GrossAmount, "total", txn.Total)
	}

	paid := target == domain.TransactionStatusSettled
	if err := tx.SetStatus(ctx, id, target, paid); err != nil {
		return OutcomeIgnored, fmt.Errorf("set status of transaction %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return OutcomeIgnored, fmt.Errorf("commit reconcile: %w", err)
	}

	r.logger.Info("transaction status changed", "transaction_id", id, "from", txn.Status, "to", target)
	txn.Status = target
	txn.Paid = paid
	r.publish(ctx, txn.ID, txn.StudentID, txn.Total, target, paid)

	return OutcomeApplied, nil
}

// ExpireIfDue expires t when its payment window has passed and updates t to
// the persisted status. A concurrent settlement wins over expiry.
func (r *Reconciler) ExpireIfDue(ctx context.Context, t *domain.Transaction, now time.Time) error {
	if !t.Due(now, r.cfg.PaymentExpiry) {
		return nil
	}

	expired, err := r.store.ExpireIfPending(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("expire transaction %d: %w", t.ID, err)
	}
	if expired {
		t.Status = domain.TransactionStatusExpired
		r.metrics.Expired(ctx, "read", 1)
		r.logger.Info("transaction expired", "transaction_id", t.ID)
		r.publish(ctx, t.ID, t.StudentID, t.Total, t.Status, false)
		return nil
	}

	status, paid, err := r.store.CurrentStatus(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("reload transaction %d: %w", t.ID, err)
	}
	t.Status = status
	t.Paid = paid
	return nil
}

// ExpireDue expires every pending transaction whose window has passed and
// returns how many it moved.
func (r *Reconciler) ExpireDue(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().Add(-r.cfg.PaymentExpiry)
	expired, err := r.store.ExpireDue(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire due transactions: %w", err)
	}

	r.metrics.Expired(ctx, "sweep", len(expired))
	for _, e := range expired {
		r.publish(ctx, e.ID, e.StudentID, e.Total, domain.TransactionStatusExpired, false)
	}
	return len(expired), nil
}

func (r *Reconciler) publish(ctx context.Context, id, nim, total int64, status domain.TransactionStatus, paid bool) {
	if r.publisher == nil {
		return
	}

	event := domain.TransactionEvent{
		EventID:       uuid.NewString(),
		Type:          domain.EventTransactionStatusChanged,
		TransactionID: id,
		StudentID:     nim,
		Status:        status,
		Paid:          paid,
		Total:         total,
		Timestamp:     time.Now().UTC(),
	}
	if student, err := r.students.Get(ctx, nim); err == nil {
		event.StudentName = student.Name
		event.StudentEmail = student.Email
	} else {
		r.logger.Warn("failed to resolve student for event", "error", err, "student_nim", nim)
	}

	if err := r.publisher.Publish(ctx, strconv.FormatInt(id, 10), event.Type, event); err != nil {
		r.logger.Error("failed to publish status changed event", "error", err, "transaction_id", id)
	}
}

// parseAmount reads the gateway's decimal amount ("30000.00") as whole
// minor units.
func parseAmount(s string) (int64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
