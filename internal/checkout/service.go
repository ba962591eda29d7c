// Package checkout turns a student's cart lines into a pending transaction
// with an immutable order snapshot and a payment session.
//
// A checkout runs inside one database transaction. The selected cart lines
// are locked from the moment they are read until commit, so two checkouts of
// the same lines serialize and the loser sees them gone. The payment gateway
// is called while the lock is held. If the gateway fails, the transaction row
// is deleted again and the cart is left untouched.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/myhmtk/storefront/internal/catalog"
	"github.com/myhmtk/storefront/internal/clock"
	"github.com/myhmtk/storefront/internal/domain"
	"github.com/myhmtk/storefront/internal/payment"
	"github.com/myhmtk/storefront/internal/telemetry"
)

// ErrCartLineConsumed means a locked cart line disappeared before it could be
// consumed. The checkout is rolled back.
var ErrCartLineConsumed = errors.New("cart line consumed by another checkout")

const AdminFeeItemID = "admin-fee"

type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

type Tx interface {
	LockCartLines(ctx context.Context, nim int64, ids []int64) ([]domain.CartLine, error)
	CreateTransaction(ctx context.Context, t *domain.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	AttachPaymentURL(ctx context.Context, id int64, url string) error
	InsertOrders(ctx context.Context, transactionID int64, orders []domain.Order) error
	ConsumeCartLines(ctx context.Context, nim int64, ids []int64) (int, error)
	Commit() error
	Rollback() error
}

type StudentLookup interface {
	Get(ctx context.Context, nim int64) (domain.Student, error)
}

type Publisher interface {
	Publish(ctx context.Context, key, eventType string, event any) error
}

type Config struct {
	AdminFee      int64
	MerchantName  string
	PaymentMethod string
	PaymentExpiry time.Duration
}

type Result struct {
	TransactionID int64
	Total         int64
	PaymentURL    string
}

type Service struct {
	store     Store
	students  StudentLookup
	products  catalog.Lookup
	gateway   payment.SessionCreator
	clock     clock.Clock
	publisher Publisher
	metrics   *telemetry.Metrics
	cfg       Config
	logger    *slog.Logger
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, students StudentLookup, products catalog.Lookup, gateway payment.SessionCreator,
	clk clock.Clock, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		students: students,
		products: products,
		gateway:  gateway,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout creates a pending transaction from the given cart lines of
// student nim and returns the payment redirect URL. Ids that are unknown,
// belong to another student or no longer reference an existing product are
// skipped. If none remain the checkout fails with domain.ErrEmptyCheckout.
func (s *Service) Checkout(ctx context.Context, nim int64, cartLineIDs []int64) (Result, error) {
	res, err := s.checkout(ctx, nim, cartLineIDs)
	s.metrics.Checkout(ctx, outcome(err))
	return res, err
}

func (s *Service) checkout(ctx context.Context, nim int64, cartLineIDs []int64) (Result, error) {
	if len(cartLineIDs) == 0 {
		return Result{}, fmt.Errorf("%w: no cart lines selected", domain.ErrValidation)
	}
	ids := uniqueIDs(cartLineIDs)

	student, err := s.students.Get(ctx, nim)
	if err != nil {
		return Result{}, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin checkout: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	lines, err := tx.LockCartLines(ctx, nim, ids)
	if err != nil {
		return Result{}, fmt.Errorf("lock cart lines: %w", err)
	}

	orders, lineIDs, err := s.resolve(ctx, inSubmissionOrder(lines, ids))
	if err != nil {
		return Result{}, err
	}
	if len(orders) == 0 {
		return Result{}, domain.ErrEmptyCheckout
	}
	if len(orders) < len(ids) {
		s.logger.Info("cart lines skipped at checkout", "student_nim", nim, "requested", len(ids), "resolved", len(orders))
	}

	txn := &domain.Transaction{
		StudentID: nim,
		CreatedAt: s.clock.Now(),
		Total:     domain.OrdersTotal(orders, s.cfg.AdminFee),
		Status:    domain.TransactionStatusPending,
	}
	if err := tx.CreateTransaction(ctx, txn); err != nil {
		return Result{}, fmt.Errorf("create transaction: %w", err)
	}

	started := time.Now()
	url, err := s.gateway.CreateSession(ctx, s.sessionRequest(txn, orders, student))
	s.metrics.GatewayCall(ctx, started, err)
	if err != nil {
		s.logger.Error("payment session failed", "error", err, "transaction_id", txn.ID, "student_nim", nim)
		if cerr := s.compensate(ctx, tx, txn.ID); cerr != nil {
			return Result{}, errors.Join(fmt.Errorf("request payment session: %w", err), cerr)
		}
		return Result{}, fmt.Errorf("request payment session: %w", err)
	}

	if err := tx.AttachPaymentURL(ctx, txn.ID, url); err != nil {
		return Result{}, fmt.Errorf("attach payment url: %w", err)
	}
	if err := tx.InsertOrders(ctx, txn.ID, orders); err != nil {
		return Result{}, fmt.Errorf("insert orders: %w", err)
	}
	consumed, err := tx.ConsumeCartLines(ctx, nim, lineIDs)
	if err != nil {
		return Result{}, fmt.Errorf("consume cart lines: %w", err)
	}
	if consumed != len(lineIDs) {
		return Result{}, fmt.Errorf("%w: consumed %d of %d", ErrCartLineConsumed, consumed, len(lineIDs))
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit checkout: %w", err)
	}

	txn.PaymentURL = &url
	txn.Orders = orders
	s.logger.Info("transaction created", "transaction_id", txn.ID, "student_nim", nim, "total", txn.Total, "orders", len(orders))
	s.publish(ctx, txn, student)

	return Result{TransactionID: txn.ID, Total: txn.Total, PaymentURL: url}, nil
}

// resolve snapshots the product of every locked line. Lines whose product is
// gone are dropped.
func (s *Service) resolve(ctx context.Context, lines []domain.CartLine) ([]domain.Order, []int64, error) {
	if len(lines) == 0 {
		return nil, nil, nil
	}

	productIDs := make([]int64, 0, len(lines))
	for _, l := range lines {
		productIDs = append(productIDs, l.ProductID)
	}
	products, err := s.products.Products(ctx, productIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve products: %w", err)
	}

	orders := make([]domain.Order, 0, len(lines))
	lineIDs := make([]int64, 0, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue
		}
		orders = append(orders, domain.Order{
			Product:  domain.SnapshotOf(p),
			Quantity: l.Quantity,
			Size:     l.Size,
			Note:     l.Note,
		})
		lineIDs = append(lineIDs, l.ID)
	}
	return orders, lineIDs, nil
}

// uniqueIDs drops repeated ids, keeping the first occurrence of each.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// inSubmissionOrder sorts locked lines to follow ids. Lines are locked in id
// order to keep lock acquisition consistent across checkouts.
func inSubmissionOrder(lines []domain.CartLine, ids []int64) []domain.CartLine {
	pos := make(map[int64]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	sorted := slices.Clone(lines)
	slices.SortFunc(sorted, func(a, b domain.CartLine) int {
		return pos[a.ID] - pos[b.ID]
	})
	return sorted
}

// compensate removes the transaction row created before the failed gateway
// call and commits, releasing the cart-line locks with the cart unchanged.
func (s *Service) compensate(ctx context.Context, tx Tx, id int64) error {
	if err := tx.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit compensation: %w", err)
	}
	return nil
}

func (s *Service) sessionRequest(txn *domain.Transaction, orders []domain.Order, student domain.Student) payment.SessionRequest {
	items := make([]payment.Item, 0, len(orders)+1)
	for _, o := range orders {
		items = append(items, payment.Item{
			ID:           strconv.FormatInt(o.Product.ID, 10),
			Price:        o.Product.Price,
			Quantity:     o.Quantity,
			Name:         o.Product.Name,
			MerchantName: s.cfg.MerchantName,
			URL:          o.Product.ImageURL,
		})
	}
	if s.cfg.AdminFee > 0 {
		items = append(items, payment.Item{
			ID:           AdminFeeItemID,
			Price:        s.cfg.AdminFee,
			Quantity:     1,
			Name:         "Admin fee",
			MerchantName: s.cfg.MerchantName,
		})
	}

	first, last := splitName(student.Name)
	expiry := payment.ExpiryMinutes(s.cfg.PaymentExpiry)

	return payment.SessionRequest{
		TransactionDetails: payment.TransactionDetails{
			OrderID:     strconv.FormatInt(txn.ID, 10),
			GrossAmount: txn.Total,
		},
		PaymentType: s.cfg.PaymentMethod,
		Items:       items,
		Customer: payment.Customer{
			FirstName: first,
			LastName:  last,
			Email:     student.Email,
			Phone:     student.Phone,
		},
		Expiry:     expiry,
		PageExpiry: expiry,
	}
}

func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	return fields[0], fields[len(fields)-1]
}

func (s *Service) publish(ctx context.Context, txn *domain.Transaction, student domain.Student) {
	if s.publisher == nil {
		return
	}
	event := domain.TransactionEvent{
		EventID:       uuid.NewString(),
		Type:          domain.EventTransactionCreated,
		TransactionID: txn.ID,
		StudentID:     txn.StudentID,
		StudentName:   student.Name,
		StudentEmail:  student.Email,
		Status:        txn.Status,
		Total:         txn.Total,
		PaymentURL:    *txn.PaymentURL,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, strconv.FormatInt(txn.ID, 10), event.Type, event); err != nil {
		s.logger.Error("failed to publish transaction created event", "error", err, "transaction_id", txn.ID)
	}
}

func outcome(err error) string {
	var gwErr *payment.GatewayError
	switch {
	case err == nil:
		return "created"
	case errors.As(err, &gwErr):
		return "gateway_error"
	case errors.Is(err, domain.ErrEmptyCheckout), errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
		return "rejected"
	}
	return "error"
}
