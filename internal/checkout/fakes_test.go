package checkout

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/myhmtk/storefront/internal/domain"
	"github.com/myhmtk/storefront/internal/payment"
)

// memStore is an in-memory Store. Begin holds a store-wide lock until
// commit or rollback, which is stricter than row locks but serializes
// checkouts the same way for overlapping lines.
type memStore struct {
	lock sync.Mutex

	nextTxnID    int64
	nextOrderID  int64
	cart         map[int64]domain.CartLine
	transactions map[int64]domain.Transaction
	orders       map[int64][]domain.Order

	// stealOnConsume removes a line right before consumption.
	stealOnConsume int64
}

func newMemStore(lines ...domain.CartLine) *memStore {
	s := &memStore{
		cart:         map[int64]domain.CartLine{},
		transactions: map[int64]domain.Transaction{},
		orders:       map[int64][]domain.Order{},
	}
	for _, l := range lines {
		s.cart[l.ID] = l
	}
	return s
}

func (s *memStore) Begin(_ context.Context) (Tx, error) {
	s.lock.Lock()
	return &memTx{
		s:            s,
		nextTxnID:    s.nextTxnID,
		nextOrderID:  s.nextOrderID,
		cart:         maps.Clone(s.cart),
		transactions: maps.Clone(s.transactions),
		orders:       maps.Clone(s.orders),
	}, nil
}

func (s *memStore) cartIDs() []int64 {
	return slices.Sorted(maps.Keys(s.cart))
}

type memTx struct {
	s    *memStore
	done bool

	nextTxnID    int64
	nextOrderID  int64
	cart         map[int64]domain.CartLine
	transactions map[int64]domain.Transaction
	orders       map[int64][]domain.Order
}

func (t *memTx) LockCartLines(_ context.Context, nim int64, ids []int64) ([]domain.CartLine, error) {
	var out []domain.CartLine
	for _, id := range ids {
		if l, ok := t.cart[id]; ok && l.StudentID == nim {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b domain.CartLine) int { return int(a.ID - b.ID) })
	return out, nil
}

func (t *memTx) CreateTransaction(_ context.Context, txn *domain.Transaction) error {
	t.nextTxnID++
	txn.ID = t.nextTxnID
	t.transactions[txn.ID] = *txn
	return nil
}

func (t *memTx) DeleteTransaction(_ context.Context, id int64) error {
	delete(t.transactions, id)
	return nil
}

func (t *memTx) AttachPaymentURL(_ context.Context, id int64, url string) error {
	txn, ok := t.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %d missing", id)
	}
	txn.PaymentURL = &url
	t.transactions[id] = txn
	return nil
}

func (t *memTx) InsertOrders(_ context.Context, transactionID int64, orders []domain.Order) error {
	for i := range orders {
		t.nextOrderID++
		orders[i].ID = t.nextOrderID
		orders[i].TransactionID = transactionID
	}
	t.orders[transactionID] = slices.Clone(orders)
	return nil
}

func (t *memTx) ConsumeCartLines(_ context.Context, nim int64, ids []int64) (int, error) {
	if t.s.stealOnConsume != 0 {
		delete(t.cart, t.s.stealOnConsume)
	}
	n := 0
	for _, id := range ids {
		if l, ok := t.cart[id]; ok && l.StudentID == nim {
			delete(t.cart, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.s.nextTxnID = t.nextTxnID
	t.s.nextOrderID = t.nextOrderID
	t.s.cart = t.cart
	t.s.transactions = t.transactions
	t.s.orders = t.orders
	t.s.lock.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.lock.Unlock()
	return nil
}

type fakeStudents map[int64]domain.Student

func (f fakeStudents) Get(_ context.Context, nim int64) (domain.Student, error) {
	s, ok := f[nim]
	if !ok {
		return s, fmt.Errorf("student %d: %w", nim, domain.ErrNotFound)
	}
	return s, nil
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[int64]domain.Product
}

func (f *fakeCatalog) Products(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]domain.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeCatalog) setPrice(id, price int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[id]
	p.Price = price
	f.products[id] = p
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []payment.SessionRequest
	err      error
}

func (g *fakeGateway) CreateSession(_ context.Context, req payment.SessionRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	return "https://pay.example/snap/" + req.TransactionDetails.OrderID, nil
}

type published struct {
	key       string
	eventType string
	event     any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(_ context.Context, key, eventType string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{key: key, eventType: eventType, event: event})
	return nil
}
