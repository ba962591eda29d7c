package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/myhmtk/storefront/internal/domain"
)

type memStore struct {
	txLock sync.Mutex
	mu     sync.Mutex
	txns   map[int64]domain.Transaction
}

func newMemStore(txns ...domain.Transaction) *memStore {
	s := &memStore{txns: map[int64]domain.Transaction{}}
	for _, t := range txns {
		s.txns[t.ID] = t
	}
	return s
}

func (s *memStore) get(id int64) domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns[id]
}

func (s *memStore) Begin(_ context.Context) (Tx, error) {
	s.txLock.Lock()
	return &memTx{s: s, pending: map[int64]domain.Transaction{}}, nil
}

func (s *memStore) ExpireIfPending(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok || t.Status != domain.TransactionStatusPending {
		return false, nil
	}
	t.Status = domain.TransactionStatusExpired
	s.txns[id] = t
	return true, nil
}

func (s *memStore) CurrentStatus(_ context.Context, id int64) (domain.TransactionStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return "", false, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	return t.Status, t.Paid, nil
}

func (s *memStore) ExpireDue(_ context.Context, cutoff time.Time) ([]Expired, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Expired
	for id, t := range s.txns {
		if t.Status == domain.TransactionStatusPending && !t.CreatedAt.After(cutoff) {
			t.Status = domain.TransactionStatusExpired
			s.txns[id] = t
			out = append(out, Expired{ID: id, StudentID: t.StudentID, Total: t.Total})
		}
	}
	return out, nil
}

type memTx struct {
	s       *memStore
	done    bool
	pending map[int64]domain.Transaction
}

func (t *memTx) LockTransaction(_ context.Context, id int64) (domain.Transaction, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	txn, ok := t.s.txns[id]
	if !ok {
		return txn, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	return txn, nil
}

func (t *memTx) SetStatus(_ context.Context, id int64, status domain.TransactionStatus, paid bool) error {
	txn := t.s.get(id)
	txn.Status = status
	txn.Paid = paid
	t.pending[id] = txn
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.s.mu.Lock()
	for id, txn := range t.pending {
		t.s.txns[id] = txn
	}
	t.s.mu.Unlock()
	t.s.txLock.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.txLock.Unlock()
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

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.TransactionEvent
}

func (p *fakePublisher) Publish(_ context.Context, _, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(domain.TransactionEvent))
	return nil
}
