package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/myhmtk/storefront/internal/clock"
	"github.com/myhmtk/storefront/internal/domain"
)

type Expirer interface {
	ExpireIfDue(ctx context.Context, t *domain.Transaction, now time.Time) error
}

type StudentLookup interface {
	Get(ctx context.Context, nim int64) (domain.Student, error)
}

type Source interface {
	Get(ctx context.Context, id int64) (domain.Transaction, error)
	ListByStudent(ctx context.Context, nim int64) ([]domain.Transaction, error)
}

// ReadModel serves transactions with their order snapshots. Overdue pending
// transactions are expired before they are returned.
type ReadModel struct {
	source   Source
	students StudentLookup
	expirer  Expirer
	clock    clock.Clock
}

func NewReadModel(source Source, students StudentLookup, expirer Expirer, clk clock.Clock) *ReadModel {
	return &ReadModel{
		source:   source,
		students: students,
		expirer:  expirer,
		clock:    clk,
	}
}

func (m *ReadModel) Get(ctx context.Context, id int64) (*domain.Transaction, error) {
	t, err := m.source.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.expirer.ExpireIfDue(ctx, &t, m.clock.Now()); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetForStudent is Get restricted to transactions owned by nim.
func (m *ReadModel) GetForStudent(ctx context.Context, nim, id int64) (*domain.Transaction, error) {
	if _, err := m.students.Get(ctx, nim); err != nil {
		return nil, err
	}
	t, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.StudentID != nim {
		return nil, fmt.Errorf("transaction %d of student %d: %w", id, nim, domain.ErrNotFound)
	}
	return t, nil
}

func (m *ReadModel) ListByStudent(ctx context.Context, nim int64) ([]domain.Transaction, error) {
	if _, err := m.students.Get(ctx, nim); err != nil {
		return nil, err
	}
	txns, err := m.source.ListByStudent(ctx, nim)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	for i := range txns {
		if err := m.expirer.ExpireIfDue(ctx, &txns[i], now); err != nil {
			return nil, err
		}
	}
	return txns, nil
}
