//go:build !integration

package sched

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/repository"
	"coolpay-gateway/internal/infra/worker"
)

type stubOrders struct {
	repository.OrderRepository
	due []*model.Order
	err error
	got int
}

func (s *stubOrders) ListDueRenewals(ctx context.Context, tx repository.Tx, limit int) ([]*model.Order, error) {
	s.got = limit
	return s.due, s.err
}

type stubRecurring struct {
	mu      sync.Mutex
	charged []int64
	err     error
}

func (s *stubRecurring) Charge(ctx context.Context, id string, amount decimal.Decimal, order *model.Order) (*model.Transaction, error) {
	return nil, nil
}

func (s *stubRecurring) ChargeRenewal(ctx context.Context, renewalOrderID int64) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charged = append(s.charged, renewalOrderID)
	return &model.Transaction{ID: renewalOrderID + 1000}, s.err
}

// manualPool keeps tasks until run is called.
type manualPool struct {
	tasks []worker.Task
	limit int
}

func (p *manualPool) Submit(task worker.Task) error {
	if p.limit > 0 && len(p.tasks) >= p.limit {
		return worker.ErrQueueFull
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *manualPool) run(ctx context.Context) []error {
	var errs []error
	for _, t := range p.tasks {
		errs = append(errs, t(ctx))
	}
	p.tasks = nil
	return errs
}

func newWorker(orders *stubOrders, rec *stubRecurring, pool Submitter) *RenewalWorker {
	logger := zerolog.Nop()
	return NewRenewalWorker(0, 10, orders, rec, pool, &logger)
}

func TestRenewalWorker_Tick(t *testing.T) {
	ctx := context.Background()
	orders := &stubOrders{due: []*model.Order{{ID: 2000}, {ID: 2001}}}
	rec := &stubRecurring{}
	pool := &manualPool{}
	w := newWorker(orders, rec, pool)

	if n := w.Tick(ctx); n != 2 {
		t.Fatalf("queued %d, want 2", n)
	}
	if orders.got != 10 {
		t.Errorf("batch = %d", orders.got)
	}

	// still queued: a second scan must not submit them again
	if n := w.Tick(ctx); n != 0 {
		t.Fatalf("in-flight renewals resubmitted: %d", n)
	}

	pool.run(ctx)
	sort.Slice(rec.charged, func(i, j int) bool { return rec.charged[i] < rec.charged[j] })
	if len(rec.charged) != 2 || rec.charged[0] != 2000 || rec.charged[1] != 2001 {
		t.Fatalf("charged = %v", rec.charged)
	}

	if n := w.Tick(ctx); n != 2 {
		t.Errorf("finished renewals should be schedulable again, queued %d", n)
	}
}

func TestRenewalWorker_QueueFull(t *testing.T) {
	orders := &stubOrders{due: []*model.Order{{ID: 1}, {ID: 2}, {ID: 3}}}
	pool := &manualPool{limit: 1}
	w := newWorker(orders, &stubRecurring{}, pool)

	if n := w.Tick(context.Background()); n != 1 {
		t.Fatalf("queued %d, want 1", n)
	}
	pool.limit = 0
	if n := w.Tick(context.Background()); n != 2 {
		t.Fatalf("dropped renewals were not retried, queued %d", n)
	}
}

func TestRenewalWorker_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("busy lock is not an error", func(t *testing.T) {
		pool := &manualPool{}
		w := newWorker(&stubOrders{due: []*model.Order{{ID: 1}}}, &stubRecurring{err: domain.ErrLockNotAcquired}, pool)
		w.Tick(ctx)
		if errs := pool.run(ctx); errs[0] != nil {
			t.Fatalf("want nil, got %v", errs[0])
		}
	})

	t.Run("decline surfaces to the pool", func(t *testing.T) {
		pool := &manualPool{}
		declined := &domain.RecurringNotAcceptedError{TransactionID: "9"}
		w := newWorker(&stubOrders{due: []*model.Order{{ID: 1}}}, &stubRecurring{err: declined}, pool)
		w.Tick(ctx)
		if errs := pool.run(ctx); !errors.As(errs[0], &declined) {
			t.Fatalf("want RecurringNotAcceptedError, got %v", errs[0])
		}
	})

	t.Run("repository failure queues nothing", func(t *testing.T) {
		pool := &manualPool{}
		w := newWorker(&stubOrders{err: errors.New("db down")}, &stubRecurring{}, pool)
		if n := w.Tick(ctx); n != 0 || len(pool.tasks) != 0 {
			t.Fatalf("queued %d", n)
		}
	})
}
