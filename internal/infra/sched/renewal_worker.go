package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/ports/repository"
	"coolpay-gateway/internal/infra/worker"
	"coolpay-gateway/internal/usecase"

	"github.com/rs/zerolog"
)

// Submitter is the part of worker.Pool the renewal worker needs.
type Submitter interface {
	Submit(task worker.Task) error
}

// RenewalWorker periodically charges due renewal orders through the recurring
// use case, one pool task per order.
type RenewalWorker struct {
	interval  time.Duration
	batch     int
	orders    repository.OrderRepository
	recurring usecase.RecurringUseCase
	pool      Submitter
	log       *zerolog.Logger

	// orders queued or running; a slow charge is not submitted twice
	inflight sync.Map
}

func NewRenewalWorker(interval time.Duration, batch int, orders repository.OrderRepository, recurring usecase.RecurringUseCase, pool Submitter, logger *zerolog.Logger) *RenewalWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	l := logger.With().Str("component", "RenewalWorker").Logger()
	return &RenewalWorker{
		interval:  interval,
		batch:     batch,
		orders:    orders,
		recurring: recurring,
		pool:      pool,
		log:       &l,
	}
}

func (w *RenewalWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting renewal worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping renewal worker")
			return ctx.Err()
		case <-ticker.C:
			if n := w.Tick(ctx); n > 0 {
				w.log.Info().Int("count", n).Msg("renewal charges queued")
			}
		}
	}
}

// Tick queues every due renewal not already in flight and returns how many
// were queued.
func (w *RenewalWorker) Tick(ctx context.Context) int {
	due, err := w.orders.ListDueRenewals(ctx, repository.NoTX, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("list due renewals")
		return 0
	}

	queued := 0
	for _, o := range due {
		id := o.ID
		if _, busy := w.inflight.LoadOrStore(id, struct{}{}); busy {
			continue
		}
		err := w.pool.Submit(func(ctx context.Context) error {
			defer w.inflight.Delete(id)
			return w.charge(ctx, id)
		})
		if err != nil {
			w.inflight.Delete(id)
			if errors.Is(err, worker.ErrQueueFull) {
				w.log.Warn().Int("queued", queued).Msg("worker queue full, remaining renewals wait for the next scan")
				break
			}
			w.log.Error().Err(err).Int64("order_id", id).Msg("submit renewal")
			continue
		}
		queued++
	}
	return queued
}

func (w *RenewalWorker) charge(ctx context.Context, orderID int64) error {
	tx, err := w.recurring.ChargeRenewal(ctx, orderID)
	switch {
	case errors.Is(err, domain.ErrLockNotAcquired):
		// a callback or another worker holds the subscription
		w.log.Debug().Int64("order_id", orderID).Msg("renewal busy, retry on next scan")
		return nil
	case err != nil:
		return err
	}
	if tx != nil {
		w.log.Info().Int64("order_id", orderID).Str("transaction_id", tx.IDString()).Msg("renewal charged")
	}
	return nil
}
