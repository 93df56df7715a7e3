// File: internal/usecase/recurring_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"
	"coolpay-gateway/internal/domain/ports/repository"
	"coolpay-gateway/internal/infra/logging"
	"coolpay-gateway/internal/infra/metrics"
	red "coolpay-gateway/internal/infra/redis"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Compile-time check
var _ RecurringUseCase = (*recurringUC)(nil)

const renewalLockTTL = 2 * time.Minute

type RecurringUseCase interface {
	// Charge bills amount against a subscription transaction for order. A zero
	// amount charges the order total.
	Charge(ctx context.Context, subscriptionTransactionID string, amount decimal.Decimal, order *model.Order) (*model.Transaction, error)
	// ChargeRenewal bills a pending renewal order through its subscription.
	ChargeRenewal(ctx context.Context, renewalOrderID int64) (*model.Transaction, error)
}

type recurringUC struct {
	gateway adapter.PaymentGateway
	orders  repository.OrderRepository
	tm      repository.TransactionManager
	cache   adapter.TransactionCache
	locker  adapter.Locker
	ops     *orderOps
	log     *zerolog.Logger
}

func NewRecurringUseCase(
	gateway adapter.PaymentGateway,
	orders repository.OrderRepository,
	tm repository.TransactionManager,
	cache adapter.TransactionCache,
	locker adapter.Locker,
	logger *zerolog.Logger,
) *recurringUC {
	l := logger.With().Str("component", "recurring").Logger()
	return &recurringUC{
		gateway: gateway,
		orders:  orders,
		tm:      tm,
		cache:   cache,
		locker:  locker,
		ops:     newOrderOps(orders, &l),
		log:     &l,
	}
}

func (u *recurringUC) Charge(ctx context.Context, subscriptionTransactionID string, amount decimal.Decimal, order *model.Order) (*model.Transaction, error) {
	log := logging.With(logging.WithOrderID(ctx, order.ID), u.log)
	defer logging.TraceDuration(log, "RecurringUC.Charge")()

	session := u.gateway.Session(adapter.SessionOptions{BlockCallback: true})
	defer session.Close()

	res, err := session.Recurring(ctx, subscriptionTransactionID, order, amount)
	var tx *model.Transaction
	if res != nil {
		tx = res.Transaction
	}
	if err == nil && (tx == nil || !tx.Accepted) {
		err = notAcceptedError(tx)
	}
	if err != nil {
		u.failRenewal(ctx, log, order, res, err)
		return tx, err
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, dbtx repository.Tx) error {
		if _, err := u.ops.applyFee(ctx, dbtx, order, tx); err != nil {
			return err
		}
		if err := u.processRecurringResponse(ctx, dbtx, order, tx); err != nil {
			return err
		}
		if err := u.orders.ResetFailedCount(ctx, dbtx, order.ID); err != nil {
			return fmt.Errorf("reset failed count: %w", err)
		}
		order.FailedPaymentCount = 0
		return nil
	})
	if err != nil {
		metrics.IncRenewal("error")
		return tx, err
	}

	if u.cache.Enabled() {
		if err := u.cache.Put(ctx, tx); err != nil {
			log.Warn().Err(err).Msg("cache recurring transaction")
		}
	}
	metrics.IncRenewal("charged")
	log.Info().Str("transaction_id", tx.IDString()).Msg("recurring payment charged")
	return tx, nil
}

// processRecurringResponse registers the recurring charge on the order.
func (u *recurringUC) processRecurringResponse(ctx context.Context, dbtx repository.Tx, order *model.Order, tx *model.Transaction) error {
	changed, err := u.ops.paymentComplete(ctx, dbtx, order, tx.IDString())
	if err != nil {
		return err
	}
	if !changed {
		u.ops.note(ctx, dbtx, order.ID, fmt.Sprintf("Recurring payment registered. Transaction ID: %s", tx.IDString()))
	}
	return nil
}

func (u *recurringUC) failRenewal(ctx context.Context, log *zerolog.Logger, order *model.Order, res *adapter.RecurringResult, cause error) {
	ev := log.Error().Err(cause).Str("order_number", order.CleanNumber())
	var apiErr *domain.APIError
	if errors.As(cause, &apiErr) {
		ev = ev.Int("http_status", apiErr.HTTPStatus).
			Str("request_url", apiErr.RequestURL).
			Str("request_body", apiErr.RequestBody).
			Str("response_body", apiErr.ResponseBody)
	} else if res != nil {
		ev = ev.Str("request_url", res.RequestURL).Str("request_body", res.RequestBody)
	}
	ev.Msg("recurring payment failed")

	if n, err := u.orders.IncrementFailedCount(ctx, repository.NoTX, order.ID); err != nil {
		log.Error().Err(err).Msg("increment failed payment count")
	} else {
		order.FailedPaymentCount = n
	}

	msg := fmt.Sprintf("Automatic renewal of %s failed. Message: %s", order.CleanNumber(), cause.Error())
	if err := u.ops.setStatus(ctx, repository.NoTX, order, model.OrderStatusFailed, msg); err != nil {
		log.Error().Err(err).Msg("mark renewal failed")
	}

	var declined *domain.RecurringNotAcceptedError
	if errors.As(cause, &declined) {
		metrics.IncRenewal("declined")
		return
	}
	metrics.IncRenewal("error")
}

func (u *recurringUC) ChargeRenewal(ctx context.Context, renewalOrderID int64) (*model.Transaction, error) {
	order, err := u.orders.FindByID(ctx, repository.NoTX, renewalOrderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() {
		return nil, nil
	}
	if order.SubscriptionID == 0 {
		return nil, fmt.Errorf("order %d has no subscription: %w", order.ID, domain.ErrInvalidArgument)
	}
	sub, err := u.orders.FindByID(ctx, repository.NoTX, order.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription %d: %w", order.SubscriptionID, err)
	}
	if sub.TransactionID == "" {
		return nil, domain.ErrEmptyTransactionID
	}

	key := red.TransactionLockKey(sub.TransactionID)
	token, err := u.locker.TryLock(ctx, key, renewalLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			u.log.Warn().Err(err).Str("key", key).Msg("unlock renewal")
		}
	}()

	// another worker may have charged it while we waited
	order, err = u.orders.FindByID(ctx, repository.NoTX, renewalOrderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() {
		return nil, nil
	}
	return u.Charge(ctx, sub.TransactionID, order.Total, order)
}

// notAcceptedError describes a declined charge from its latest operation.
func notAcceptedError(tx *model.Transaction) error {
	e := &domain.RecurringNotAcceptedError{TransactionID: tx.IDString()}
	if op, err := tx.LatestOperation(); err == nil {
		e.QPStatusMsg = op.QPStatusMsg
		e.AQStatusMsg = op.AQStatusMsg
	}
	return e
}
