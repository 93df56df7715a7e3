// File: internal/usecase/callback_uc.go
package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
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
)

// Compile-time check
var _ CallbackUseCase = (*callbackUC)(nil)

const callbackLockTTL = time.Minute

// trailing digits of the gateway order id, used when no post id is sent
var orderNumberTail = regexp.MustCompile(`\d{4,}$`)

type CallbackUseCase interface {
	// Handle verifies and applies one gateway callback. Errors are for logging;
	// the HTTP layer always answers 200.
	Handle(ctx context.Context, rawBody []byte, signature string, query url.Values) error
}

type callbackUC struct {
	verifier  adapter.CallbackVerifier
	orders    repository.OrderRepository
	tm        repository.TransactionManager
	locker    adapter.Locker
	recurring RecurringUseCase
	bus       adapter.EventBus
	ops       *orderOps
	log       *zerolog.Logger
}

func NewCallbackUseCase(
	verifier adapter.CallbackVerifier,
	orders repository.OrderRepository,
	tm repository.TransactionManager,
	locker adapter.Locker,
	recurring RecurringUseCase,
	bus adapter.EventBus,
	logger *zerolog.Logger,
) *callbackUC {
	l := logger.With().Str("component", "callback").Logger()
	return &callbackUC{
		verifier:  verifier,
		orders:    orders,
		tm:        tm,
		locker:    locker,
		recurring: recurring,
		bus:       bus,
		ops:       newOrderOps(orders, &l),
		log:       &l,
	}
}

func (u *callbackUC) Handle(ctx context.Context, rawBody []byte, signature string, query url.Values) error {
	if len(bytes.TrimSpace(rawBody)) == 0 {
		metrics.IncCallback("invalid")
		return domain.ErrEmptyCallback
	}

	if err := u.verifier.Verify(rawBody, signature); err != nil {
		reason := "signature mismatch"
		if errors.Is(err, domain.ErrMissingSignature) {
			reason = "missing signature header"
		}
		u.log.Warn().Str("reason", reason).Int("body_size", len(rawBody)).Msg("invalid callback body")
		metrics.IncCallback("unauthorized")
		return err
	}

	tx, err := model.DecodeTransaction(rawBody)
	if err != nil {
		metrics.IncCallback("invalid")
		return fmt.Errorf("decode callback: %w", err)
	}

	orderID := ResolveOrderID(tx, query)
	if orderID == 0 {
		u.log.Warn().Str("gateway_order_id", tx.OrderID).Msg("callback without order reference")
		metrics.IncCallback("invalid")
		return domain.ErrOrderNotResolvable
	}
	subscriptionID := ResolveSubscriptionID(tx, query)

	ctx = logging.WithTransactionID(logging.WithOrderID(ctx, orderID), tx.IDString())
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "CallbackUC.Handle")()

	key := red.TransactionLockKey(tx.IDString())
	token, err := u.locker.TryLock(ctx, key, callbackLockTTL)
	if err != nil {
		// the gateway does not resend an acknowledged callback, so the order
		// update goes ahead under the database guards
		if errors.Is(err, domain.ErrLockNotAcquired) && u.duplicateAuthorize(ctx, orderID, tx) {
			log.Info().Msg("transaction locked by a concurrent callback and order already paid, skipping")
			metrics.IncCallback("duplicate")
			return nil
		}
		log.Warn().Err(err).Msg("transaction lock unavailable, continuing without it")
	} else {
		defer func() {
			if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn().Err(err).Msg("unlock transaction")
			}
		}()
	}

	if !tx.Accepted {
		err = u.rejected(ctx, log, orderID, tx)
		if err != nil {
			metrics.IncCallback("error")
			return err
		}
		metrics.IncCallback("rejected")
		return nil
	}

	if err := u.accepted(ctx, log, orderID, subscriptionID, tx, rawBody); err != nil {
		log.Error().Err(err).Msg("callback processing failed")
		metrics.IncCallback("error")
		return err
	}
	metrics.IncCallback("processed")
	return nil
}

// duplicateAuthorize reports an accepted authorize for an order that is already paid.
func (u *callbackUC) duplicateAuthorize(ctx context.Context, orderID int64, tx *model.Transaction) bool {
	if !tx.Accepted {
		return false
	}
	if op, err := tx.LastOperation(); err != nil || op.Type != model.OperationAuthorize {
		return false
	}
	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	return err == nil && order.IsPaid()
}

func (u *callbackUC) accepted(ctx context.Context, log *zerolog.Logger, orderID, subscriptionID int64, tx *model.Transaction, rawBody []byte) error {
	op, err := tx.LastOperation()
	if err != nil {
		return err
	}

	switch op.Type {
	case model.OperationCancel:
		u.ops.note(ctx, repository.NoTX, orderID, "Payment cancelled.")
		metrics.IncPayment("cancelled")
	case model.OperationCapture:
		u.ops.note(ctx, repository.NoTX, orderID, "Payment captured.")
		metrics.IncPayment("captured")
	case model.OperationRefund:
		u.ops.note(ctx, repository.NoTX, orderID, fmt.Sprintf("Refunded %s %s", model.PriceNormalize(op.Amount), tx.Currency))
		metrics.IncPayment("refunded")
	case model.OperationAuthorize:
		if subscriptionID != 0 {
			err = u.subscriptionAuthorized(ctx, log, orderID, subscriptionID, tx)
		} else {
			err = u.paymentAuthorized(ctx, orderID, tx)
		}
		if err != nil {
			return err
		}
	default:
		log.Debug().Str("operation", string(op.Type)).Msg("no order changes for operation")
	}

	ev := model.CallbackEvent{OrderID: orderID, Transaction: tx, Payload: rawBody}
	ev.Name = model.EventAccepted
	u.bus.Emit(ctx, ev)
	ev.Name = model.AcceptedTypeEvent(op.Type)
	u.bus.Emit(ctx, ev)
	return nil
}

// paymentAuthorized registers a regular payment. Fee and payment complete are
// both guarded so a replayed callback changes nothing.
func (u *callbackUC) paymentAuthorized(ctx context.Context, orderID int64, tx *model.Transaction) error {
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, dbtx repository.Tx) error {
		order, err := u.orders.FindByID(ctx, dbtx, orderID)
		if err != nil {
			return fmt.Errorf("load order %d: %w", orderID, err)
		}
		if err := u.clearCheckoutMeta(ctx, dbtx, order, tx); err != nil {
			return err
		}

		if _, err := u.ops.applyFee(ctx, dbtx, order, tx); err != nil {
			return err
		}

		if order.PreOrderTokenization {
			order.TransactionID = tx.IDString()
			if err := u.orders.SetTransactionID(ctx, dbtx, order.ID, order.TransactionID); err != nil {
				return fmt.Errorf("save order %d transaction: %w", orderID, err)
			}
			if err := u.ops.setStatus(ctx, dbtx, order, model.OrderStatusPreOrdered, ""); err != nil {
				return err
			}
		} else if _, err := u.ops.paymentComplete(ctx, dbtx, order, tx.IDString()); err != nil {
			return err
		}

		u.ops.note(ctx, dbtx, orderID, fmt.Sprintf("Payment authorized. Transaction ID: %s", tx.IDString()))
		return nil
	})
}

// subscriptionAuthorized stores the subscription transaction and bills the
// initial payment when the order has one.
func (u *callbackUC) subscriptionAuthorized(ctx context.Context, log *zerolog.Logger, orderID, subscriptionID int64, tx *model.Transaction) error {
	var order *model.Order
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, dbtx repository.Tx) error {
		var err error
		order, err = u.orders.FindByID(ctx, dbtx, orderID)
		if err != nil {
			return fmt.Errorf("load order %d: %w", orderID, err)
		}
		if err := u.clearCheckoutMeta(ctx, dbtx, order, tx); err != nil {
			return err
		}

		sub := order
		if subscriptionID != orderID {
			sub, err = u.orders.FindByID(ctx, dbtx, subscriptionID)
			if err != nil {
				return fmt.Errorf("load subscription %d: %w", subscriptionID, err)
			}
		}
		sub.TransactionID = tx.IDString()
		sub.TransactionOrderID = tx.OrderID
		if err := u.orders.SetTransactionID(ctx, dbtx, sub.ID, sub.TransactionID); err != nil {
			return fmt.Errorf("save subscription %d: %w", subscriptionID, err)
		}
		if err := u.orders.SetTransactionOrderID(ctx, dbtx, sub.ID, sub.TransactionOrderID); err != nil {
			return fmt.Errorf("save subscription %d: %w", subscriptionID, err)
		}
		u.ops.note(ctx, dbtx, subscriptionID, fmt.Sprintf("Subscription authorized. Transaction ID: %s", tx.IDString()))
		return nil
	})
	if err != nil {
		return err
	}

	// a replayed authorize must not bill the initial payment twice
	if order.IsPaid() {
		log.Info().Msg("order already paid, initial subscription payment skipped")
		return nil
	}

	// the order total is the initial payment of the subscription
	initial := order.Total
	if initial.IsPositive() {
		if !order.IsSubscription && order.ContainsSubscription {
			// failures are recorded on the order by the recurring flow
			if _, err := u.recurring.Charge(ctx, tx.IDString(), initial, order); err != nil {
				log.Warn().Err(err).Msg("initial subscription payment failed")
			}
		}
		return nil
	}

	if tx.Variables.Bool("change_payment") {
		return nil
	}
	_, err = u.ops.paymentComplete(ctx, repository.NoTX, order, order.TransactionID)
	return err
}

func (u *callbackUC) rejected(ctx context.Context, log *zerolog.Logger, orderID int64, tx *model.Transaction) error {
	// diagnostics come from the newest operation, successful or not
	op, err := tx.LatestOperation()
	if err != nil {
		log.Warn().Err(err).Msg("transaction failed without operations")
		op = &model.Operation{}
	}
	log.Warn().
		Str("state", string(tx.State)).
		Str("operation", string(op.Type)).
		Int("qp_status_code", int(op.QPStatusCode)).
		Str("qp_status_msg", op.QPStatusMsg).
		Int("aq_status_code", int(op.AQStatusCode)).
		Str("aq_status_msg", op.AQStatusMsg).
		Msg("transaction failed")

	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return fmt.Errorf("load order %d: %w", orderID, err)
	}

	if op.Type == model.OperationRecurring {
		if err := u.ops.subscriptionFailure(ctx, repository.NoTX, order); err != nil {
			return err
		}
	}
	if tx.State == model.TransactionStateRejected {
		return nil
	}
	if op.Type == model.OperationSubscribe {
		return u.ops.subscriptionFailure(ctx, repository.NoTX, order)
	}
	return u.ops.setStatus(ctx, repository.NoTX, order, model.OrderStatusFailed, "")
}

// clearCheckoutMeta drops the payment link and id once the transaction is authorized.
func (u *callbackUC) clearCheckoutMeta(ctx context.Context, dbtx repository.Tx, order *model.Order, tx *model.Transaction) error {
	order.TransactionOrderID = tx.OrderID
	order.PaymentLink = ""
	order.PaymentID = ""
	if err := u.orders.SetTransactionOrderID(ctx, dbtx, order.ID, order.TransactionOrderID); err != nil {
		return fmt.Errorf("save order %d: %w", order.ID, err)
	}
	if err := u.orders.SetPaymentLink(ctx, dbtx, order.ID, "", ""); err != nil {
		return fmt.Errorf("save order %d: %w", order.ID, err)
	}
	return nil
}

// ResolveOrderID finds the local order for a callback: the order_post_id
// variable, then the query string, then the trailing digits of the gateway order id.
func ResolveOrderID(tx *model.Transaction, query url.Values) int64 {
	if id := tx.Variables.Int64("order_post_id"); id > 0 {
		return id
	}
	if v := strings.TrimSpace(query.Get("order_post_id")); v != "" {
		return parseID(v)
	}
	return parseID(orderNumberTail.FindString(tx.OrderID))
}

// ResolveSubscriptionID returns 0 when the callback carries no subscription reference.
func ResolveSubscriptionID(tx *model.Transaction, query url.Values) int64 {
	if id := tx.Variables.Int64("subscription_post_id"); id > 0 {
		return id
	}
	return parseID(strings.TrimSpace(query.Get("subscription_post_id")))
}

// parseID reads decimal ids, leading zeros included. Garbage yields 0.
func parseID(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
