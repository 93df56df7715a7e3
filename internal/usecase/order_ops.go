package usecase

import (
	"context"
	"fmt"
	"time"

	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/repository"
	"coolpay-gateway/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// notePrefix marks notes written by the gateway integration.
const notePrefix = "CoolPay: "

// orderOps bundles the guarded order mutations shared by the callback,
// recurring and admin flows.
type orderOps struct {
	orders repository.OrderRepository
	log    *zerolog.Logger
	now    func() time.Time
}

func newOrderOps(orders repository.OrderRepository, logger *zerolog.Logger) *orderOps {
	return &orderOps{orders: orders, log: logger, now: time.Now}
}

// note adds a prefixed order note. Failures are logged only.
func (o *orderOps) note(ctx context.Context, tx repository.Tx, orderID int64, msg string) {
	if msg == "" {
		return
	}
	if err := o.orders.AddNote(ctx, tx, orderID, notePrefix+msg); err != nil {
		o.log.Error().Err(err).Int64("order_id", orderID).Msg("failed to add order note")
	}
}

// setStatus changes the order status and records msg verbatim.
func (o *orderOps) setStatus(ctx context.Context, tx repository.Tx, order *model.Order, status model.OrderStatus, msg string) error {
	if err := o.orders.UpdateStatus(ctx, tx, order.ID, status); err != nil {
		return fmt.Errorf("update order %d status: %w", order.ID, err)
	}
	order.Status = status
	if msg != "" {
		if err := o.orders.AddNote(ctx, tx, order.ID, msg); err != nil {
			o.log.Error().Err(err).Int64("order_id", order.ID).Msg("failed to add status note")
		}
	}
	return nil
}

// paymentComplete registers the payment unless the order is already paid.
// It reports whether the order changed.
func (o *orderOps) paymentComplete(ctx context.Context, tx repository.Tx, order *model.Order, transactionID string) (bool, error) {
	now := o.now()
	changed, err := o.orders.MarkPaidIfUnpaid(ctx, tx, order.ID, transactionID, now)
	if err != nil {
		return false, fmt.Errorf("mark order %d paid: %w", order.ID, err)
	}
	if !changed {
		o.log.Info().Int64("order_id", order.ID).Str("transaction_id", transactionID).Msg("order already paid, payment complete skipped")
		return false, nil
	}
	order.Status = model.OrderStatusProcessing
	order.TransactionID = transactionID
	order.PaidAt = &now

	metrics.IncPayment("authorized")
	metrics.AddPaymentRevenue(order.Currency, model.PriceMultiply(order.Total))
	return true, nil
}

// applyFee adds the gateway fee line at most once per order.
func (o *orderOps) applyFee(ctx context.Context, tx repository.Tx, order *model.Order, t *model.Transaction) (bool, error) {
	if t == nil || t.Fee <= 0 {
		return false, nil
	}
	fee := model.MinorToDecimal(t.Fee)
	applied, err := o.orders.ApplyFeeOnce(ctx, tx, order.ID, t.IDString(), fee)
	if err != nil {
		return false, fmt.Errorf("apply fee to order %d: %w", order.ID, err)
	}
	if applied {
		now := o.now()
		order.Total = order.Total.Add(fee)
		order.FeeAppliedAt = &now
	}
	return applied, nil
}

// subscriptionFailure fails the order and puts the subscription it pays for on hold.
func (o *orderOps) subscriptionFailure(ctx context.Context, tx repository.Tx, order *model.Order) error {
	if err := o.setStatus(ctx, tx, order, model.OrderStatusFailed, ""); err != nil {
		return err
	}
	subID := order.SubscriptionID
	if order.IsSubscription {
		subID = order.ID
	}
	if subID == 0 {
		return nil
	}
	if err := o.orders.UpdateStatus(ctx, tx, subID, model.OrderStatusOnHold); err != nil {
		return fmt.Errorf("hold subscription %d: %w", subID, err)
	}
	o.note(ctx, tx, subID, fmt.Sprintf("Payment failed on order #%s. Subscription put on hold.", order.CleanNumber()))
	return nil
}
