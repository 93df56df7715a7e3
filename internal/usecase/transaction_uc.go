// File: internal/usecase/transaction_uc.go
package usecase

import (
	"context"
	"fmt"

	"coolpay-gateway/internal/config"
	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"
	"coolpay-gateway/internal/domain/ports/repository"
	"coolpay-gateway/internal/infra/logging"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Compile-time check
var _ TransactionUseCase = (*transactionUC)(nil)

type TransactionUseCase interface {
	// Load returns the transaction, served from the cache when possible.
	Load(ctx context.Context, kind model.ResourceKind, transactionID string) (*model.Transaction, error)
	// TransactionInfo summarizes the transaction of an order for operators.
	TransactionInfo(ctx context.Context, orderID int64) (*TransactionInfo, error)
	// PaymentLink creates the payment when needed and renders a fresh link.
	PaymentLink(ctx context.Context, orderID int64) (string, error)
	// ProcessRefund refunds amount, or the captured balance when amount is zero.
	ProcessRefund(ctx context.Context, orderID int64, amount decimal.Decimal) (*model.Transaction, error)
	// CaptureOnComplete captures what is left of a completed order.
	CaptureOnComplete(ctx context.Context, orderID int64) error
	ProcessPreOrderPayment(ctx context.Context, orderID int64) error
	CancelSubscription(ctx context.Context, subscriptionID int64) error
	ChangeSubscriptionTransactionID(ctx context.Context, subscriptionID int64, transactionID string) error
	// PaymentMethodChanged counts a switch of the subscription to this gateway.
	PaymentMethodChanged(ctx context.Context, subscriptionID int64) error
	Ping(ctx context.Context) error
}

// TransactionInfo is the operator view of a transaction.
type TransactionInfo struct {
	OrderID          int64          `json:"order_id"`
	TransactionID    string         `json:"transaction_id"`
	Kind             string         `json:"kind"`
	State            string         `json:"state"`
	Type             string         `json:"type"`
	Brand            string         `json:"brand"`
	Currency         string         `json:"currency"`
	Balance          string         `json:"balance"`
	RemainingBalance string         `json:"remaining_balance"`
	AllowedActions   []model.Action `json:"allowed_actions"`
	Test             bool           `json:"test"`
}

type transactionUC struct {
	cfg     config.GatewayConfig
	gateway adapter.PaymentGateway
	orders  repository.OrderRepository
	cache   adapter.TransactionCache
	ops     *orderOps
	log     *zerolog.Logger
}

func NewTransactionUseCase(
	cfg config.GatewayConfig,
	gateway adapter.PaymentGateway,
	orders repository.OrderRepository,
	cache adapter.TransactionCache,
	logger *zerolog.Logger,
) *transactionUC {
	l := logger.With().Str("component", "transactions").Logger()
	return &transactionUC{
		cfg:     cfg,
		gateway: gateway,
		orders:  orders,
		cache:   cache,
		ops:     newOrderOps(orders, &l),
		log:     &l,
	}
}

// orderKind picks the resource type holding the order's transaction.
func orderKind(o *model.Order) model.ResourceKind {
	if o.IsSubscription {
		return model.KindSubscription
	}
	return model.KindPayment
}

func (u *transactionUC) Load(ctx context.Context, kind model.ResourceKind, transactionID string) (*model.Transaction, error) {
	if transactionID == "" {
		return nil, domain.ErrEmptyTransactionID
	}
	if u.cache.Enabled() {
		tx, ok, err := u.cache.Get(ctx, transactionID)
		if err != nil {
			u.log.Warn().Err(err).Str("transaction_id", transactionID).Msg("transaction cache read")
		}
		if ok {
			return tx, nil
		}
	}

	session := u.gateway.Session(adapter.SessionOptions{})
	defer session.Close()

	tx, err := session.Get(ctx, kind, transactionID)
	if err != nil {
		return nil, err
	}
	u.store(ctx, tx)
	return tx, nil
}

// store refreshes the cached snapshot after a gateway read or mutation.
func (u *transactionUC) store(ctx context.Context, tx *model.Transaction) {
	if !u.cache.Enabled() || tx == nil {
		return
	}
	if err := u.cache.Put(ctx, tx); err != nil {
		u.log.Warn().Err(err).Str("transaction_id", tx.IDString()).Msg("transaction cache write")
	}
}

func (u *transactionUC) loadOrderWithTransaction(ctx context.Context, orderID int64) (*model.Order, error) {
	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	if order.TransactionID == "" {
		return nil, fmt.Errorf("no transaction id for order %d: %w", orderID, domain.ErrEmptyTransactionID)
	}
	return order, nil
}

func (u *transactionUC) TransactionInfo(ctx context.Context, orderID int64) (*TransactionInfo, error) {
	order, err := u.loadOrderWithTransaction(ctx, orderID)
	if err != nil {
		return nil, err
	}
	kind := orderKind(order)
	tx, err := u.Load(ctx, kind, order.TransactionID)
	if err != nil {
		return nil, err
	}

	info := &TransactionInfo{
		OrderID:       order.ID,
		TransactionID: tx.IDString(),
		Kind:          string(kind),
		State:         string(tx.State),
		Currency:      tx.Currency,
		Test:          tx.TestMode,
		Brand:         tx.Metadata.Brand,
	}
	if info.Type, err = tx.TypeLabel(); err != nil {
		return nil, err
	}
	if info.Balance, err = tx.FormattedBalance(); err != nil {
		return nil, err
	}
	// subscriptions carry no authorize amount until charged
	if remaining, err := tx.FormattedRemainingBalance(); err == nil {
		info.RemainingBalance = remaining
	}
	if info.AllowedActions, err = tx.AllowedActions(); err != nil {
		return nil, err
	}
	return info, nil
}

func (u *transactionUC) PaymentLink(ctx context.Context, orderID int64) (string, error) {
	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return "", err
	}
	// a paid order has no checkout left; a new payment here would charge twice
	if !order.ChangingPaymentMethod && (order.IsPaid() || (!order.IsSubscriptionPayment() && order.TransactionID != "")) {
		return "", fmt.Errorf("payment link for order %d: %w", orderID, domain.ErrActionNotAllowed)
	}

	kind := model.KindPayment
	if !order.ContainsSwitch && order.IsSubscriptionPayment() {
		kind = model.KindSubscription
		// subscriptions always start from a fresh resource
		order.PaymentID = ""
		order.PaymentLink = ""
	} else if order.ContainsSwitch && !order.Total.IsPositive() {
		return "", nil
	}

	session := u.gateway.Session(adapter.SessionOptions{})
	defer session.Close()

	if order.PaymentID == "" && order.PaymentLink == "" {
		tx, err := session.Create(ctx, order)
		if err != nil {
			return "", err
		}
		order.PaymentID = tx.IDString()
	}

	// the link is patched on every render so the amount always matches the order
	link, err := session.PatchLink(ctx, kind, order.PaymentID, order)
	if err != nil {
		return "", err
	}
	order.PaymentLink = link
	if err := u.orders.SetPaymentLink(ctx, repository.NoTX, order.ID, order.PaymentID, link); err != nil {
		return "", fmt.Errorf("save payment link: %w", err)
	}
	return link, nil
}

func (u *transactionUC) ProcessRefund(ctx context.Context, orderID int64, amount decimal.Decimal) (*model.Transaction, error) {
	order, err := u.loadOrderWithTransaction(ctx, orderID)
	if err != nil {
		return nil, err
	}
	log := logging.With(logging.WithTransactionID(logging.WithOrderID(ctx, orderID), order.TransactionID), u.log)

	session := u.gateway.Session(adapter.SessionOptions{})
	defer session.Close()

	tx, err := session.Get(ctx, model.KindPayment, order.TransactionID)
	if err != nil {
		return nil, err
	}
	allowed, err := tx.IsActionAllowed(model.ActionRefund)
	if err != nil {
		return nil, err
	}
	if !allowed {
		ct, _ := tx.CurrentType()
		if ct == model.OperationAuthorize || ct == model.OperationRecurring {
			return nil, domain.ErrNotCaptured
		}
		return nil, domain.ErrRefundNotAllowed
	}

	minor := tx.Balance
	if !amount.IsZero() {
		minor = model.PriceMultiply(amount)
	}
	res, err := session.Refund(ctx, order.TransactionID, minor)
	if err != nil {
		log.Error().Err(err).Int64("amount", minor).Msg("refund failed")
		return nil, err
	}
	u.store(ctx, res)
	return res, nil
}

func (u *transactionUC) CaptureOnComplete(ctx context.Context, orderID int64) error {
	if !u.cfg.CaptureOnComplete {
		return nil
	}
	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return err
	}
	// only actual payments are captured, never the subscription itself
	if order.IsSubscription || order.TransactionID == "" {
		return nil
	}

	session := u.gateway.Session(adapter.SessionOptions{})
	defer session.Close()

	tx, err := session.Get(ctx, model.KindPayment, order.TransactionID)
	if err != nil {
		return err
	}
	allowed, err := tx.IsActionAllowed(model.ActionCapture)
	if err != nil || !allowed {
		return err
	}

	// a partial capture may already have happened
	amount := model.PriceMultiply(order.Total) - tx.Balance
	res, err := session.Capture(ctx, order.TransactionID, amount, false)
	if err != nil {
		u.log.Error().Err(err).Int64("order_id", orderID).Msg("capture on complete failed")
		return err
	}
	u.store(ctx, res)
	return nil
}

func (u *transactionUC) ProcessPreOrderPayment(ctx context.Context, orderID int64) error {
	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return err
	}
	if order.TransactionID == "" {
		return nil
	}

	session := u.gateway.Session(adapter.SessionOptions{})
	defer session.Close()

	tx, err := session.Get(ctx, model.KindPayment, order.TransactionID)
	if err != nil {
		u.log.Error().Err(err).Str("order_number", order.CleanNumber()).Str("transaction_id", order.TransactionID).
			Msg("could not process pre-order payment, transaction not found")
		return err
	}
	allowed, err := tx.IsActionAllowed(model.ActionCapture)
	if err != nil || !allowed {
		return err
	}

	res, err := session.Capture(ctx, order.TransactionID, model.PriceMultiply(order.Total), false)
	if err != nil {
		u.log.Error().Err(err).Str("order_number", order.CleanNumber()).Str("transaction_id", order.TransactionID).
			Msg("could not process pre-order payment, payment failed")
		if serr := u.ops.setStatus(ctx, repository.NoTX, order, model.OrderStatusFailed, ""); serr != nil {
			u.log.Error().Err(serr).Msg("mark pre-order failed")
		}
		return err
	}
	u.store(ctx, res)
	return nil
}

func (u *transactionUC) CancelSubscription(ctx context.Context, subscriptionID int64) error {
	sub, err := u.orders.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return err
	}
	if !sub.IsSubscription {
		return fmt.Errorf("order %d is not a subscription: %w", subscriptionID, domain.ErrInvalidArgument)
	}
	if sub.Status != model.OrderStatusCancelled {
		if err := u.ops.setStatus(ctx, repository.NoTX, sub, model.OrderStatusCancelled, ""); err != nil {
			return err
		}
	}
	if sub.TransactionID == "" {
		return nil
	}

	session := u.gateway.Session(adapter.SessionOptions{})
	defer session.Close()

	tx, err := session.Get(ctx, model.KindSubscription, sub.TransactionID)
	if err != nil {
		return err
	}
	allowed, err := tx.IsActionAllowed(model.ActionCancel)
	if err != nil || !allowed {
		return err
	}
	res, err := session.Cancel(ctx, model.KindSubscription, sub.TransactionID)
	if err != nil {
		return err
	}
	u.store(ctx, res)
	return nil
}

func (u *transactionUC) ChangeSubscriptionTransactionID(ctx context.Context, subscriptionID int64, transactionID string) error {
	if transactionID == "" {
		return domain.ErrEmptyTransactionID
	}
	sub, err := u.orders.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return err
	}
	if sub.TransactionID == transactionID {
		return nil
	}

	session := u.gateway.Session(adapter.SessionOptions{})
	defer session.Close()

	// the new id must exist as a subscription at the gateway
	if _, err := session.Get(ctx, model.KindSubscription, transactionID); err != nil {
		return err
	}

	previous := sub.TransactionID
	if err := u.orders.SetTransactionID(ctx, repository.NoTX, sub.ID, transactionID); err != nil {
		return err
	}
	u.ops.note(ctx, repository.NoTX, sub.ID, fmt.Sprintf("Transaction ID updated from #%s to #%s", previous, transactionID))
	return nil
}

func (u *transactionUC) PaymentMethodChanged(ctx context.Context, subscriptionID int64) error {
	_, err := u.orders.IncrementPaymentMethodChangeCount(ctx, repository.NoTX, subscriptionID)
	return err
}

func (u *transactionUC) Ping(ctx context.Context) error {
	session := u.gateway.Session(adapter.SessionOptions{})
	defer session.Close()
	return session.Ping(ctx)
}
