// File: internal/usecase/admin_action_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"coolpay-gateway/internal/config"
	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"
	"coolpay-gateway/internal/domain/ports/repository"
	"coolpay-gateway/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ AdminActionUseCase = (*adminActionUC)(nil)

type AdminActionUseCase interface {
	// Execute runs an operator action against the order's transaction. amount
	// is in the shop price format; empty means the remaining balance, or the
	// captured balance for refunds.
	Execute(ctx context.Context, orderID int64, action, amount string) (*model.Transaction, error)
}

type actionHandler func(ctx context.Context, s adapter.GatewaySession, kind model.ResourceKind, id string, amount int64) (*model.Transaction, error)

var adminHandlers = map[model.AdminAction]actionHandler{
	model.AdminCapture:       captureHandler(false),
	model.AdminCaptureAmount: captureHandler(false),
	model.AdminSplitCapture:  captureHandler(false),
	model.AdminSplitFinalize: captureHandler(true),
	model.AdminCancel: func(ctx context.Context, s adapter.GatewaySession, kind model.ResourceKind, id string, _ int64) (*model.Transaction, error) {
		return s.Cancel(ctx, kind, id)
	},
	model.AdminRefund: func(ctx context.Context, s adapter.GatewaySession, _ model.ResourceKind, id string, amount int64) (*model.Transaction, error) {
		return s.Refund(ctx, id, amount)
	},
}

func captureHandler(finalize bool) actionHandler {
	return func(ctx context.Context, s adapter.GatewaySession, _ model.ResourceKind, id string, amount int64) (*model.Transaction, error) {
		return s.Capture(ctx, id, amount, finalize)
	}
}

type adminActionUC struct {
	cfg     config.GatewayConfig
	gateway adapter.PaymentGateway
	orders  repository.OrderRepository
	cache   adapter.TransactionCache
	log     *zerolog.Logger
}

func NewAdminActionUseCase(
	cfg config.GatewayConfig,
	gateway adapter.PaymentGateway,
	orders repository.OrderRepository,
	cache adapter.TransactionCache,
	logger *zerolog.Logger,
) *adminActionUC {
	l := logger.With().Str("component", "admin_actions").Logger()
	return &adminActionUC{cfg: cfg, gateway: gateway, orders: orders, cache: cache, log: &l}
}

func (u *adminActionUC) Execute(ctx context.Context, orderID int64, action, amount string) (*model.Transaction, error) {
	a, err := model.ParseAdminAction(action)
	if err != nil {
		metrics.IncAdminAction("unknown", "error")
		return nil, fmt.Errorf("unsupported action %q: %w", action, err)
	}

	tx, err := u.execute(ctx, orderID, a, amount)
	switch {
	case err == nil:
		metrics.IncAdminAction(string(a), "ok")
	case errors.Is(err, domain.ErrActionNotAllowed):
		metrics.IncAdminAction(string(a), "not_allowed")
	default:
		metrics.IncAdminAction(string(a), "error")
	}
	if err != nil {
		u.log.Error().Err(err).Int64("order_id", orderID).Str("action", string(a)).Msg("admin action failed")
	}
	return tx, err
}

func (u *adminActionUC) execute(ctx context.Context, orderID int64, a model.AdminAction, amount string) (*model.Transaction, error) {
	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	if order.TransactionID == "" {
		return nil, fmt.Errorf("no transaction id for order %d: %w", orderID, domain.ErrEmptyTransactionID)
	}
	kind := orderKind(order)

	session := u.gateway.Session(adapter.SessionOptions{})
	defer session.Close()

	// gate on fresh state right before the mutating call
	tx, err := session.Get(ctx, kind, order.TransactionID)
	if err != nil {
		return nil, err
	}
	allowed, err := tx.IsActionAllowed(a.Gate())
	if err != nil {
		return nil, err
	}
	if !allowed {
		current, _ := tx.CurrentType()
		return nil, fmt.Errorf("action %q for order #%s with type state %q: %w", a, order.CleanNumber(), current, domain.ErrActionNotAllowed)
	}

	minor, err := u.resolveAmount(tx, a, amount)
	if err != nil {
		return nil, err
	}

	res, err := adminHandlers[a](ctx, session, kind, order.TransactionID, minor)
	if err != nil {
		u.invalidate(ctx, order.TransactionID)
		return nil, err
	}
	if u.cache.Enabled() {
		if err := u.cache.Put(ctx, res); err != nil {
			u.log.Warn().Err(err).Msg("refresh cached transaction")
		}
	}
	return res, nil
}

func (u *adminActionUC) resolveAmount(tx *model.Transaction, a model.AdminAction, amount string) (int64, error) {
	if strings.TrimSpace(amount) != "" {
		return model.PriceCustomToMultiplied(amount, u.cfg.PriceDecimalSeparator, u.cfg.PriceThousandSeparator)
	}
	if a == model.AdminRefund {
		return tx.Balance, nil
	}
	if a == model.AdminCancel {
		return 0, nil
	}
	return tx.RemainingBalance()
}

func (u *adminActionUC) invalidate(ctx context.Context, transactionID string) {
	if !u.cache.Enabled() {
		return
	}
	if err := u.cache.Invalidate(ctx, transactionID); err != nil {
		u.log.Warn().Err(err).Str("transaction_id", transactionID).Msg("invalidate cached transaction")
	}
}
