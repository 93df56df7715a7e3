package adapter

import (
	"context"

	"coolpay-gateway/internal/domain/model"

	"github.com/shopspring/decimal"
)

// SessionOptions tune one gateway session.
type SessionOptions struct {
	// BlockCallback suppresses the callback URL header so the gateway does not
	// notify asynchronously about calls whose response is handled inline.
	BlockCallback bool
}

// PaymentGateway is the hex port for the payment provider. Every logical
// operation opens its own session and closes it when done.
type PaymentGateway interface {
	Name() string
	Session(opts SessionOptions) GatewaySession
}

// RecurringResult keeps the audit trail of a recurring charge.
type RecurringResult struct {
	Transaction *model.Transaction
	RequestURL  string
	RequestBody string
	RawResponse []byte
}

// GatewaySession issues calls over a single scoped HTTP connection pool.
type GatewaySession interface {
	// Create creates a payment, or a subscription when the order pays through one.
	Create(ctx context.Context, order *model.Order) (*model.Transaction, error)
	// PatchLink (re)creates the hosted payment link and returns its URL.
	PatchLink(ctx context.Context, kind model.ResourceKind, transactionID string, order *model.Order) (string, error)
	Get(ctx context.Context, kind model.ResourceKind, transactionID string) (*model.Transaction, error)
	Capture(ctx context.Context, transactionID string, amount int64, finalize bool) (*model.Transaction, error)
	Cancel(ctx context.Context, kind model.ResourceKind, transactionID string) (*model.Transaction, error)
	Refund(ctx context.Context, transactionID string, amount int64) (*model.Transaction, error)
	Recurring(ctx context.Context, subscriptionID string, order *model.Order, amount decimal.Decimal) (*RecurringResult, error)
	Ping(ctx context.Context) error
	Close()
}

// CallbackVerifier authenticates a raw callback body against its signature header.
type CallbackVerifier interface {
	// Verify returns domain.ErrMissingSignature or domain.ErrSignatureMismatch.
	Verify(body []byte, signature string) error
}
