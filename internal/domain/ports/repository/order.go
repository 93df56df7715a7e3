package repository

import (
	"context"
	"time"

	"coolpay-gateway/internal/domain/model"

	"github.com/shopspring/decimal"
)

// -----------------------------
// Orders (shop orders and subscriptions)
// -----------------------------

type OrderRepository interface {
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Order, error)
	// Save persists the order and its gateway meta (transaction id, payment id,
	// payment link, transaction order id and the two counters).
	Save(ctx context.Context, tx Tx, o *model.Order) error
	UpdateStatus(ctx context.Context, tx Tx, id int64, status model.OrderStatus) error
	AddNote(ctx context.Context, tx Tx, id int64, note string) error
	ListNotes(ctx context.Context, tx Tx, id int64) ([]string, error)

	// MarkPaidIfUnpaid sets status processing and the transaction id unless the
	// order is already paid. It reports whether the row changed.
	MarkPaidIfUnpaid(ctx context.Context, tx Tx, id int64, transactionID string, paidAt time.Time) (bool, error)
	// ApplyFeeOnce records a gateway fee line at most once per order.
	ApplyFeeOnce(ctx context.Context, tx Tx, id int64, transactionID string, fee decimal.Decimal) (bool, error)

	IncrementFailedCount(ctx context.Context, tx Tx, id int64) (int, error)
	ResetFailedCount(ctx context.Context, tx Tx, id int64) error

	// Narrow updates for flows that talk to the gateway between read and write.
	// They leave status, totals, fees and paid markers alone.
	SetPaymentLink(ctx context.Context, tx Tx, id int64, paymentID, link string) error
	SetTransactionID(ctx context.Context, tx Tx, id int64, transactionID string) error
	SetTransactionOrderID(ctx context.Context, tx Tx, id int64, transactionOrderID string) error
	IncrementPaymentMethodChangeCount(ctx context.Context, tx Tx, id int64) (int, error)

	// ListDueRenewals returns pending renewal orders whose subscription carries a transaction id.
	ListDueRenewals(ctx context.Context, tx Tx, limit int) ([]*model.Order, error)
}
