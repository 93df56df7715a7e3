package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

// FeeLineName is the name of the fee line added for gateway transaction fees.
const FeeLineName = "Payment Fee"

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `o.id, o.number, o.status, o.currency, o.total, o.payment_method, o.user_agent,
  o.billing, o.shipping, o.items, o.shipping_line, o.fees, o.continue_url, o.cancel_url,
  o.subscription_id, o.parent_id, o.is_subscription, o.contains_subscription, o.contains_switch,
  o.is_renewal, o.changing_payment_method, o.pre_order_tokenization, o.retry_of_failed_renewal, o.in_renewal_cart,
  o.transaction_id, o.payment_id, o.payment_link, o.transaction_order_id,
  o.failed_payment_count, o.payment_method_change_count,
  COALESCE((SELECT s.failed_payment_count FROM orders s WHERE s.id = o.subscription_id AND o.subscription_id <> 0), 0),
  o.fee_applied_at, o.paid_at, o.created_at, o.updated_at`

type orderDoc struct {
	billing, shipping, items, shippingLine, fees []byte
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	var doc orderDoc
	var status string
	err := row.Scan(&o.ID, &o.Number, &status, &o.Currency, &o.Total, &o.PaymentMethod, &o.UserAgent,
		&doc.billing, &doc.shipping, &doc.items, &doc.shippingLine, &doc.fees, &o.ContinueURL, &o.CancelURL,
		&o.SubscriptionID, &o.ParentID, &o.IsSubscription, &o.ContainsSubscription, &o.ContainsSwitch,
		&o.IsRenewal, &o.ChangingPaymentMethod, &o.PreOrderTokenization, &o.RetryOfFailedRenewal, &o.InRenewalCart,
		&o.TransactionID, &o.PaymentID, &o.PaymentLink, &o.TransactionOrderID,
		&o.FailedPaymentCount, &o.PaymentMethodChangeCount, &o.SubscriptionFailedCount,
		&o.FeeAppliedAt, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	o.Status = model.OrderStatus(status)
	if err := doc.decode(o); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return o, nil
}

func (d orderDoc) decode(o *model.Order) error {
	parts := []struct {
		raw []byte
		dst any
	}{
		{d.billing, &o.Billing},
		{d.shipping, &o.Shipping},
		{d.items, &o.Items},
		{d.shippingLine, &o.ShippingLine},
		{d.fees, &o.Fees},
	}
	for _, p := range parts {
		if len(p.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(p.raw, p.dst); err != nil {
			return err
		}
	}
	return nil
}

func encodeOrderDoc(o *model.Order) (orderDoc, error) {
	var d orderDoc
	var err error
	if d.billing, err = json.Marshal(o.Billing); err != nil {
		return d, err
	}
	if d.shipping, err = json.Marshal(o.Shipping); err != nil {
		return d, err
	}
	items := o.Items
	if items == nil {
		items = []model.LineItem{}
	}
	if d.items, err = json.Marshal(items); err != nil {
		return d, err
	}
	if d.shippingLine, err = json.Marshal(o.ShippingLine); err != nil {
		return d, err
	}
	fees := o.Fees
	if fees == nil {
		fees = []model.FeeLine{}
	}
	d.fees, err = json.Marshal(fees)
	return d, err
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

// Save inserts orders without an id and upserts the rest.
func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	doc, err := encodeOrderDoc(o)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	args := []interface{}{
		o.Number, string(o.Status), o.Currency, o.Total, o.PaymentMethod, o.UserAgent,
		doc.billing, doc.shipping, doc.items, doc.shippingLine, doc.fees, o.ContinueURL, o.CancelURL,
		o.SubscriptionID, o.ParentID, o.IsSubscription, o.ContainsSubscription, o.ContainsSwitch,
		o.IsRenewal, o.ChangingPaymentMethod, o.PreOrderTokenization, o.RetryOfFailedRenewal, o.InRenewalCart,
		o.TransactionID, o.PaymentID, o.PaymentLink, o.TransactionOrderID,
		o.FailedPaymentCount, o.PaymentMethodChangeCount, o.FeeAppliedAt, o.PaidAt, o.CreatedAt, o.UpdatedAt,
	}

	if o.ID == 0 {
		const q = `
INSERT INTO orders (
  number, status, currency, total, payment_method, user_agent,
  billing, shipping, items, shipping_line, fees, continue_url, cancel_url,
  subscription_id, parent_id, is_subscription, contains_subscription, contains_switch,
  is_renewal, changing_payment_method, pre_order_tokenization, retry_of_failed_renewal, in_renewal_cart,
  transaction_id, payment_id, payment_link, transaction_order_id,
  failed_payment_count, payment_method_change_count, fee_applied_at, paid_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33
) RETURNING id;`
		row, err := pickRow(ctx, r.pool, tx, q, args...)
		if err != nil {
			return err
		}
		if err := row.Scan(&o.ID); err != nil {
			return domain.ErrOperationFailed
		}
		return nil
	}

	const q = `
INSERT INTO orders (
  id, number, status, currency, total, payment_method, user_agent,
  billing, shipping, items, shipping_line, fees, continue_url, cancel_url,
  subscription_id, parent_id, is_subscription, contains_subscription, contains_switch,
  is_renewal, changing_payment_method, pre_order_tokenization, retry_of_failed_renewal, in_renewal_cart,
  transaction_id, payment_id, payment_link, transaction_order_id,
  failed_payment_count, payment_method_change_count, fee_applied_at, paid_at, created_at, updated_at
) VALUES (
  $34,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33
) ON CONFLICT (id) DO UPDATE SET
  number=$1, status=$2, currency=$3, total=$4, payment_method=$5, user_agent=$6,
  billing=$7, shipping=$8, items=$9, shipping_line=$10, fees=$11, continue_url=$12, cancel_url=$13,
  subscription_id=$14, parent_id=$15, is_subscription=$16, contains_subscription=$17, contains_switch=$18,
  is_renewal=$19, changing_payment_method=$20, pre_order_tokenization=$21, retry_of_failed_renewal=$22, in_renewal_cart=$23,
  transaction_id=$24, payment_id=$25, payment_link=$26, transaction_order_id=$27,
  failed_payment_count=$28, payment_method_change_count=$29, fee_applied_at=$30, paid_at=$31, updated_at=$33;`
	_, err = execSQL(ctx, r.pool, tx, q, append(args, o.ID)...)
	return mapExecErr(err)
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.OrderStatus) error {
	const q = `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status))
	if err != nil {
		return mapExecErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepo) AddNote(ctx context.Context, tx repository.Tx, id int64, note string) error {
	const q = `INSERT INTO order_notes (order_id, note) VALUES ($1, $2);`
	_, err := execSQL(ctx, r.pool, tx, q, id, note)
	return mapExecErr(err)
}

func (r *orderRepo) ListNotes(ctx context.Context, tx repository.Tx, id int64) ([]string, error) {
	const q = `SELECT note FROM order_notes WHERE order_id=$1 ORDER BY id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// MarkPaidIfUnpaid is the payment_complete guard: only the first caller flips the row.
func (r *orderRepo) MarkPaidIfUnpaid(ctx context.Context, tx repository.Tx, id int64, transactionID string, paidAt time.Time) (bool, error) {
	const q = `
UPDATE orders SET status='processing', transaction_id=$2, paid_at=$3, updated_at=NOW()
WHERE id=$1 AND status NOT IN ('processing','completed');`
	tag, err := execSQL(ctx, r.pool, tx, q, id, transactionID, paidAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyFeeOnce appends the fee line and raises the total once per order.
func (r *orderRepo) ApplyFeeOnce(ctx context.Context, tx repository.Tx, id int64, transactionID string, fee decimal.Decimal) (bool, error) {
	line, err := json.Marshal([]model.FeeLine{{Name: FeeLineName, Amount: fee, TransactionID: transactionID}})
	if err != nil {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE orders SET fees = fees || $2::jsonb, total = total + $3, fee_applied_at=NOW(), updated_at=NOW()
WHERE id=$1 AND fee_applied_at IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, line, fee)
	if err != nil {
		return false, mapExecErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *orderRepo) IncrementFailedCount(ctx context.Context, tx repository.Tx, id int64) (int, error) {
	const q = `UPDATE orders SET failed_payment_count = failed_payment_count + 1, updated_at=NOW() WHERE id=$1 RETURNING failed_payment_count;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrOperationFailed
	}
	return n, nil
}

func (r *orderRepo) ResetFailedCount(ctx context.Context, tx repository.Tx, id int64) error {
	const q = `UPDATE orders SET failed_payment_count = 0, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	return mapExecErr(err)
}

func (r *orderRepo) SetPaymentLink(ctx context.Context, tx repository.Tx, id int64, paymentID, link string) error {
	const q = `UPDATE orders SET payment_id=$2, payment_link=$3, updated_at=NOW() WHERE id=$1;`
	return r.updateOne(ctx, tx, q, id, paymentID, link)
}

func (r *orderRepo) SetTransactionID(ctx context.Context, tx repository.Tx, id int64, transactionID string) error {
	const q = `UPDATE orders SET transaction_id=$2, updated_at=NOW() WHERE id=$1;`
	return r.updateOne(ctx, tx, q, id, transactionID)
}

func (r *orderRepo) SetTransactionOrderID(ctx context.Context, tx repository.Tx, id int64, transactionOrderID string) error {
	const q = `UPDATE orders SET transaction_order_id=$2, updated_at=NOW() WHERE id=$1;`
	return r.updateOne(ctx, tx, q, id, transactionOrderID)
}

func (r *orderRepo) IncrementPaymentMethodChangeCount(ctx context.Context, tx repository.Tx, id int64) (int, error) {
	const q = `UPDATE orders SET payment_method_change_count = payment_method_change_count + 1, updated_at=NOW() WHERE id=$1 RETURNING payment_method_change_count;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrOperationFailed
	}
	return n, nil
}

// updateOne runs a single-row UPDATE and maps a missing row to ErrNotFound.
func (r *orderRepo) updateOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return mapExecErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepo) ListDueRenewals(ctx context.Context, tx repository.Tx, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + orderColumns + `
FROM orders o
JOIN orders sub ON sub.id = o.subscription_id
WHERE o.is_renewal AND o.status='pending' AND sub.transaction_id <> ''
ORDER BY o.created_at ASC LIMIT $1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE OF o SKIP LOCKED"
	}
	q += ";"
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
