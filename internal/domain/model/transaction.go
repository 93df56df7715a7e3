package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"coolpay-gateway/internal/domain"

	"github.com/spf13/cast"
)

type TransactionState string

const (
	TransactionStateNew       TransactionState = "new"
	TransactionStatePending   TransactionState = "pending"
	TransactionStateRejected  TransactionState = "rejected"
	TransactionStateProcessed TransactionState = "processed"
)

type OperationType string

const (
	OperationAuthorize OperationType = "authorize"
	OperationCapture   OperationType = "capture"
	OperationCancel    OperationType = "cancel"
	OperationRefund    OperationType = "refund"
	OperationRecurring OperationType = "recurring"
	OperationSubscribe OperationType = "subscribe"
	OperationSession   OperationType = "session"

	// OperationPending is reported by CurrentType while the last operation awaits the acquirer.
	OperationPending OperationType = "pending"
)

// PendingLabel is the human readable form of OperationPending.
const PendingLabel = "Pending - check your CoolPay manager"

// StatusApproved is the qp/aq status code for a successful operation.
const StatusApproved StatusCode = 20000

type ResourceKind string

const (
	KindPayment      ResourceKind = "payment"
	KindSubscription ResourceKind = "subscription"
)

// StatusCode accepts both numeric and string codes; the gateway sends either.
type StatusCode int

func (c *StatusCode) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil || raw == "" {
		*c = 0
		return nil
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return err
	}
	*c = StatusCode(n)
	return nil
}

type Operation struct {
	ID           int64         `json:"id,omitempty"`
	Type         OperationType `json:"type"`
	Amount       int64         `json:"amount"`
	Pending      bool          `json:"pending"`
	QPStatusCode StatusCode    `json:"qp_status_code"`
	QPStatusMsg  string        `json:"qp_status_msg"`
	AQStatusCode StatusCode    `json:"aq_status_code"`
	AQStatusMsg  string        `json:"aq_status_msg"`
	CreatedAt    string        `json:"created_at,omitempty"`
}

// Successful reports whether the gateway accepted the operation or it is still pending.
func (o Operation) Successful() bool {
	return o.QPStatusCode == StatusApproved || o.Pending
}

type Metadata struct {
	Type    string `json:"type,omitempty"`
	Brand   string `json:"brand"`
	Last4   string `json:"last4,omitempty"`
	Country string `json:"country,omitempty"`
}

type Link struct {
	URL    string `json:"url"`
	Amount int64  `json:"amount,omitempty"`
}

// Variables are the custom key/values stored on a transaction. An empty set
// may arrive as a JSON array.
type Variables map[string]any

func (v *Variables) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == '[' || bytes.Equal(b, []byte("null")) {
		*v = Variables{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*v = m
	return nil
}

// String returns the variable as a string, "" when absent.
func (v Variables) String(key string) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v[key])
}

// Int64 returns the variable as an integer, 0 when absent or not numeric.
// Strings are read as base 10 so zero padded ids keep their value.
func (v Variables) Int64(key string) int64 {
	if v == nil {
		return 0
	}
	if s, ok := v[key].(string); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return cast.ToInt64(v[key])
}

// Bool reports whether the variable is set to a truthy value.
func (v Variables) Bool(key string) bool {
	if v == nil {
		return false
	}
	b, err := cast.ToBoolE(v[key])
	return err == nil && b
}

// Transaction is the decoded gateway resource for a payment or a subscription.
// Every accessor returns domain.ErrNotLoaded on a nil receiver.
type Transaction struct {
	ID          int64            `json:"id"`
	Type        string           `json:"type,omitempty"` // Payment | Subscription
	OrderID     string           `json:"order_id"`
	Accepted    bool             `json:"accepted"`
	TestMode    bool             `json:"test_mode"`
	State       TransactionState `json:"state"`
	Currency    string           `json:"currency"`
	Balance     int64            `json:"balance"`
	Fee         int64            `json:"fee"`
	Description string           `json:"description,omitempty"`
	Metadata    Metadata         `json:"metadata"`
	Link        *Link            `json:"link,omitempty"`
	Variables   Variables        `json:"variables"`
	Operations  []Operation      `json:"operations"`
}

// DecodeTransaction parses a raw gateway resource.
func DecodeTransaction(raw []byte) (*Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// IDString returns the gateway id in the form used for API paths and order meta.
func (t *Transaction) IDString() string {
	if t == nil || t.ID == 0 {
		return ""
	}
	return strconv.FormatInt(t.ID, 10)
}

func (t *Transaction) Kind() ResourceKind {
	if t != nil && strings.EqualFold(t.Type, "subscription") {
		return KindSubscription
	}
	return KindPayment
}

// LastOperation returns the last operation that succeeded or is pending.
func (t *Transaction) LastOperation() (*Operation, error) {
	if t == nil {
		return nil, domain.ErrNotLoaded
	}
	for i := len(t.Operations) - 1; i >= 0; i-- {
		if t.Operations[i].Successful() {
			op := t.Operations[i]
			return &op, nil
		}
	}
	return nil, domain.ErrMalformedOperation
}

// LatestOperation returns the most recently appended operation regardless of outcome.
func (t *Transaction) LatestOperation() (*Operation, error) {
	if t == nil {
		return nil, domain.ErrNotLoaded
	}
	if len(t.Operations) == 0 {
		return nil, domain.ErrMalformedOperation
	}
	op := t.Operations[len(t.Operations)-1]
	return &op, nil
}

// CurrentType is the type of the last successful operation, or OperationPending.
func (t *Transaction) CurrentType() (OperationType, error) {
	op, err := t.LastOperation()
	if err != nil {
		return "", err
	}
	if op.Pending {
		return OperationPending, nil
	}
	return op.Type, nil
}

// TypeLabel is CurrentType rendered for humans.
func (t *Transaction) TypeLabel() (string, error) {
	ct, err := t.CurrentType()
	if err != nil {
		return "", err
	}
	if ct == OperationPending {
		return PendingLabel, nil
	}
	return string(ct), nil
}

// AuthorizedAmount is the amount of the first authorize operation.
func (t *Transaction) AuthorizedAmount() (int64, error) {
	if t == nil {
		return 0, domain.ErrNotLoaded
	}
	for _, op := range t.Operations {
		if op.Type == OperationAuthorize {
			return op.Amount, nil
		}
	}
	return 0, domain.ErrMalformedOperation
}

func (t *Transaction) RemainingBalance() (int64, error) {
	authorized, err := t.AuthorizedAmount()
	if err != nil {
		return 0, err
	}
	if t.Balance > 0 {
		return authorized - t.Balance, nil
	}
	return authorized, nil
}

// IsOperationApproved checks op, or the last operation when op is nil.
func (t *Transaction) IsOperationApproved(op *Operation) (bool, error) {
	if t == nil {
		return false, domain.ErrNotLoaded
	}
	if op == nil {
		last, err := t.LastOperation()
		if err != nil {
			return false, err
		}
		op = last
	}
	return t.Accepted && op.QPStatusCode == StatusApproved && op.AQStatusCode == StatusApproved, nil
}

func (t *Transaction) Brand() (string, error) {
	if t == nil {
		return "", domain.ErrNotLoaded
	}
	return t.Metadata.Brand, nil
}

func (t *Transaction) IsTest() (bool, error) {
	if t == nil {
		return false, domain.ErrNotLoaded
	}
	return t.TestMode, nil
}

func (t *Transaction) GetState() (TransactionState, error) {
	if t == nil {
		return "", domain.ErrNotLoaded
	}
	return t.State, nil
}

func (t *Transaction) FormattedBalance() (string, error) {
	if t == nil {
		return "", domain.ErrNotLoaded
	}
	return PriceNormalize(t.Balance), nil
}

func (t *Transaction) FormattedRemainingBalance() (string, error) {
	r, err := t.RemainingBalance()
	if err != nil {
		return "", err
	}
	return PriceNormalize(r), nil
}
