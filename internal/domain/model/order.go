package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusPreOrdered OrderStatus = "pre-ordered"
)

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"` // ISO 3166 alpha-2
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (a Address) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// LineItem prices are in major units.
type LineItem struct {
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	UnitPriceIncl decimal.Decimal `json:"unit_price_incl"`
	VATRate       decimal.Decimal `json:"vat_rate"` // percent, 25 for 25%
	Virtual       bool            `json:"virtual"`
}

type ShippingLine struct {
	Method string          `json:"method"`
	Total  decimal.Decimal `json:"total"` // excl. tax
	Tax    decimal.Decimal `json:"tax"`
}

type FeeLine struct {
	Name          string          `json:"name"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
}

// Order is a shop order or a subscription record, together with the gateway
// meta persisted against it.
type Order struct {
	ID            int64
	Number        string // external order number, may carry a leading '#'
	Status        OrderStatus
	Currency      string
	Total         decimal.Decimal
	PaymentMethod string
	UserAgent     string
	Billing       Address
	Shipping      Address
	Items         []LineItem
	ShippingLine  ShippingLine
	Fees          []FeeLine
	ContinueURL   string
	CancelURL     string

	// Subscription relations
	SubscriptionID        int64 // subscription created from or renewed by this order
	ParentID              int64 // set on subscriptions: the order that created them
	IsSubscription        bool  // this record is the subscription itself
	ContainsSubscription  bool
	ContainsSwitch        bool
	IsRenewal             bool
	ChangingPaymentMethod bool
	PreOrderTokenization  bool
	RetryOfFailedRenewal  bool
	InRenewalCart         bool

	// Gateway meta
	TransactionID            string
	PaymentID                string
	PaymentLink              string
	TransactionOrderID       string
	FailedPaymentCount       int
	PaymentMethodChangeCount int
	SubscriptionFailedCount  int // failed count of the related subscription
	FeeAppliedAt             *time.Time
	PaidAt                   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CleanNumber is the external order number without its leading symbol.
func (o *Order) CleanNumber() string {
	return strings.TrimLeft(strings.TrimSpace(o.Number), "#")
}

// IsPaid reports whether payment_complete already ran for the order.
func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusProcessing || o.Status == OrderStatusCompleted
}

// AllVirtual reports whether every line item is virtual (no shipping needed).
func (o *Order) AllVirtual() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, it := range o.Items {
		if !it.Virtual {
			return false
		}
	}
	return true
}

// IsSubscriptionPayment reports whether the order is paid through a subscription resource.
func (o *Order) IsSubscriptionPayment() bool {
	return o.ContainsSubscription || o.ChangingPaymentMethod
}
