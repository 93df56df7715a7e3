package payment

import (
	"context"
	"fmt"
	"sync"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"

	"github.com/shopspring/decimal"
)

var _ adapter.PaymentGateway = (*MemoryGateway)(nil)

// MemoryGateway is an in-memory gateway for local runs and tests. Payments
// are authorized as soon as they are created.
type MemoryGateway struct {
	mu  sync.Mutex
	seq int64
	txs map[string]*model.Transaction

	// DeclineRecurring makes recurring charges come back not accepted.
	DeclineRecurring bool
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{txs: make(map[string]*model.Transaction)}
}

func (g *MemoryGateway) Name() string { return "memory" }

func (g *MemoryGateway) Session(adapter.SessionOptions) adapter.GatewaySession {
	return &memorySession{g: g}
}

// Put stores tx so later calls can find it.
func (g *MemoryGateway) Put(tx *model.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *tx
	g.txs[cp.IDString()] = &cp
}

func (g *MemoryGateway) next() int64 {
	g.seq++
	return g.seq
}

func approvedOp(t model.OperationType, amount int64) model.Operation {
	return model.Operation{
		Type:         t,
		Amount:       amount,
		QPStatusCode: model.StatusApproved,
		QPStatusMsg:  "Approved",
		AQStatusCode: model.StatusApproved,
		AQStatusMsg:  "Approved",
	}
}

type memorySession struct {
	g *MemoryGateway
}

func (s *memorySession) lookup(id string) (*model.Transaction, error) {
	if id == "" {
		return nil, domain.ErrEmptyTransactionID
	}
	tx, ok := s.g.txs[id]
	if !ok {
		return nil, &domain.APIError{Message: "Not found: No Payment with id " + id, HTTPStatus: 404}
	}
	return tx, nil
}

func snapshot(tx *model.Transaction) *model.Transaction {
	cp := *tx
	cp.Operations = append([]model.Operation(nil), tx.Operations...)
	return &cp
}

func (s *memorySession) Create(_ context.Context, order *model.Order) (*model.Transaction, error) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	typ := "Payment"
	if order.IsSubscriptionPayment() {
		typ = "Subscription"
	}
	tx := &model.Transaction{
		ID:        s.g.next(),
		Type:      typ,
		OrderID:   order.CleanNumber(),
		Accepted:  true,
		TestMode:  true,
		State:     model.TransactionStateNew,
		Currency:  order.Currency,
		Metadata:  model.Metadata{Brand: "visa"},
		Variables: model.Variables{"order_post_id": order.ID},
	}
	s.g.txs[tx.IDString()] = tx
	return snapshot(tx), nil
}

func (s *memorySession) PatchLink(_ context.Context, _ model.ResourceKind, id string, order *model.Order) (string, error) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	tx, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	// the hosted page authorizes the full order total
	if len(tx.Operations) == 0 {
		tx.Operations = append(tx.Operations, approvedOp(model.OperationAuthorize, model.PriceMultiply(order.Total)))
		tx.State = model.TransactionStateProcessed
	}
	tx.Link = &model.Link{URL: fmt.Sprintf("https://payment.memory.test/%s", id), Amount: model.PriceMultiply(order.Total)}
	return tx.Link.URL, nil
}

func (s *memorySession) Get(_ context.Context, _ model.ResourceKind, id string) (*model.Transaction, error) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	tx, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return snapshot(tx), nil
}

func (s *memorySession) Capture(_ context.Context, id string, amount int64, _ bool) (*model.Transaction, error) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	tx, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	tx.Operations = append(tx.Operations, approvedOp(model.OperationCapture, amount))
	tx.Balance += amount
	return snapshot(tx), nil
}

func (s *memorySession) Cancel(_ context.Context, _ model.ResourceKind, id string) (*model.Transaction, error) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	tx, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	tx.Operations = append(tx.Operations, approvedOp(model.OperationCancel, 0))
	return snapshot(tx), nil
}

func (s *memorySession) Refund(_ context.Context, id string, amount int64) (*model.Transaction, error) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	tx, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if amount > tx.Balance {
		return nil, &domain.APIError{Message: "amount: exceeds balance", HTTPStatus: 400}
	}
	tx.Operations = append(tx.Operations, approvedOp(model.OperationRefund, amount))
	tx.Balance -= amount
	return snapshot(tx), nil
}

func (s *memorySession) Recurring(_ context.Context, subscriptionID string, order *model.Order, amount decimal.Decimal) (*adapter.RecurringResult, error) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	if _, err := s.lookup(subscriptionID); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		amount = order.Total
	}
	minor := model.PriceMultiply(amount)
	op := approvedOp(model.OperationRecurring, minor)
	tx := &model.Transaction{
		ID:        s.g.next(),
		Type:      "Payment",
		OrderID:   order.CleanNumber(),
		Accepted:  !s.g.DeclineRecurring,
		TestMode:  true,
		State:     model.TransactionStateProcessed,
		Currency:  order.Currency,
		Variables: model.Variables{"order_post_id": order.ID},
	}
	if s.g.DeclineRecurring {
		op.QPStatusCode, op.QPStatusMsg = 40000, "Rejected By Acquirer"
		op.AQStatusCode, op.AQStatusMsg = 40000, "Declined"
		tx.State = model.TransactionStateRejected
	}
	tx.Operations = []model.Operation{op}
	s.g.txs[tx.IDString()] = tx
	return &adapter.RecurringResult{Transaction: snapshot(tx), RequestURL: "memory://subscriptions/" + subscriptionID + "/recurring"}, nil
}

func (s *memorySession) Ping(context.Context) error { return nil }

func (s *memorySession) Close() {}
