//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"
	"coolpay-gateway/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Repositories
// =============================

// ---- In-memory OrderRepository with the same guards as Postgres ----

type MockOrderRepo struct {
	mu     sync.Mutex
	orders map[int64]*model.Order
	notes  map[int64][]string

	FeeCalls      int
	PaidCalls     int
	FindByIDFunc  func(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error)
	SaveFunc      func(ctx context.Context, tx repository.Tx, o *model.Order) error
	ListDueFunc   func(ctx context.Context, tx repository.Tx, limit int) ([]*model.Order, error)
	MarkPaidError error
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo(orders ...*model.Order) *MockOrderRepo {
	r := &MockOrderRepo{orders: map[int64]*model.Order{}, notes: map[int64][]string{}}
	for _, o := range orders {
		r.put(o)
	}
	return r
}

func (r *MockOrderRepo) put(o *model.Order) {
	cp := *o
	cp.Fees = append([]model.FeeLine(nil), o.Fees...)
	r.orders[o.ID] = &cp
}

// Get returns a copy of the stored order, nil when missing.
func (r *MockOrderRepo) Get(id int64) *model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

func (r *MockOrderRepo) Notes(id int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notes[id]...)
}

func (r *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	cp.Fees = append([]model.FeeLine(nil), o.Fees...)
	return &cp, nil
}

func (r *MockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, o)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == 0 {
		o.ID = int64(len(r.orders) + 1)
	}
	r.put(o)
	return nil
}

func (r *MockOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	return nil
}

func (r *MockOrderRepo) AddNote(ctx context.Context, tx repository.Tx, id int64, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[id] = append(r.notes[id], note)
	return nil
}

func (r *MockOrderRepo) ListNotes(ctx context.Context, tx repository.Tx, id int64) ([]string, error) {
	return r.Notes(id), nil
}

func (r *MockOrderRepo) MarkPaidIfUnpaid(ctx context.Context, tx repository.Tx, id int64, transactionID string, paidAt time.Time) (bool, error) {
	if r.MarkPaidError != nil {
		return false, r.MarkPaidError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.IsPaid() {
		return false, nil
	}
	r.PaidCalls++
	o.Status = model.OrderStatusProcessing
	o.TransactionID = transactionID
	o.PaidAt = &paidAt
	return true, nil
}

func (r *MockOrderRepo) ApplyFeeOnce(ctx context.Context, tx repository.Tx, id int64, transactionID string, fee decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.FeeAppliedAt != nil {
		return false, nil
	}
	r.FeeCalls++
	now := time.Now()
	o.FeeAppliedAt = &now
	o.Fees = append(o.Fees, model.FeeLine{Name: "Payment Fee", Amount: fee, TransactionID: transactionID})
	o.Total = o.Total.Add(fee)
	return true, nil
}

func (r *MockOrderRepo) IncrementFailedCount(ctx context.Context, tx repository.Tx, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	o.FailedPaymentCount++
	return o.FailedPaymentCount, nil
}

func (r *MockOrderRepo) ResetFailedCount(ctx context.Context, tx repository.Tx, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		o.FailedPaymentCount = 0
	}
	return nil
}

func (r *MockOrderRepo) update(id int64, fn func(o *model.Order)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(o)
	return nil
}

func (r *MockOrderRepo) SetPaymentLink(ctx context.Context, tx repository.Tx, id int64, paymentID, link string) error {
	return r.update(id, func(o *model.Order) { o.PaymentID, o.PaymentLink = paymentID, link })
}

func (r *MockOrderRepo) SetTransactionID(ctx context.Context, tx repository.Tx, id int64, transactionID string) error {
	return r.update(id, func(o *model.Order) { o.TransactionID = transactionID })
}

func (r *MockOrderRepo) SetTransactionOrderID(ctx context.Context, tx repository.Tx, id int64, transactionOrderID string) error {
	return r.update(id, func(o *model.Order) { o.TransactionOrderID = transactionOrderID })
}

func (r *MockOrderRepo) IncrementPaymentMethodChangeCount(ctx context.Context, tx repository.Tx, id int64) (int, error) {
	var n int
	err := r.update(id, func(o *model.Order) {
		o.PaymentMethodChangeCount++
		n = o.PaymentMethodChangeCount
	})
	return n, err
}

func (r *MockOrderRepo) ListDueRenewals(ctx context.Context, tx repository.Tx, limit int) ([]*model.Order, error) {
	if r.ListDueFunc != nil {
		return r.ListDueFunc(ctx, tx, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Order
	for _, o := range r.orders {
		if o.IsRenewal && o.Status == model.OrderStatusPending {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockNotAcquired
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("token mismatch")
	}
	delete(l.held, key)
	return nil
}

// ---- In-memory TransactionCache ----

type MockCache struct {
	mu       sync.Mutex
	Disabled bool
	entries  map[string]*model.Transaction
	Gets     int
}

var _ adapter.TransactionCache = (*MockCache)(nil)

func NewMockCache() *MockCache {
	return &MockCache{entries: map[string]*model.Transaction{}}
}

func (c *MockCache) Enabled() bool { return !c.Disabled }

func (c *MockCache) Get(ctx context.Context, id string) (*model.Transaction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	tx, ok := c.entries[id]
	return tx, ok, nil
}

func (c *MockCache) Put(ctx context.Context, tx *model.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tx.IDString()] = tx
	return nil
}

func (c *MockCache) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *MockCache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// ---- EventBus ----

type MockBus struct {
	mu     sync.Mutex
	Events []model.CallbackEvent
}

var _ adapter.EventBus = (*MockBus)(nil)

func (b *MockBus) Emit(ctx context.Context, ev model.CallbackEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, ev)
}

func (b *MockBus) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.Events))
	for _, ev := range b.Events {
		out = append(out, ev.Name)
	}
	return out
}

// ---- CallbackVerifier ----

type MockVerifier struct {
	VerifyFunc func(body []byte, signature string) error
}

var _ adapter.CallbackVerifier = (*MockVerifier)(nil)

func (v *MockVerifier) Verify(body []byte, signature string) error {
	if v.VerifyFunc != nil {
		return v.VerifyFunc(body, signature)
	}
	if signature == "" {
		return domain.ErrMissingSignature
	}
	if signature != "valid" {
		return domain.ErrSignatureMismatch
	}
	return nil
}

// ---- PaymentGateway ----

// MockGateway hands out sessions backed by the Func hooks below and records
// the options every session was opened with.
type MockGateway struct {
	mu       sync.Mutex
	Sessions []adapter.SessionOptions
	Closed   int

	CreateFunc    func(ctx context.Context, order *model.Order) (*model.Transaction, error)
	PatchLinkFunc func(ctx context.Context, kind model.ResourceKind, id string, order *model.Order) (string, error)
	GetFunc       func(ctx context.Context, kind model.ResourceKind, id string) (*model.Transaction, error)
	CaptureFunc   func(ctx context.Context, id string, amount int64, finalize bool) (*model.Transaction, error)
	CancelFunc    func(ctx context.Context, kind model.ResourceKind, id string) (*model.Transaction, error)
	RefundFunc    func(ctx context.Context, id string, amount int64) (*model.Transaction, error)
	RecurringFunc func(ctx context.Context, subscriptionID string, order *model.Order, amount decimal.Decimal) (*adapter.RecurringResult, error)
	PingFunc      func(ctx context.Context) error
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) Session(opts adapter.SessionOptions) adapter.GatewaySession {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Sessions = append(g.Sessions, opts)
	return &mockSession{g: g}
}

type mockSession struct {
	g *MockGateway
}

var errNotMocked = errors.New("gateway call not mocked")

func (s *mockSession) Create(ctx context.Context, order *model.Order) (*model.Transaction, error) {
	if s.g.CreateFunc != nil {
		return s.g.CreateFunc(ctx, order)
	}
	return nil, errNotMocked
}

func (s *mockSession) PatchLink(ctx context.Context, kind model.ResourceKind, id string, order *model.Order) (string, error) {
	if s.g.PatchLinkFunc != nil {
		return s.g.PatchLinkFunc(ctx, kind, id, order)
	}
	return "", errNotMocked
}

func (s *mockSession) Get(ctx context.Context, kind model.ResourceKind, id string) (*model.Transaction, error) {
	if s.g.GetFunc != nil {
		return s.g.GetFunc(ctx, kind, id)
	}
	return nil, errNotMocked
}

func (s *mockSession) Capture(ctx context.Context, id string, amount int64, finalize bool) (*model.Transaction, error) {
	if s.g.CaptureFunc != nil {
		return s.g.CaptureFunc(ctx, id, amount, finalize)
	}
	return nil, errNotMocked
}

func (s *mockSession) Cancel(ctx context.Context, kind model.ResourceKind, id string) (*model.Transaction, error) {
	if s.g.CancelFunc != nil {
		return s.g.CancelFunc(ctx, kind, id)
	}
	return nil, errNotMocked
}

func (s *mockSession) Refund(ctx context.Context, id string, amount int64) (*model.Transaction, error) {
	if s.g.RefundFunc != nil {
		return s.g.RefundFunc(ctx, id, amount)
	}
	return nil, errNotMocked
}

func (s *mockSession) Recurring(ctx context.Context, subscriptionID string, order *model.Order, amount decimal.Decimal) (*adapter.RecurringResult, error) {
	if s.g.RecurringFunc != nil {
		return s.g.RecurringFunc(ctx, subscriptionID, order, amount)
	}
	return nil, errNotMocked
}

func (s *mockSession) Ping(ctx context.Context) error {
	if s.g.PingFunc != nil {
		return s.g.PingFunc(ctx)
	}
	return nil
}

func (s *mockSession) Close() {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.g.Closed++
}

// ---- RecurringUseCase ----

type MockRecurring struct {
	mu    sync.Mutex
	Calls []decimal.Decimal

	ChargeFunc        func(ctx context.Context, subscriptionTransactionID string, amount decimal.Decimal, order *model.Order) (*model.Transaction, error)
	ChargeRenewalFunc func(ctx context.Context, renewalOrderID int64) (*model.Transaction, error)
}

func (m *MockRecurring) Charge(ctx context.Context, subscriptionTransactionID string, amount decimal.Decimal, order *model.Order) (*model.Transaction, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, amount)
	m.mu.Unlock()
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, subscriptionTransactionID, amount, order)
	}
	return &model.Transaction{ID: 1, Accepted: true}, nil
}

func (m *MockRecurring) ChargeRenewal(ctx context.Context, renewalOrderID int64) (*model.Transaction, error) {
	if m.ChargeRenewalFunc != nil {
		return m.ChargeRenewalFunc(ctx, renewalOrderID)
	}
	return nil, nil
}

// =============================
// Fixtures
// =============================

func approved(t model.OperationType, amount int64) model.Operation {
	return model.Operation{
		Type:         t,
		Amount:       amount,
		QPStatusCode: model.StatusApproved,
		AQStatusCode: model.StatusApproved,
	}
}

func paymentTx(id int64, ops ...model.Operation) *model.Transaction {
	return &model.Transaction{
		ID:         id,
		Type:       "Payment",
		Accepted:   true,
		State:      model.TransactionStateProcessed,
		Currency:   "DKK",
		Operations: ops,
	}
}
