package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coolpay-gateway/internal/config"
	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var _ adapter.PaymentGateway = (*CoolPayGateway)(nil)

// CoolPayGateway implements adapter.PaymentGateway over the CoolPay REST API.
// It holds no connection state; every Session owns its own pool.
type CoolPayGateway struct {
	cfg    config.GatewayConfig
	base   *url.URL
	params *paramBuilder
	log    *zerolog.Logger
}

func NewCoolPayGateway(cfg config.GatewayConfig, methods *MethodRegistry, logger *zerolog.Logger) (*CoolPayGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("coolpay api key empty")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if methods == nil {
		methods = DefaultMethodRegistry(cfg.Methods)
	}
	l := logger.With().Str("component", "coolpay").Logger()
	return &CoolPayGateway{
		cfg:    cfg,
		base:   base,
		params: &paramBuilder{cfg: cfg, methods: methods, now: time.Now},
		log:    &l,
	}, nil
}

func (g *CoolPayGateway) Name() string { return "coolpay" }

func (g *CoolPayGateway) Session(opts adapter.SessionOptions) adapter.GatewaySession {
	return &coolPaySession{
		t:      newTransport(g.base, g.cfg.APIKey, g.cfg.APIVersion, g.cfg.CallbackURL, g.cfg.Timeout, opts.BlockCallback, g.log),
		params: g.params,
	}
}

type coolPaySession struct {
	t      *Transport
	params *paramBuilder
}

func resourcePath(kind model.ResourceKind) string {
	if kind == model.KindSubscription {
		return "subscriptions"
	}
	return "payments"
}

func (s *coolPaySession) do(ctx context.Context, method, path string, p Params) (*model.Transaction, *Response, error) {
	resp, err := s.t.Execute(ctx, method, path, p)
	if err != nil {
		return nil, nil, err
	}
	tx, err := model.DecodeTransaction(resp.Body)
	if err != nil {
		return nil, resp, &domain.APIError{
			Message:      "decode transaction: " + err.Error(),
			HTTPStatus:   resp.Status,
			RequestURL:   resp.RequestURL,
			RequestBody:  resp.RequestBody,
			ResponseBody: string(resp.Body),
		}
	}
	return tx, resp, nil
}

func (s *coolPaySession) Create(ctx context.Context, order *model.Order) (*model.Transaction, error) {
	kind := model.KindPayment
	if order.IsSubscriptionPayment() {
		kind = model.KindSubscription
	}
	tx, _, err := s.do(ctx, http.MethodPost, resourcePath(kind), s.params.createParams(order))
	return tx, err
}

func (s *coolPaySession) PatchLink(ctx context.Context, kind model.ResourceKind, transactionID string, order *model.Order) (string, error) {
	if transactionID == "" {
		return "", domain.ErrEmptyTransactionID
	}
	resp, err := s.t.Execute(ctx, http.MethodPut, resourcePath(kind)+"/"+url.PathEscape(transactionID)+"/link", s.params.linkParams(order))
	if err != nil {
		return "", err
	}
	var link model.Link
	if err := json.Unmarshal(resp.Body, &link); err != nil {
		return "", &domain.APIError{Message: "decode link: " + err.Error(), HTTPStatus: resp.Status, RequestURL: resp.RequestURL, ResponseBody: string(resp.Body)}
	}
	return link.URL, nil
}

func (s *coolPaySession) Get(ctx context.Context, kind model.ResourceKind, transactionID string) (*model.Transaction, error) {
	if transactionID == "" {
		return nil, domain.ErrEmptyTransactionID
	}
	tx, _, err := s.do(ctx, http.MethodGet, resourcePath(kind)+"/"+url.PathEscape(transactionID), nil)
	return tx, err
}

func (s *coolPaySession) Capture(ctx context.Context, transactionID string, amount int64, finalize bool) (*model.Transaction, error) {
	if transactionID == "" {
		return nil, domain.ErrEmptyTransactionID
	}
	p := Params{"amount": amount}
	if finalize {
		p["finalize"] = true
	}
	tx, _, err := s.do(ctx, http.MethodPost, "payments/"+url.PathEscape(transactionID)+"/capture?synchronized", p)
	return tx, err
}

func (s *coolPaySession) Cancel(ctx context.Context, kind model.ResourceKind, transactionID string) (*model.Transaction, error) {
	if transactionID == "" {
		return nil, domain.ErrEmptyTransactionID
	}
	tx, _, err := s.do(ctx, http.MethodPost, resourcePath(kind)+"/"+url.PathEscape(transactionID)+"/cancel?synchronized", nil)
	return tx, err
}

func (s *coolPaySession) Refund(ctx context.Context, transactionID string, amount int64) (*model.Transaction, error) {
	if transactionID == "" {
		return nil, domain.ErrEmptyTransactionID
	}
	tx, _, err := s.do(ctx, http.MethodPost, "payments/"+url.PathEscape(transactionID)+"/refund?synchronized", Params{"amount": amount})
	return tx, err
}

func (s *coolPaySession) Recurring(ctx context.Context, subscriptionID string, order *model.Order, amount decimal.Decimal) (*adapter.RecurringResult, error) {
	if subscriptionID == "" {
		return nil, domain.ErrEmptyTransactionID
	}
	if amount.IsZero() {
		amount = order.Total
	}
	tx, resp, err := s.do(ctx, http.MethodPost, "subscriptions/"+url.PathEscape(subscriptionID)+"/recurring?synchronized", s.params.recurringParams(order, amount))
	if err != nil {
		return nil, err
	}
	return &adapter.RecurringResult{
		Transaction: tx,
		RequestURL:  resp.RequestURL,
		RequestBody: resp.RequestBody,
		RawResponse: resp.Body,
	}, nil
}

// Ping checks credentials and connectivity with the cheapest authenticated call.
func (s *coolPaySession) Ping(ctx context.Context) error {
	_, err := s.t.Execute(ctx, http.MethodGet, "payments", Params{"page_size": 1})
	return err
}

func (s *coolPaySession) Close() { s.t.Close() }
