package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"coolpay-gateway/internal/config"
	"coolpay-gateway/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RateLimiter throttles repeated operator actions.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Server exposes the gateway callback, operator API, health and metrics.
type Server struct {
	callbackUC  usecase.CallbackUseCase
	txUC        usecase.TransactionUseCase
	adminUC     usecase.AdminActionUseCase
	recurringUC usecase.RecurringUseCase
	limiter     RateLimiter
	auth        *AuthManager

	httpCfg  config.HTTPConfig
	adminCfg config.AdminConfig
	log      *zerolog.Logger
}

func NewServer(
	httpCfg config.HTTPConfig,
	adminCfg config.AdminConfig,
	callbackUC usecase.CallbackUseCase,
	txUC usecase.TransactionUseCase,
	adminUC usecase.AdminActionUseCase,
	recurringUC usecase.RecurringUseCase,
	limiter RateLimiter,
	logger *zerolog.Logger,
) *Server {
	if httpCfg.CallbackPath == "" {
		httpCfg.CallbackPath = "/callback"
	}
	if httpCfg.RequestTimeout <= 0 {
		httpCfg.RequestTimeout = 30 * time.Second
	}
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		callbackUC:  callbackUC,
		txUC:        txUC,
		adminUC:     adminUC,
		recurringUC: recurringUC,
		limiter:     limiter,
		auth:        NewAuthManager(adminCfg.APIKey, adminCfg.JWTSecret, adminCfg.TokenTTL),
		httpCfg:     httpCfg,
		adminCfg:    adminCfg,
		log:         &l,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post(s.httpCfg.CallbackPath, s.handleCallback)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.httpCfg.RequestTimeout))
		r.Post("/auth/token", s.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)

			r.Get("/gateway/ping", s.handlePing)

			r.Route("/orders/{id}", func(r chi.Router) {
				r.Get("/transaction", s.handleTransactionInfo)
				r.Post("/actions", s.handleAction)
				r.Post("/payment-link", s.handlePaymentLink)
				r.Post("/refund", s.handleRefund)
				r.Post("/complete", s.handleComplete)
				r.Post("/pre-order/charge", s.handlePreOrder)
				r.Post("/renewal/charge", s.handleRenewal)
			})

			r.Route("/subscriptions/{id}", func(r chi.Router) {
				r.Post("/cancel", s.handleCancelSubscription)
				r.Put("/transaction", s.handleChangeTransaction)
				r.Post("/payment-method-changed", s.handlePaymentMethodChanged)
			})
		})
	})
	return r
}

// NewHTTPServer wraps the router with the configured listen port.
func (s *Server) NewHTTPServer(port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
