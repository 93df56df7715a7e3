// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coolpay-gateway/internal/config"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"
	payAdapters "coolpay-gateway/internal/infra/adapters/payment"
	"coolpay-gateway/internal/infra/api"
	pg "coolpay-gateway/internal/infra/db/postgres"
	"coolpay-gateway/internal/infra/events"
	"coolpay-gateway/internal/infra/logging"
	"coolpay-gateway/internal/infra/metrics"
	"coolpay-gateway/internal/infra/payment"
	red "coolpay-gateway/internal/infra/redis"
	"coolpay-gateway/internal/infra/sched"
	"coolpay-gateway/internal/infra/worker"
	"coolpay-gateway/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "console logging and verbose secrets")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	logger.Info().
		Str("version", version).
		Str("gateway", cfg.Gateway.Driver).
		Str("api_key", logging.Redact(cfg.Gateway.APIKey, cfg.Runtime.Dev)).
		Msg("starting coolpay-gateway")

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	if cfg.Database.MigrateOnStart {
		if err := pg.RunMigrations(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		logger.Info().Msg("database migrations applied")
	}
	pool, err := pg.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	orders := pg.NewOrderRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	cache := red.NewTransactionCache(redisClient, cfg.Redis.TTL, !cfg.Redis.DisableTransactionCache)
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Gateway ----
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	verifier := payment.NewHMACVerifier(cfg.Gateway.PrivateKey)

	// ---- Events ----
	bus := events.NewBus(logger)
	bus.Subscribe(model.EventAccepted, events.CacheWriteThrough(cache))
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer publisher.Close()
		bus.Subscribe(model.EventAccepted, events.Forward(publisher))
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("forwarding accepted callbacks to kafka")
	}

	// ---- Use cases ----
	recurringUC := usecase.NewRecurringUseCase(gateway, orders, tm, cache, locker, logger)
	callbackUC := usecase.NewCallbackUseCase(verifier, orders, tm, locker, recurringUC, bus, logger)
	txUC := usecase.NewTransactionUseCase(cfg.Gateway, gateway, orders, cache, logger)
	adminUC := usecase.NewAdminActionUseCase(cfg.Gateway, gateway, orders, cache, logger)

	// ---- Workers ----
	workers := worker.NewPool(cfg.Scheduler.Workers, logger)
	workers.Start(ctx)
	defer workers.Stop()

	renewals := sched.NewRenewalWorker(cfg.Scheduler.RenewalInterval, cfg.Scheduler.Batch, orders, recurringUC, workers, logger)
	go func() { _ = renewals.Run(ctx) }()

	go reportPoolStats(ctx, pool.Stat)

	// ---- HTTP ----
	srv := api.NewServer(cfg.HTTP, cfg.Admin, callbackUC, txUC, adminUC, recurringUC, limiter, logger)
	server := srv.NewHTTPServer(cfg.HTTP.Port)
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("callback_path", cfg.HTTP.CallbackPath).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		logger.Error().Err(err).Msg("http server error")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}

func newGateway(cfg *config.Config, logger *zerolog.Logger) (adapter.PaymentGateway, error) {
	switch cfg.Gateway.Driver {
	case "memory":
		logger.Warn().Msg("using in-memory gateway, no real payments are made")
		return payAdapters.NewMemoryGateway(), nil
	case "coolpay":
		methods := payAdapters.DefaultMethodRegistry(cfg.Gateway.Methods)
		gw, err := payAdapters.NewCoolPayGateway(cfg.Gateway, methods, logger)
		if err != nil {
			return nil, fmt.Errorf("coolpay gateway: %w", err)
		}
		return gw, nil
	}
	return nil, fmt.Errorf("unknown gateway driver %q", cfg.Gateway.Driver)
}

func reportPoolStats(ctx context.Context, stat func() *pgxpool.Stat) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := stat()
			metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		}
	}
}
