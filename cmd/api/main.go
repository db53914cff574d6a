package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/petalpost/storefront-backend/api/routes"
	"github.com/petalpost/storefront-backend/internal/auth"
	"github.com/petalpost/storefront-backend/internal/cart"
	"github.com/petalpost/storefront-backend/internal/orders"
	"github.com/petalpost/storefront-backend/internal/payments"
	"github.com/petalpost/storefront-backend/internal/users"
	"github.com/petalpost/storefront-backend/pkg/auth/session"
	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/db"
	"github.com/petalpost/storefront-backend/pkg/instance"
	"github.com/petalpost/storefront-backend/pkg/kv"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/metrics"
	"github.com/petalpost/storefront-backend/pkg/migrate"
	"github.com/petalpost/storefront-backend/pkg/outbox"
	"github.com/petalpost/storefront-backend/pkg/razorpay"
	"github.com/petalpost/storefront-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "api",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	gateway, err := razorpay.NewClient(ctx, cfg.Razorpay, logg)
	if err != nil {
		return err
	}
	verifier, err := payments.NewSignatureVerifier(cfg.Razorpay.KeySecret)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Outbox:  outboxSvc,
		Logger:  logg,
		Metrics: checkoutMetrics,
	})
	if err != nil {
		return err
	}
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:            payments.NewRepository(dbClient.DB()),
		Tx:              dbClient,
		Gateway:         gateway,
		Verifier:        verifier,
		Orders:          ordersSvc,
		DefaultCurrency: cfg.Checkout.DefaultCurrency,
		Logger:          logg,
		Metrics:         checkoutMetrics,
	})
	if err != nil {
		return err
	}

	usersRepo := users.NewRepository(dbClient.DB())
	if cfg.App.IsDev() {
		if _, err := users.EnsureAdmin(ctx, usersRepo, cfg.Bootstrap, cfg.Password, logg); err != nil {
			return err
		}
	}
	sessions, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		SessionManager: sessions,
		JWTConfig:      cfg.JWT,
		Password:       cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	carts, err := cart.NewService(func(clientID string) kv.Store {
		return kv.NewRedisStore(redisClient, func(storageKey string) string {
			return redisClient.CartKey(clientID, storageKey)
		}, cfg.Cart.TTL)
	}, logg)
	if err != nil {
		return err
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:          dbClient,
		Redis:       redisClient,
		Sessions:    sessions,
		Auth:        authSvc,
		Payments:    paymentsSvc,
		Orders:      ordersSvc,
		Cart:        carts,
		Registry:    registry,
		HTTPMetrics: metrics.NewHTTPMetrics(registry),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{"addr": server.Addr, "instance": instance.ID()})
	logg.Info(logCtx, "api.starting")

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "api.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
