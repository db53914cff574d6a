package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/petalpost/storefront-backend/internal/cron"
	"github.com/petalpost/storefront-backend/internal/orders"
	"github.com/petalpost/storefront-backend/internal/payments"
	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/db"
	"github.com/petalpost/storefront-backend/pkg/instance"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/metrics"
	"github.com/petalpost/storefront-backend/pkg/migrate"
	"github.com/petalpost/storefront-backend/pkg/outbox"
	"github.com/petalpost/storefront-backend/pkg/razorpay"
	"github.com/petalpost/storefront-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger, once bool) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "instance", instance.ID())

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

	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Outbox:  outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
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

	reconcile, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:   logg,
		Orders:   ordersSvc,
		Payments: paymentsSvc,
		Grace:    cfg.Checkout.PendingGrace,
		TTL:      cfg.Checkout.PendingTTL,
	})
	if err != nil {
		return err
	}
	registry, err := cron.NewRegistry(reconcile)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	svc, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	if once {
		_, err := svc.RunOnce(ctx)
		return err
	}
	logg.Info(logg.WithField(ctx, "interval", cfg.Cron.Interval.String()), "cron.starting")
	return svc.Run(ctx)
}
