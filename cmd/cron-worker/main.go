package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/cron"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/ledger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/payments"
	squarewebhook "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/webhooks/square"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/config"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/instance"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/metrics"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/migrate"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/redis"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sweepMetrics := metrics.NewSweepMetrics(prometheus.DefaultRegisterer)
	workflowMetrics := metrics.NewWorkflowMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(redisClient, cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(context.Background(), cfg, logg, dbClient, workflowMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  sweepMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	// `cron-worker run <job>` executes one sweep and exits
	if len(os.Args) == 3 && os.Args[1] == "run" {
		jobCtx := logg.WithField(ctx, "job", os.Args[2])
		if err := service.RunJob(jobCtx, os.Args[2]); err != nil {
			logg.Error(jobCtx, "one-off sweep failed", err)
			os.Exit(1)
		}
		return
	}
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey("cron-worker:" + env)
}

func buildRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, workflowMetrics *metrics.WorkflowMetrics) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	anchorService, err := ledger.FromConfig(cfg, conn, dbClient, workflowMetrics, logg)
	if err != nil {
		return nil, err
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Repository: payments.NewRepository(conn),
		Orders:     orderRepo,
		TxRunner:   dbClient,
		Outbox:     outbox.NewService(outboxRepo, logg),
		Anchors:    anchorService,
		Observer:   workflowMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}
	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return nil, err
	}
	squareService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Reconciler: paymentService,
		Payments:   squareClient,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	sweep, err := cron.NewAnchorSweepJob(cron.AnchorSweepJobParams{
		Logger:    logg,
		Orders:    orderRepo,
		Anchors:   anchorService,
		BatchSize: cfg.Anchor.BatchSize * 4,
	})
	if err != nil {
		return nil, err
	}
	reconcile, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:     logg,
		Reconciler: paymentService,
		Lookup:     squareService,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(sweep, reconcile, retention)
}
