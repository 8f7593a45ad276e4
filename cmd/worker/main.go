package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/ledger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/config"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/instance"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/metrics"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/migrate"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/pubsub"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "ledger-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "ledger-worker"

	logg = logger.New(logger.Options{
		ServiceName: "ledger-worker",
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

	workflowMetrics := metrics.NewWorkflowMetrics(prometheus.DefaultRegisterer)
	anchorService, err := ledger.FromConfig(cfg, dbClient.DB(), dbClient, workflowMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create anchor service", err)
		os.Exit(1)
	}

	params := ServiceParams{
		Logger:       logg,
		DB:           dbClient,
		Anchors:      anchorService,
		BatchSize:    cfg.Anchor.BatchSize,
		PollInterval: cfg.Anchor.PollInterval,
	}

	// the settlement consumer is optional; the cron sweep covers missed enqueues
	if strings.TrimSpace(cfg.PubSub.OrdersSubscription) != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		settlement, err := ledger.NewSettlementConsumer(orders.NewRepository(dbClient.DB()), anchorService, pubsubClient.OrdersSubscription(), logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create settlement consumer", err)
			os.Exit(1)
		}
		params.PubSub = pubsubClient
		params.Consumer = settlement
	}

	service, err := NewService(params)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting ledger worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "ledger worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "ledger worker shutting down gracefully")
}
