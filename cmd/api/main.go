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

	webhookcontrollers "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/controllers/webhooks"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/routes"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/catalog"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/disputes"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/ledger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/payments"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/splits"
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

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := buildDependencies(context.Background(), cfg, logg, dbClient, redisClient, registry)
	if err != nil {
		logg.Error(context.Background(), "failed to build api dependencies", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"instance":    instance.GetID(),
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildDependencies(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, registry *prometheus.Registry) (routes.Dependencies, error) {
	conn := dbClient.DB()
	workflowMetrics := metrics.NewWorkflowMetrics(registry)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	orderRepo := orders.NewRepository(conn)

	anchorService, err := ledger.FromConfig(cfg, conn, dbClient, workflowMetrics, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	commission, err := cfg.Split.Commission()
	if err != nil {
		return routes.Dependencies{}, err
	}
	calculator, err := splits.NewCalculator(commission, cfg.Split.MinorUnits)
	if err != nil {
		return routes.Dependencies{}, err
	}
	reader, err := catalog.NewReader(conn)
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderService, err := orders.NewService(orderRepo, dbClient, emitter, reader, calculator, anchorService, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	disputeService, err := disputes.NewService(disputes.NewRepository(conn), orderRepo, dbClient, emitter, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repository: payments.NewRepository(conn),
		Orders:     orderRepo,
		TxRunner:   dbClient,
		Outbox:     emitter,
		Anchors:    anchorService,
		Observer:   workflowMetrics,
		Logger:     logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	squareService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Reconciler: paymentService,
		Payments:   squareClient,
		Logger:     logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	guard, err := squarewebhook.NewIdempotencyGuard(redisClient, cfg.Square.WebhookDedupTTL, "square-webhook")
	if err != nil {
		return routes.Dependencies{}, err
	}

	signing := webhookcontrollers.SquareSigning{
		SignatureKey:    squareClient.SigningSecret(),
		NotificationURL: cfg.Square.NotificationURL,
	}

	return routes.Dependencies{
		DB:              dbClient,
		Redis:           redisClient,
		Orders:          orderService,
		Disputes:        disputeService,
		Ledger:          anchorService,
		SquareWebhook:   squareService,
		SquareSigning:   signing,
		WebhookGuard:    guard,
		MetricsGatherer: registry,
		HTTPMetrics:     metrics.NewHTTPMetrics(registry),
	}, nil
}
