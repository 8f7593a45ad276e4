package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/controllers"
	disputecontrollers "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/controllers/disputes"
	ordercontrollers "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/controllers/orders"
	webhookcontrollers "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/controllers/webhooks"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/middleware"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/disputes"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/config"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	pkgredis "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/redis"
)

type redisStore interface {
	pkgredis.Pinger
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	DB              db.Pinger
	Redis           redisStore
	Orders          orders.Service
	Disputes        disputes.Service
	Ledger          ordercontrollers.LedgerVerifier
	SquareWebhook   webhookcontrollers.SquareWebhookService
	SquareSigning   webhookcontrollers.SquareSigning
	WebhookGuard    webhookGuard
	MetricsGatherer prometheus.Gatherer
	HTTPMetrics     interface {
		ObserveRequest(route string, status int, elapsed time.Duration)
	}
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)
	if deps.HTTPMetrics != nil {
		r.Use(middleware.Metrics(deps.HTTPMetrics))
	}

	var cache pkgredis.Pinger
	if deps.Redis != nil {
		cache = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, cache))
	})

	gatherer := deps.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(deps.SquareWebhook, deps.SquareSigning, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.RateLimit(middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.Limit), deps.Redis, logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer)).Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
				r.With(middleware.RequireRole(logg, enums.ActorRoleProducer, enums.ActorRoleAdmin)).Get("/payouts", ordercontrollers.Payouts(deps.Orders, logg))
				r.Patch("/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
				r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer)).Post("/cancel", ordercontrollers.Cancel(deps.Orders, logg))
				r.Get("/ledger", ordercontrollers.Ledger(deps.Orders, deps.Ledger, logg))
				r.Get("/disputes", disputecontrollers.ListByOrder(deps.Disputes, logg))
			})
		})

		r.Route("/disputes", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer, enums.ActorRoleProducer)).Post("/", disputecontrollers.Create(deps.Disputes, logg))
			r.Route("/{disputeId}", func(r chi.Router) {
				r.Get("/", disputecontrollers.Detail(deps.Disputes, logg))
				r.Post("/evidence", disputecontrollers.AddEvidence(deps.Disputes, logg))
				r.Post("/messages", disputecontrollers.AddMessage(deps.Disputes, logg))
				r.Patch("/status", disputecontrollers.UpdateStatus(deps.Disputes, logg))
				r.Post("/resolve", disputecontrollers.Resolve(deps.Disputes, logg))
				r.Post("/cancel", disputecontrollers.Cancel(deps.Disputes, logg))
			})
		})
	})

	return r
}
