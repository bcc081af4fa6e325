package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/settlement-core/api/controllers"
	balancecontrollers "github.com/angelmondragon/settlement-core/api/controllers/balances"
	ordercontrollers "github.com/angelmondragon/settlement-core/api/controllers/orders"
	shippingcontrollers "github.com/angelmondragon/settlement-core/api/controllers/shipping"
	webhookcontrollers "github.com/angelmondragon/settlement-core/api/controllers/webhooks"
	withdrawalcontrollers "github.com/angelmondragon/settlement-core/api/controllers/withdrawals"
	"github.com/angelmondragon/settlement-core/api/middleware"
	"github.com/angelmondragon/settlement-core/internal/orders"
	"github.com/angelmondragon/settlement-core/pkg/config"
	"github.com/angelmondragon/settlement-core/pkg/enums"
	"github.com/angelmondragon/settlement-core/pkg/logger"
	"github.com/angelmondragon/settlement-core/pkg/metrics"
	"github.com/angelmondragon/settlement-core/pkg/redis"
)

// Deps are the handlers' collaborators. Nil pingers are skipped by the
// readiness probe and a nil idempotency store disables replay.
type Deps struct {
	Orders      orders.Service
	Status      ordercontrollers.StatusChecker
	Shipping    shippingcontrollers.OptionLister
	Balances    balancecontrollers.Reader
	Reconciler  balancecontrollers.Reconciler
	Withdrawals withdrawalcontrollers.Workflow
	Callbacks   webhookcontrollers.CallbackIngester
	GatewayKeys webhookcontrollers.Signer
	ReplayGuard webhookcontrollers.ReplayGuard
	Idempotency redis.IdempotencyStore
	IdemTTL     time.Duration
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Registry    *prometheus.Registry
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	httpMetrics := metrics.NewHTTPMetrics(registry)

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayCallback(deps.Callbacks, deps.GatewayKeys, deps.ReplayGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, deps.IdemTTL, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.RoleBuyer)).Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/code/{code}", ordercontrollers.DetailByCode(deps.Orders, logg))
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
				r.With(middleware.RequireRole(logg, enums.RoleBuyer, enums.RoleStore, enums.RoleAdmin)).Patch("/delivery", ordercontrollers.UpdateDelivery(deps.Orders, logg))
				r.Post("/cancel", ordercontrollers.Cancel(deps.Orders, logg))
				r.With(middleware.RequireRole(logg, enums.RoleBuyer)).Post("/retry-payment", ordercontrollers.RetryPayment(deps.Orders, logg))
				r.Post("/check-status", ordercontrollers.CheckStatus(deps.Status, logg))
			})
		})

		r.Post("/shipping/options", shippingcontrollers.Options(deps.Shipping, logg))

		r.Get("/stores/{storeID}/balance", balancecontrollers.StoreBalance(deps.Balances, logg))
		r.Route("/balances/{balanceID}", func(r chi.Router) {
			r.Get("/history", balancecontrollers.History(deps.Balances, logg))
			r.With(middleware.RequireRole(logg, enums.RoleAdmin)).Get("/reconciliation", balancecontrollers.Reconciliation(deps.Reconciler, logg))
			r.Get("/withdrawals", withdrawalcontrollers.List(deps.Withdrawals, logg))
			r.With(middleware.RequireRole(logg, enums.RoleStore)).Post("/withdrawals", withdrawalcontrollers.Request(deps.Withdrawals, logg))
		})

		r.With(middleware.RequireRole(logg, enums.RoleAdmin)).Post("/withdrawals/{withdrawalID}/approve", withdrawalcontrollers.Approve(deps.Withdrawals, logg))
	})

	return r
}
