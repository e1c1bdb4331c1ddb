package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/availability"
	"github.com/angelmondragon/storefront/internal/ledger"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// redisStore is the subset of pkg/redis.Client used by the HTTP layer.
type redisStore interface {
	Ping(context.Context) error
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	tokens middleware.TokenVerifier,
	dbP controllers.Pinger,
	redisClient redisStore,
	registry *prometheus.Registry,
	availabilityService availability.Service,
	ordersService orders.Service,
	ledgerService ledger.Service,
) http.Handler {
	var httpMetrics *metrics.HTTPMetrics
	if registry != nil {
		httpMetrics = metrics.NewHTTPMetrics(registry)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	publicPolicy := middleware.NewRateLimitPolicy("public", cfg.RateLimit.Window, cfg.RateLimit.PublicIPLimit, 0)
	orderPolicy := middleware.NewRateLimitPolicy("orders", cfg.RateLimit.Window, cfg.RateLimit.OrderIPLimit, cfg.RateLimit.OrderEmail)
	idempotent := middleware.Idempotency(redisClient, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(publicPolicy, redisClient, logg))
			r.Get("/variants/{variantId}/availability", controllers.VariantAvailability(availabilityService, logg))
			r.Post("/cart/validate", controllers.CartValidate(availabilityService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokens, logg))
			r.With(middleware.RateLimit(orderPolicy, redisClient, logg), idempotent).
				Post("/orders", controllers.CreateOrder(ordersService, logg))
			r.Get("/orders/{orderId}", controllers.GetOrder(ordersService, logg))
			r.With(idempotent).Post("/orders/{orderId}/cancel", controllers.CancelOrder(ordersService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(tokens, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))

		r.Get("/orders", controllers.AdminListOrders(ordersService, logg))
		r.With(idempotent).Patch("/orders/{orderId}/status", controllers.AdminUpdateOrderStatus(ordersService, logg))
		r.With(idempotent).Delete("/orders/{orderId}", controllers.AdminDeleteOrder(ordersService, logg))
		r.With(idempotent).Post("/inventory/provision", controllers.AdminProvisionStock(ledgerService, logg))
		r.Get("/inventory/audit", controllers.AdminInventoryAudit(ledgerService, logg))
		r.Get("/variants/{variantId}/stock", controllers.AdminVariantStock(ledgerService, logg))
	})

	return r
}
