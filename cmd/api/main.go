package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/availability"
	"github.com/angelmondragon/storefront/internal/ledger"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/policy"
	"github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/bootstrap"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/instance"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/redis"
)

func main() {
	bg := context.Background()
	cfg, logg, err := bootstrap.Load("api")
	bootstrap.Check(bg, logg, "failed to load config", err)

	tokens, err := auth.NewTokens(cfg.JWT)
	bootstrap.Check(bg, logg, "invalid jwt configuration", err)
	shipping, err := cfg.Storefront.FlatShipping()
	bootstrap.Check(bg, logg, "invalid shipping configuration", err)
	currency, err := enums.ParseCurrency(cfg.Storefront.Currency)
	bootstrap.Check(bg, logg, "invalid currency configuration", err)

	dbClient, err := db.New(bg, cfg.DB, logg)
	bootstrap.Check(bg, logg, "failed to bootstrap database", err)
	defer bootstrap.Close(logg, "database", dbClient.Close)

	bootstrap.Check(bg, logg, "failed to run dev migrations", migrate.MaybeRunDev(bg, cfg, logg, dbClient))

	redisClient, err := redis.New(bg, cfg.Redis, logg)
	bootstrap.Check(bg, logg, "failed to bootstrap redis", err)
	defer bootstrap.Close(logg, "redis", redisClient.Close)

	promRegistry := bootstrap.NewRegistry()

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repository:  ledger.NewRepository(dbClient.DB()),
		DB:          dbClient,
		Metrics:     metrics.NewInventoryMetrics(promRegistry),
		MaxAttempts: cfg.Inventory.ReserveMaxAttempts,
	})
	bootstrap.Check(bg, logg, "failed to create ledger", err)

	baseResolver, err := policy.NewResolver(policy.NewRepository(dbClient.DB()))
	bootstrap.Check(bg, logg, "failed to create policy resolver", err)
	resolver, err := policy.NewCachedResolver(policy.CachedResolverParams{
		Next:   baseResolver,
		Cache:  redisClient,
		Logger: logg,
		TTL:    cfg.Inventory.PolicyCacheTTL,
	})
	bootstrap.Check(bg, logg, "failed to create policy cache", err)

	availabilityService, err := availability.NewService(resolver, ledgerService)
	bootstrap.Check(bg, logg, "failed to create availability checker", err)

	notifier, outboxService, err := orderEvents(cfg.Eventing.Enabled, dbClient, logg)
	bootstrap.Check(bg, logg, "failed to create outbox notifier", err)

	orderParams := orders.ServiceParams{
		Repository:   orders.NewRepository(dbClient.DB()),
		DB:           dbClient,
		Ledger:       ledgerService,
		Availability: availabilityService,
		Policies:     resolver,
		Notifier:     notifier,
		Logger:       logg,
		Metrics:      metrics.NewOrderMetrics(promRegistry),
		Currency:     currency,
		Shipping:     shipping,
	}
	if outboxService != nil {
		orderParams.Outbox = outboxService
	}
	ordersService, err := orders.NewService(orderParams)
	bootstrap.Check(bg, logg, "failed to create orders service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, tokens, dbClient, redisClient, promRegistry, availabilityService, ordersService, ledgerService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := bootstrap.SignalContext()
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     server.Addr,
		"instance": instance.GetID(),
		"eventing": cfg.Eventing.Enabled,
	})

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		logg.Info(ctx, "api server draining")
		if err := bootstrap.Shutdown(server); err != nil {
			logg.Error(ctx, "api server shutdown", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		bootstrap.Check(ctx, logg, "api server stopped unexpectedly", err)
	}
	<-drained
	logg.Info(ctx, "api server stopped")
}

// orderEvents picks where lifecycle events go. Without eventing no relay drains the outbox,
// so nothing is queued there and notifications are only logged.
func orderEvents(enabled bool, dbClient *db.Client, logg *logger.Logger) (notifications.Notifier, *outbox.Service, error) {
	if !enabled {
		return notifications.NewLogNotifier(logg), nil, nil
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	notifier, err := notifications.NewOutboxNotifier(dbClient, outboxService)
	if err != nil {
		return nil, nil, err
	}
	return notifier, outboxService, nil
}
