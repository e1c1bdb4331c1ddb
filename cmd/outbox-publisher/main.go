package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront/pkg/bootstrap"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/instance"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/outbox/registry"
	"github.com/angelmondragon/storefront/pkg/pubsub"
)

func main() {
	bg := context.Background()
	cfg, logg, err := bootstrap.Load("outbox-publisher")
	bootstrap.Check(bg, logg, "failed to load config", err)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	bootstrap.Check(bg, logg, "failed to build event registry", err)

	dbClient, err := db.New(bg, cfg.DB, logg)
	bootstrap.Check(bg, logg, "failed to bootstrap database", err)
	defer bootstrap.Close(logg, "database", dbClient.Close)

	bootstrap.Check(bg, logg, "failed to run dev migrations", migrate.MaybeRunDev(bg, cfg, logg, dbClient))

	pubsubClient, err := pubsub.NewClient(bg, cfg.GCP, eventRegistry.Topics(), logg)
	bootstrap.Check(bg, logg, "failed to bootstrap pubsub", err)
	defer bootstrap.Close(logg, "pubsub client", pubsubClient.Close)

	promRegistry := bootstrap.NewRegistry()
	relay, err := NewRelay(RelayParams{
		Outbox:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		PubSub:     pubsubClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		DLQ:        outbox.NewDLQRepository(dbClient.DB()),
		Registry:   eventRegistry,
		Metrics:    metrics.NewOutboxMetrics(promRegistry),
	})
	bootstrap.Check(bg, logg, "failed to create outbox relay", err)

	ctx, stop := bootstrap.SignalContext()
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	bootstrap.ServeOps(ctx, cfg.Outbox.MetricsAddr, promRegistry, logg)
	logg.Info(ctx, "starting outbox publisher")

	if err := relay.Run(ctx); !errors.Is(err, context.Canceled) {
		bootstrap.Check(ctx, logg, "outbox publisher stopped unexpectedly", err)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
