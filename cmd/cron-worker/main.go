package main

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront/internal/cron"
	"github.com/angelmondragon/storefront/internal/ledger"
	"github.com/angelmondragon/storefront/pkg/bootstrap"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/instance"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/redis"
)

const lockName = "cron-worker"

func main() {
	bg := context.Background()
	cfg, logg, err := bootstrap.Load("cron-worker")
	bootstrap.Check(bg, logg, "failed to load config", err)

	dbClient, err := db.New(bg, cfg.DB, logg)
	bootstrap.Check(bg, logg, "failed to bootstrap database", err)
	defer bootstrap.Close(logg, "database", dbClient.Close)

	bootstrap.Check(bg, logg, "failed to run dev migrations", migrate.MaybeRunDev(bg, cfg, logg, dbClient))

	redisClient, err := redis.New(bg, cfg.Redis, logg)
	bootstrap.Check(bg, logg, "failed to bootstrap redis", err)
	defer bootstrap.Close(logg, "redis", redisClient.Close)

	promRegistry := bootstrap.NewRegistry()
	inventoryMetrics := metrics.NewInventoryMetrics(promRegistry)
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repository: ledger.NewRepository(dbClient.DB()),
		DB:         dbClient,
		Metrics:    inventoryMetrics,
	})
	bootstrap.Check(bg, logg, "failed to create ledger", err)

	jobs := cron.NewRegistry()
	auditJob, err := cron.NewInventoryAuditJob(cron.InventoryAuditJobParams{
		Logger:  logg,
		Ledger:  ledgerService,
		Metrics: inventoryMetrics,
	})
	bootstrap.Check(bg, logg, "failed to create inventory audit job", err)
	bootstrap.Check(bg, logg, "failed to register inventory audit job", jobs.Register(auditJob))

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              logg,
		DB:                  dbClient,
		Events:              outbox.NewRepository(dbClient.DB()),
		DeadLetters:         outbox.NewDLQRepository(dbClient.DB()),
		EventRetention:      days(cfg.Outbox.RetentionDays),
		DeadLetterRetention: days(cfg.Outbox.DLQRetentionDays),
		ExhaustedAttempts:   cfg.Outbox.MaxAttempts,
	})
	bootstrap.Check(bg, logg, "failed to create outbox retention job", err)
	bootstrap.Check(bg, logg, "failed to register outbox retention job", jobs.Register(retentionJob))

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), instance.GetID(), cfg.Cron.LockTTL)
	bootstrap.Check(bg, logg, "failed to create cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(promRegistry),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	bootstrap.Check(bg, logg, "failed to create cron service", err)

	ctx, stop := bootstrap.SignalContext()
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"jobs":        jobs.Names(),
	})
	bootstrap.ServeOps(ctx, cfg.Cron.MetricsAddr, promRegistry, logg)
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		bootstrap.Check(ctx, logg, "cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
