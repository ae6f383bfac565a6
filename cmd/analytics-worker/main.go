package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/salesledger/internal/analytics/router"
	"github.com/angelmondragon/salesledger/internal/analytics/worker"
	"github.com/angelmondragon/salesledger/internal/analytics/writer"
	"github.com/angelmondragon/salesledger/pkg/bigquery"
	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/metrics"
	"github.com/angelmondragon/salesledger/pkg/outbox/idempotency"
	"github.com/angelmondragon/salesledger/pkg/pubsub"
	"github.com/angelmondragon/salesledger/pkg/redis"
)

const serviceKind = "analytics-worker"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.ModeConsumer, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.PubSub.IdempotencyTTL, cfg.PubSub.ClaimLease)
	requireResource(ctx, logg, "idempotency manager", err)

	salesWriter, err := writer.New(bqClient, writer.RetryPolicy{})
	requireResource(ctx, logg, "analytics bigquery writer", err)

	eventRouter, err := router.NewRouter(salesWriter, logg)
	requireResource(ctx, logg, "analytics router", err)

	service, err := worker.NewService(worker.Params{
		Subscription: subscription,
		Handler:      eventRouter,
		Idempotency:  manager,
		Logger:       logg,
		Metrics:      metrics.NewConsumerMetrics(prometheus.DefaultRegisterer),
	})
	requireResource(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
	})
	logg.Info(runCtx, "analytics worker ready")

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return service.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.App.MetricsPort, prometheus.DefaultGatherer, logg) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "analytics worker stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
