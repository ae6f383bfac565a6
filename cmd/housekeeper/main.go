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

	"github.com/angelmondragon/salesledger/internal/housekeeping"
	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/metrics"
	"github.com/angelmondragon/salesledger/pkg/migrate"
	"github.com/angelmondragon/salesledger/pkg/outbox"
	"github.com/angelmondragon/salesledger/pkg/redis"
)

const lockKeyFormat = "sl:housekeeper:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "housekeeper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "housekeeper",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
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

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := housekeeping.NewRedisLock(redisClient, fmt.Sprintf(lockKeyFormat, env), cfg.Housekeeping.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create housekeeping lock", err)
		os.Exit(1)
	}

	outboxJob, err := housekeeping.NewOutboxRetentionJob(dbClient, outbox.NewRepository(dbClient.DB()), cfg.Housekeeping.OutboxRetentionDays)
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	dlqJob, err := housekeeping.NewDeadLetterRetentionJob(dbClient, outbox.NewDLQRepository(dbClient.DB()), cfg.Housekeeping.DLQRetentionDays)
	if err != nil {
		logg.Error(context.Background(), "failed to create dead letter retention job", err)
		os.Exit(1)
	}

	runner, err := housekeeping.NewRunner(housekeeping.RunnerParams{
		Logger:   logg,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Housekeeping.Interval,
		Jobs:     []housekeeping.Job{outboxJob, dlqJob},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create housekeeping runner", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Housekeeping.Interval.String(),
	})
	logg.Info(ctx, "starting housekeeper")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.App.MetricsPort, prometheus.DefaultGatherer, logg) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "housekeeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "housekeeper shutting down gracefully")
}
