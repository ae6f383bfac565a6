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

	"github.com/angelmondragon/salesledger/api/routes"
	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/internal/auth"
	"github.com/angelmondragon/salesledger/internal/orders"
	"github.com/angelmondragon/salesledger/internal/pricing"
	"github.com/angelmondragon/salesledger/internal/reference"
	"github.com/angelmondragon/salesledger/internal/reports"
	"github.com/angelmondragon/salesledger/pkg/auth/session"
	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/metrics"
	"github.com/angelmondragon/salesledger/pkg/migrate"
	"github.com/angelmondragon/salesledger/pkg/outbox"
	"github.com/angelmondragon/salesledger/pkg/redis"
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

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	opMetrics := metrics.NewOperationMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	principalRepo := access.NewRepository(dbClient.DB())
	accessService, err := access.NewService(access.ServiceParams{
		Repo:    principalRepo,
		TX:      dbClient,
		Outbox:  emitter,
		Logger:  logg,
		Metrics: opMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create access service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Principals:     principalRepo,
		Access:         accessService,
		Sessions:       sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		Principals:        principalRepo,
		PasswordConfig:    cfg.Password,
		AllowRegistration: cfg.FeatureFlags.AllowRegistration,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}

	referenceRepo := reference.NewRepository(dbClient.DB())
	referenceService, err := reference.NewService(reference.ServiceParams{
		Repo:               referenceRepo,
		SearchLimit:        cfg.Reference.SearchLimit,
		ProductSearchLimit: cfg.Reference.ProductSearchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reference service", err)
		os.Exit(1)
	}
	priceResolver, err := pricing.NewResolver(referenceRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create price resolver", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	aggregator, err := orders.NewAggregator(orders.AggregatorParams{
		Repo:      ordersRepo,
		Reference: referenceRepo,
		Prices:    priceResolver,
		Access:    accessService,
		Logger:    logg,
		ListLimit: cfg.Orders.ListLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order aggregator", err)
		os.Exit(1)
	}
	mutator, err := orders.NewMutator(orders.MutatorParams{
		Repo:       ordersRepo,
		Reference:  referenceRepo,
		Prices:     priceResolver,
		Access:     accessService,
		TX:         dbClient,
		Outbox:     emitter,
		Logger:     logg,
		Metrics:    opMetrics,
		IDAttempts: cfg.Orders.IDAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order mutator", err)
		os.Exit(1)
	}

	reportService, err := reports.NewService(reports.ServiceParams{
		Orders:     ordersRepo,
		Principals: accessService,
		Products:   referenceRepo,
		Details:    aggregator,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create report service", err)
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
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Sessions:   sessionManager,
			Auth:       authService,
			Register:   registerService,
			Access:     accessService,
			Reference:  referenceService,
			Prices:     priceResolver,
			Aggregator: aggregator,
			Mutator:    mutator,
			Reports:    reportService,
		}),
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
