package cli

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/internal/auth"
	"github.com/angelmondragon/salesledger/internal/orders"
	"github.com/angelmondragon/salesledger/internal/pricing"
	"github.com/angelmondragon/salesledger/internal/reference"
	"github.com/angelmondragon/salesledger/internal/reports"
	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/outbox"
)

// app is the service graph a command runs against.
type app struct {
	logg       *logger.Logger
	db         *db.Client
	principals *access.Repository
	access     access.Service
	register   auth.RegisterService
	reference  reference.Repository
	reports    reports.Service
	dlq        *outbox.DLQRepository
}

// opener builds the app for one command and returns its cleanup.
type opener func(ctx context.Context) (*app, func(), error)

func configOpener(ctx context.Context) (*app, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "salesctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      "console",
	})
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	a, err := newApp(client, cfg.Password, logg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return a, func() { _ = client.Close() }, nil
}

func connOpener(conn *gorm.DB, passwords config.PasswordConfig, logg *logger.Logger) opener {
	return func(context.Context) (*app, func(), error) {
		a, err := newApp(db.NewFromConn(conn), passwords, logg)
		if err != nil {
			return nil, nil, err
		}
		return a, func() {}, nil
	}
}

func newApp(client *db.Client, passwords config.PasswordConfig, logg *logger.Logger) (*app, error) {
	conn := client.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	principals := access.NewRepository(conn)
	accessSvc, err := access.NewService(access.ServiceParams{
		Repo:   principals,
		TX:     client,
		Outbox: emitter,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}
	register, err := auth.NewRegisterService(auth.RegisterServiceParams{
		Principals:     principals,
		PasswordConfig: passwords,
	})
	if err != nil {
		return nil, err
	}

	refRepo := reference.NewRepository(conn)
	resolver, err := pricing.NewResolver(refRepo)
	if err != nil {
		return nil, err
	}
	orderRepo := orders.NewRepository(conn)
	aggregator, err := orders.NewAggregator(orders.AggregatorParams{
		Repo:      orderRepo,
		Reference: refRepo,
		Prices:    resolver,
		Access:    accessSvc,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}
	reportSvc, err := reports.NewService(reports.ServiceParams{
		Orders:     orderRepo,
		Principals: accessSvc,
		Products:   refRepo,
		Details:    aggregator,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		logg:       logg,
		db:         client,
		principals: principals,
		access:     accessSvc,
		register:   register,
		reference:  refRepo,
		reports:    reportSvc,
		dlq:        outbox.NewDLQRepository(conn),
	}, nil
}

// run opens the app, hands it to fn and always releases it.
func run(ctx context.Context, open opener, fn func(*app) error) error {
	a, cleanup, err := open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(a)
}
