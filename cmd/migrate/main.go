package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
	timeout time.Duration
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.cmd, "cmd", "up", "up|down|redo|status|version|create|validate")
	flag.StringVar(&o.dir, "dir", migrate.DefaultDir, "migrations directory")
	flag.StringVar(&o.name, "name", "", "migration name, for -cmd=create")
	flag.StringVar(&o.version, "version", "", "target version (YYYYMMDDHHMMSS), for -cmd=version")
	flag.DurationVar(&o.timeout, "timeout", 10*time.Minute, "give up after this long")
	flag.Parse()
	return o
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()

	// create and validate never open a database.
	if done, err := offline(opts); done {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd, "dir": opts.dir})

	if err := run(ctx, cfg, logg, opts); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func offline(opts options) (bool, error) {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return true, errors.New("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return true, fmt.Errorf("create migration: %w", err)
		}
		fmt.Println("created", path)
		return true, nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return true, fmt.Errorf("invalid migrations in %s:\n%w", opts.dir, err)
		}
		fmt.Println("migrations in", opts.dir, "are valid")
		return true, nil
	}
	return false, nil
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	if opts.cmd == "version" && opts.version == "" {
		return errors.New("-version is required for version")
	}

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("underlying sql.DB: %w", err)
	}
	runner, err := migrate.NewRunner(sqlDB, opts.dir, logg)
	if err != nil {
		return err
	}
	return runner.Run(ctx, opts.cmd, opts.version)
}
