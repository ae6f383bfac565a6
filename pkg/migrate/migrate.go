package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/salesledger/pkg/logger"
)

// DefaultDir is relative to the repository root, where binaries are started.
const DefaultDir = "pkg/migrate/migrations"

// Runner applies the SQL files in one directory to a postgres database.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewRunner(db *sql.DB, dir string, logg *logger.Logger) (*Runner, error) {
	if db == nil || dir == "" {
		return nil, fmt.Errorf("db and dir are required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider for %q: %w", dir, err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

// Run executes one of up, down, redo, status or version=<YYYYMMDDHHMMSS>.
func (r *Runner) Run(ctx context.Context, command, target string) error {
	switch command {
	case "up":
		res, err := r.provider.Up(ctx)
		r.report(ctx, res...)
		return wrap("up", err)
	case "down":
		res, err := r.provider.Down(ctx)
		r.report(ctx, res)
		return wrap("down", err)
	case "redo":
		res, err := r.provider.Down(ctx)
		r.report(ctx, res)
		if err != nil {
			return wrap("redo", err)
		}
		res, err = r.provider.UpByOne(ctx)
		r.report(ctx, res)
		return wrap("redo", err)
	case "status":
		return r.status(ctx)
	case "version":
		return r.migrateTo(ctx, target)
	}
	return fmt.Errorf("unknown migrate command %q", command)
}

func (r *Runner) migrateTo(ctx context.Context, target string) error {
	want, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}
	var res []*goose.MigrationResult
	switch {
	case current == want:
		return nil
	case current < want:
		res, err = r.provider.UpTo(ctx, want)
	default:
		res, err = r.provider.DownTo(ctx, want)
	}
	r.report(ctx, res...)
	return wrap(fmt.Sprintf("migrate %d -> %d", current, want), err)
}

func (r *Runner) status(ctx context.Context) error {
	all, err := r.provider.Status(ctx)
	if err != nil {
		return wrap("status", err)
	}
	for _, st := range all {
		fields := map[string]any{"version": st.Source.Version, "state": string(st.State)}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

func (r *Runner) report(ctx context.Context, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil {
			continue
		}
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
