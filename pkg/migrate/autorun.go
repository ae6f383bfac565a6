package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

// MaybeRunDev brings the schema up to date at startup. Only dev
// environments with SALESLEDGER_AUTO_MIGRATE=true do this; elsewhere the
// migrate binary owns schema changes.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("underlying sql.DB: %w", err)
	}

	runner, err := NewRunner(sqlDB, DefaultDir, logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "auto_migrate", DefaultDir)
	return runner.Run(ctx, "up", "")
}
