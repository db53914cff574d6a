package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/db"
	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date on dev startup when
// STOREFRONT_AUTO_MIGRATE is set. The SQL files are Postgres only, so a
// sqlite database is migrated from the gorm models instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if strings.EqualFold(cfg.DB.Driver, db.DriverSQLite) {
		logg.Info(ctx, "migrate.automigrate.start")
		if err := client.DB().WithContext(ctx).AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("automigrate: %w", err)
		}
		logg.Info(ctx, "migrate.automigrate.done")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, Embedded(), logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "migrate.goose.start")
	if err := runner.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "migrate.goose.done")
	return nil
}

// Models lists every persisted model, in foreign key order.
func Models() []any {
	return []any{
		&models.GatewayOrder{},
		&models.Order{},
		&models.User{},
		&models.OutboxEvent{},
	}
}
