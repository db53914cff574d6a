package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name (for -cmd=create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (for -cmd=version)")
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": *dir})

	if err := run(ctx, logg, *cmd, *dir, *name, *version); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *logger.Logger, cmd, dir, name, version string) error {
	// offline commands never touch config or the database
	switch cmd {
	case "create":
		if name == "" {
			return fmt.Errorf("missing -name for create")
		}
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		if err := migrate.ValidateFS(migrate.Source(dir)); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sqlDB, err := sql.Open("postgres", cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	runner, err := migrate.NewRunner(sqlDB, migrate.Source(dir), logg)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "migrate.ready")

	switch cmd {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			applied := "pending"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Printf("%d\t%s\t%s\n", st.Source.Version, applied, st.Source.Path)
		}
		return nil
	case "version":
		if version == "" {
			return fmt.Errorf("missing -version for version")
		}
		return runner.To(ctx, version)
	default:
		return fmt.Errorf("unknown -cmd value %q", cmd)
	}
}
