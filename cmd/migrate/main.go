package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-collections/pkg/config"
	"github.com/angelmondragon/storefront-collections/pkg/db"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
	"github.com/angelmondragon/storefront-collections/pkg/migrate"
)

var errUsage = errors.New("usage")

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory for create/validate")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	embedded := flag.Bool("embedded", false, "validate the migrations compiled into the binary instead of -dir")
	flag.Parse()

	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": *dir})

	// create and validate work on files only and need no configuration.
	switch *cmd {
	case "create":
		if *name == "" {
			exit(ctx, logg, fmt.Errorf("%w: missing -name for create", errUsage))
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			exit(ctx, logg, err)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		validate := func() error { return migrate.ValidateDir(*dir) }
		if *embedded {
			validate = migrate.ValidateEmbedded
		}
		if err := validate(); err != nil {
			exit(ctx, logg, fmt.Errorf("migration validation failed: %w", err))
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		exit(ctx, logg, fmt.Errorf("load config: %w", err))
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if err := runDB(ctx, cfg, logg, *cmd, *version); err != nil {
		exit(ctx, logg, err)
	}
}

// runDB applies a goose command to the embedded device storage migrations.
func runDB(ctx context.Context, cfg *config.Config, logg *logger.Logger, cmd, version string) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("%w: STOREFRONT_DB_DSN is required for %s", errUsage, cmd)
	}

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}

	logg.Info(ctx, "migrate ready")

	switch cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, client.Driver(), cmd)
	case "version":
		if version == "" {
			return fmt.Errorf("%w: missing -version for version command", errUsage)
		}
		return migrate.MigrateToVersion(ctx, sqlDB, client.Driver(), version)
	default:
		return fmt.Errorf("%w: unknown -cmd value %q", errUsage, cmd)
	}
}

func exit(ctx context.Context, logg *logger.Logger, err error) {
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	logg.Error(ctx, "migrate failed", err)
	os.Exit(1)
}
