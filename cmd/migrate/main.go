package main

// Apply catalog migrations:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"docuchat-backend/internal/shared/config"
	"docuchat-backend/internal/shared/storage/db"
	"docuchat-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Configure("docuchat-migrate", cfg.LogLevel)
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err})
		os.Exit(1)
	}
	telemetry.Info("migrate.completed", nil)
}
