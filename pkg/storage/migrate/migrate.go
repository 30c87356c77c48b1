package migrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/openfga/datagate/pkg/storage"
	"github.com/openfga/datagate/pkg/storage/mysql"
	"github.com/openfga/datagate/pkg/storage/postgres"
	"github.com/openfga/datagate/pkg/storage/sqlite"
)

// MigrationConfig contains the configuration needed for running migrations.
type MigrationConfig = storage.MigrationConfig

var (
	defaultRegistry *storage.MigratorRegistry
	registryOnce    sync.Once
)

// GetDefaultRegistry returns the registry holding the postgres, mysql and sqlite
// providers.
func GetDefaultRegistry() *storage.MigratorRegistry {
	registryOnce.Do(func() {
		defaultRegistry = storage.NewMigratorRegistry(
			postgres.NewMigrationProvider(),
			mysql.NewMigrationProvider(),
			sqlite.NewMigrationProvider(),
		)
	})
	return defaultRegistry
}

// RegisterMigrationProvider adds or replaces a provider in the default registry.
func RegisterMigrationProvider(provider storage.MigrationProvider) {
	GetDefaultRegistry().RegisterProvider(provider)
}

// RunMigrationsWithRegistry runs migrations with the provider registered for cfg.Engine.
func RunMigrationsWithRegistry(ctx context.Context, registry *storage.MigratorRegistry, cfg MigrationConfig) error {
	provider, ok := registry.GetProvider(cfg.Engine)
	if !ok {
		return fmt.Errorf("no migration provider registered for engine: %s", cfg.Engine)
	}

	return provider.RunMigrations(ctx, cfg)
}

// RunMigrations runs the migrations for the given config using the default registry.
func RunMigrations(ctx context.Context, cfg MigrationConfig) error {
	return RunMigrationsWithRegistry(ctx, GetDefaultRegistry(), cfg)
}

// CurrentVersion reports the schema version of the configured datastore.
func CurrentVersion(ctx context.Context, cfg MigrationConfig) (int64, error) {
	provider, ok := GetDefaultRegistry().GetProvider(cfg.Engine)
	if !ok {
		return 0, fmt.Errorf("no migration provider registered for engine: %s", cfg.Engine)
	}

	return provider.GetCurrentVersion(ctx, cfg)
}
