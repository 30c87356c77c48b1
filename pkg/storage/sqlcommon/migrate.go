package sqlcommon

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/openfga/datagate/assets"
	"github.com/openfga/datagate/pkg/logger"
	"github.com/openfga/datagate/pkg/storage"
)

// Migrator runs the embedded goose migrations of one engine.
type Migrator struct {
	// Engine is the registry name, e.g. "sqlite".
	Engine string
	// Dialect is the goose dialect.
	Dialect string
	// Driver is the database/sql driver name.
	Driver string
	// Dir is the migrations directory within assets.EmbedMigrations.
	Dir string
	// PrepareURI rewrites the configured URI, e.g. to merge credentials.
	PrepareURI func(storage.MigrationConfig) (string, error)
}

var _ storage.MigrationProvider = (*Migrator)(nil)

func (m *Migrator) GetSupportedEngine() string {
	return m.Engine
}

func (m *Migrator) open(ctx context.Context, config storage.MigrationConfig) (*sql.DB, error) {
	uri := config.URI
	if m.PrepareURI != nil {
		var err error
		if uri, err = m.PrepareURI(config); err != nil {
			return nil, err
		}
	}

	db, err := goose.OpenDBWithDriver(m.Driver, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", m.Engine, err)
	}

	policy := backoff.NewExponentialBackOff()
	if config.Timeout > 0 {
		policy.MaxElapsedTime = config.Timeout
	}
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize %s connection: %w", m.Engine, err)
	}

	goose.SetBaseFS(assets.EmbedMigrations)
	return db, nil
}

// RunMigrations migrates to config.TargetVersion, or to the latest version when it
// is 0.
func (m *Migrator) RunMigrations(ctx context.Context, config storage.MigrationConfig) error {
	log := config.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	goose.SetLogger(goose.NopLogger())
	goose.SetVerbose(config.Verbose)

	if err := goose.SetDialect(m.Dialect); err != nil {
		return fmt.Errorf("failed to set %s dialect: %w", m.Engine, err)
	}

	db, err := m.open(ctx, config)
	if err != nil {
		return err
	}
	defer db.Close()

	currentVersion, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get %s db version: %w", m.Engine, err)
	}

	log.Info("current schema version", zap.String("engine", m.Engine), zap.Int64("version", currentVersion))

	if config.TargetVersion == 0 {
		log.Info("running all migrations", zap.String("engine", m.Engine))
		if err := goose.UpContext(ctx, db, m.Dir); err != nil {
			return fmt.Errorf("failed to run %s migrations: %w", m.Engine, err)
		}
		log.Info("migration done", zap.String("engine", m.Engine))
		return nil
	}

	target := int64(config.TargetVersion)
	log.Info("migrating", zap.String("engine", m.Engine), zap.Int64("target_version", target))

	switch {
	case target < currentVersion:
		if err := goose.DownToContext(ctx, db, m.Dir, target); err != nil {
			return fmt.Errorf("failed to run %s migrations down to %v: %w", m.Engine, target, err)
		}
	case target > currentVersion:
		if err := goose.UpToContext(ctx, db, m.Dir, target); err != nil {
			return fmt.Errorf("failed to run %s migrations up to %v: %w", m.Engine, target, err)
		}
	default:
		log.Info("nothing to do", zap.String("engine", m.Engine))
		return nil
	}

	log.Info("migration done", zap.String("engine", m.Engine))
	return nil
}

func (m *Migrator) GetCurrentVersion(ctx context.Context, config storage.MigrationConfig) (int64, error) {
	if err := goose.SetDialect(m.Dialect); err != nil {
		return 0, fmt.Errorf("failed to set %s dialect: %w", m.Engine, err)
	}

	db, err := m.open(ctx, config)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return goose.GetDBVersionContext(ctx, db)
}
