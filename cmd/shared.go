package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/openfga/datagate/internal/config"
	"github.com/openfga/datagate/pkg/logger"
	"github.com/openfga/datagate/pkg/storage/mysql"
	"github.com/openfga/datagate/pkg/storage/postgres"
	"github.com/openfga/datagate/pkg/storage/sqlcommon"
	"github.com/openfga/datagate/pkg/storage/sqlite"
)

// DatastoreEngine type to define different engine types
type DatastoreEngine string

// Types of Datastore Engines
const (
	Sqlite   DatastoreEngine = "sqlite"
	Postgres DatastoreEngine = "postgres"
	MySQL    DatastoreEngine = "mysql"
)

func (e DatastoreEngine) String() string {
	return string(e)
}

func (e DatastoreEngine) IsValid() bool {
	return slices.Contains([]DatastoreEngine{Sqlite, Postgres, MySQL}, e)
}

// NewDatastoreEngine inits a new valid DatastoreEngine type
func NewDatastoreEngine(engine string) (DatastoreEngine, error) {
	dsEngine := DatastoreEngine(engine)
	if !dsEngine.IsValid() {
		return "", fmt.Errorf("invalid datastore engine '(%s)'", engine)
	}
	return dsEngine, nil
}

// openDatastore opens the configured relational datastore.
func openDatastore(ctx context.Context, cfg config.DatastoreConfig, l logger.Logger) (*sqlcommon.Datastore, error) {
	engine, err := NewDatastoreEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}

	opts := []sqlcommon.DatastoreOption{
		sqlcommon.WithUsername(cfg.Username),
		sqlcommon.WithPassword(cfg.Password),
		sqlcommon.WithLogger(l),
		sqlcommon.WithMaxOpenConns(cfg.MaxOpenConns),
		sqlcommon.WithMaxIdleConns(cfg.MaxIdleConns),
		sqlcommon.WithConnMaxIdleTime(cfg.ConnMaxIdleTime),
		sqlcommon.WithConnMaxLifetime(cfg.ConnMaxLifetime),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, sqlcommon.WithMetrics())
	}
	dsCfg := sqlcommon.NewConfig(opts...)

	switch engine {
	case Postgres:
		return postgres.New(ctx, cfg.URI, dsCfg)
	case MySQL:
		return mysql.New(ctx, cfg.URI, dsCfg)
	default:
		return sqlite.New(ctx, cfg.URI, dsCfg)
	}
}
