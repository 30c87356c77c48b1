// Package sqlcommon contains the relational query source shared by every SQL engine.
package sqlcommon

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/openfga/datagate/pkg/logger"
	"github.com/openfga/datagate/pkg/telemetry"
)

var tracer = otel.Tracer("datagate/pkg/storage/sqlcommon")

// ErrorHandler maps driver errors into the storage error taxonomy.
type ErrorHandler func(error, ...interface{}) error

// Datastore is an open relational database together with the statement builder and
// error mapping of its engine.
type Datastore struct {
	db               *sql.DB
	stbl             sq.StatementBuilderType
	handleSQLError   ErrorHandler
	engine           string
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
}

// NewDatastore wraps db. The statement builder must already carry the engine's
// placeholder format.
func NewDatastore(db *sql.DB, stbl sq.StatementBuilderType, errorHandler ErrorHandler, engine string, cfg *Config) (*Datastore, error) {
	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, telemetry.Namespace)
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	return &Datastore{
		db:               db,
		stbl:             stbl.RunWith(db),
		handleSQLError:   errorHandler,
		engine:           engine,
		logger:           cfg.Logger,
		dbStatsCollector: collector,
	}, nil
}

// ConfigurePool applies the connection pool settings of cfg.
func ConfigurePool(db *sql.DB, cfg *Config) {
	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// WaitForDB pings db with exponential backoff until it answers or maxElapsed passes.
func WaitForDB(ctx context.Context, db *sql.DB, engine string, l logger.Logger, maxElapsed time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed
	attempt := 1
	err := backoff.Retry(func() error {
		err := db.PingContext(ctx)
		if err != nil {
			l.Info("waiting for database", zap.String("engine", engine), zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

// Engine returns the engine name, e.g. "postgres".
func (d *Datastore) Engine() string {
	return d.engine
}

// DB returns the underlying connection pool.
func (d *Datastore) DB() *sql.DB {
	return d.db
}

// IsReady reports whether the database answers.
func (d *Datastore) IsReady(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return d.handleSQLError(err)
	}
	return nil
}

func (d *Datastore) Close() {
	if d.dbStatsCollector != nil {
		prometheus.Unregister(d.dbStatsCollector)
	}
	d.db.Close()
}
