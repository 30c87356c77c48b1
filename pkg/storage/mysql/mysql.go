package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"

	"github.com/openfga/datagate/assets"
	"github.com/openfga/datagate/pkg/storage"
	"github.com/openfga/datagate/pkg/storage/sqlcommon"
)

const engine = "mysql"

// duplicateEntry is the MySQL error number for a duplicate key.
const duplicateEntry = 1062

// PrepareDSN merges an explicit username and password into dsn and enables time
// parsing.
func PrepareDSN(dsn, username, password string) (string, error) {
	dsnCfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql connection dsn: %w", err)
	}

	if username != "" {
		dsnCfg.User = username
	}
	if password != "" {
		dsnCfg.Passwd = password
	}
	dsnCfg.ParseTime = true

	return dsnCfg.FormatDSN(), nil
}

// New opens a MySQL datastore.
func New(ctx context.Context, uri string, cfg *sqlcommon.Config) (*sqlcommon.Datastore, error) {
	uri, err := PrepareDSN(uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}
	sqlcommon.ConfigurePool(db, cfg)

	if err := sqlcommon.WaitForDB(ctx, db, engine, cfg.Logger, cfg.ReadyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	ds, err := sqlcommon.NewDatastore(db, sq.StatementBuilder, HandleSQLError, engine, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return ds, nil
}

// HandleSQLError processes an SQL error and converts it into a
// more appropriate error type based on the nature of the error.
func HandleSQLError(err error, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	if errors.Is(err, context.Canceled) {
		return storage.ErrCancelled
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == duplicateEntry {
		return storage.ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}

// NewMigrationProvider returns the goose migration provider for MySQL.
func NewMigrationProvider() *sqlcommon.Migrator {
	return &sqlcommon.Migrator{
		Engine:  engine,
		Dialect: "mysql",
		Driver:  "mysql",
		Dir:     assets.MySQLMigrationDir,
		PrepareURI: func(config storage.MigrationConfig) (string, error) {
			return PrepareDSN(config.URI, config.Username, config.Password)
		},
	}
}
