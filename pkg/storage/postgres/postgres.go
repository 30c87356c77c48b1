package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.

	"github.com/openfga/datagate/assets"
	"github.com/openfga/datagate/pkg/storage"
	"github.com/openfga/datagate/pkg/storage/sqlcommon"
)

const engine = "postgres"

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// PrepareURI merges an explicit username and password into uri.
func PrepareURI(uri, username, password string) (string, error) {
	if username == "" && password == "" {
		return uri, nil
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse postgres connection uri: %w", err)
	}

	user := username
	if user == "" && parsed.User != nil {
		user = parsed.User.Username()
	}

	switch {
	case password != "":
		parsed.User = url.UserPassword(user, password)
	case parsed.User != nil:
		if existing, ok := parsed.User.Password(); ok {
			parsed.User = url.UserPassword(user, existing)
		} else {
			parsed.User = url.User(user)
		}
	default:
		parsed.User = url.User(user)
	}

	return parsed.String(), nil
}

// New opens a PostgreSQL datastore through the pgx stdlib driver.
func New(ctx context.Context, uri string, cfg *sqlcommon.Config) (*sqlcommon.Datastore, error) {
	uri, err := PrepareURI(uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres connection: %w", err)
	}
	sqlcommon.ConfigurePool(db, cfg)

	if err := sqlcommon.WaitForDB(ctx, db, engine, cfg.Logger, cfg.ReadyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	ds, err := sqlcommon.NewDatastore(db, sq.StatementBuilder.PlaceholderFormat(sq.Dollar), HandleSQLError, engine, cfg)
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

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}

// NewMigrationProvider returns the goose migration provider for PostgreSQL.
func NewMigrationProvider() *sqlcommon.Migrator {
	return &sqlcommon.Migrator{
		Engine:  engine,
		Dialect: "postgres",
		Driver:  "pgx",
		Dir:     assets.PostgresMigrationDir,
		PrepareURI: func(config storage.MigrationConfig) (string, error) {
			return PrepareURI(config.URI, config.Username, config.Password)
		},
	}
}
