package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/openfga/datagate/assets"
	"github.com/openfga/datagate/pkg/storage"
	"github.com/openfga/datagate/pkg/storage/sqlcommon"
)

const engine = "sqlite"

// PrepareDSN prepares a raw DSN for use with SQLite, specifying defaults for journal
// mode, busy timeout and time encoding.
func PrepareDSN(uri string) (string, error) {
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}

		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}

	if !query.Has("_time_format") {
		query.Set("_time_format", "sqlite")
	}

	uri += "?" + query.Encode()

	return uri, nil
}

// New opens a SQLite datastore.
func New(ctx context.Context, uri string, cfg *sqlcommon.Config) (*sqlcommon.Datastore, error) {
	uri, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
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

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT {
			return storage.ErrCollision
		}
	}

	return fmt.Errorf("sql error: %w", err)
}

// NewMigrationProvider returns the goose migration provider for SQLite.
func NewMigrationProvider() *sqlcommon.Migrator {
	return &sqlcommon.Migrator{
		Engine:  engine,
		Dialect: "sqlite",
		Driver:  "sqlite",
		Dir:     assets.SqliteMigrationDir,
		PrepareURI: func(config storage.MigrationConfig) (string, error) {
			return PrepareDSN(config.URI)
		},
	}
}
