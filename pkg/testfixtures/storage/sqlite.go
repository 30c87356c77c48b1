// Package storage provides migrated sqlite databases and seed helpers for tests.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"

	"github.com/openfga/datagate/pkg/logger"
	"github.com/openfga/datagate/pkg/storage"
	"github.com/openfga/datagate/pkg/storage/sqlcommon"
	"github.com/openfga/datagate/pkg/storage/sqlite"
)

// SqliteURI returns the connection uri of a new database file under t.TempDir.
func SqliteURI(t testing.TB) string {
	return fmt.Sprintf("file:%s", filepath.Join(t.TempDir(), "datagate.db"))
}

// MigrateSqlite applies every migration to the database at uri.
func MigrateSqlite(t testing.TB, uri string) {
	t.Helper()

	err := sqlite.NewMigrationProvider().RunMigrations(context.Background(), storage.MigrationConfig{
		Engine:  "sqlite",
		URI:     uri,
		Timeout: 5 * time.Second,
		Logger:  logger.NewNoopLogger(),
	})
	require.NoError(t, err)
}

// NewSqliteDatastore opens a freshly migrated sqlite datastore that is closed when
// the test ends.
func NewSqliteDatastore(t testing.TB, opts ...sqlcommon.DatastoreOption) *sqlcommon.Datastore {
	t.Helper()

	uri := SqliteURI(t)
	MigrateSqlite(t, uri)

	opts = append([]sqlcommon.DatastoreOption{sqlcommon.WithReadyTimeout(5 * time.Second)}, opts...)
	ds, err := sqlite.New(context.Background(), uri, sqlcommon.NewConfig(opts...))
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	return ds
}

// CollectionRow is one seeded collection.
type CollectionRow struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	GroupCode   string
	Inactive    bool
	CreatedAt   time.Time
}

// DatasetRow is one seeded dataset.
type DatasetRow struct {
	ID           string
	CollectionID string
	Name         string
	Format       string
	OwnerID      string
	GroupCode    string
	SizeBytes    int64
	CreatedAt    time.Time
}

var epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// InsertCollections seeds rows. A zero CreatedAt is set to a fixed instant offset by
// the row's position.
func InsertCollections(t testing.TB, ds *sqlcommon.Datastore, rows ...CollectionRow) {
	t.Helper()

	ib := sq.Insert("collection").
		Columns("id", "name", "description", "owner_id", "group_code", "is_active", "created_at")
	for i, r := range rows {
		created := r.CreatedAt
		if created.IsZero() {
			created = epoch.Add(time.Duration(i) * time.Hour)
		}
		ib = ib.Values(r.ID, r.Name, r.Description, r.OwnerID, r.GroupCode, !r.Inactive, created)
	}

	_, err := ib.RunWith(ds.DB()).Exec()
	require.NoError(t, err)
}

// InsertDatasets seeds rows. A zero CreatedAt is set to a fixed instant offset by the
// row's position.
func InsertDatasets(t testing.TB, ds *sqlcommon.Datastore, rows ...DatasetRow) {
	t.Helper()

	ib := sq.Insert("dataset").
		Columns("id", "collection_id", "name", "format", "owner_id", "group_code", "size_bytes", "created_at")
	for i, r := range rows {
		created := r.CreatedAt
		if created.IsZero() {
			created = epoch.Add(time.Duration(i) * time.Hour)
		}
		ib = ib.Values(r.ID, r.CollectionID, r.Name, r.Format, r.OwnerID, r.GroupCode, r.SizeBytes, created)
	}

	_, err := ib.RunWith(ds.DB()).Exec()
	require.NoError(t, err)
}
