package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestValidateMigrations_EmbeddedSet(t *testing.T) {
	t.Parallel()

	require.NoError(t, validateMigrations(migrationsFS))
}

func TestValidateMigrations_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE test_a (id INT);")},
		"migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_a;")},
		"migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE test_b (id INT);")},
		"migrations/0002_more.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_b;")},
	}

	require.NoError(t, validateMigrations(fsys))
}

func TestValidateMigrations_MissingDown(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/0001_init.up.sql": {Data: []byte("CREATE TABLE test_a (id INT);")},
	}

	err := validateMigrations(fsys)
	require.Error(t, err)
	require.Contains(t, err.Error(), "both up and down")
}

func TestValidateMigrations_InvalidFilename(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")},
	}

	require.Error(t, validateMigrations(fsys))
}

func TestValidateMigrations_EmptyFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/0001_init.up.sql":   {Data: []byte("   \n")},
		"migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS test;")},
	}

	require.Error(t, validateMigrations(fsys))
}

func TestValidateMigrations_NameMismatch(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/0001_init.up.sql":    {Data: []byte("CREATE TABLE a (id INT);")},
		"migrations/0001_other.down.sql": {Data: []byte("DROP TABLE a;")},
	}

	require.ErrorContains(t, validateMigrations(fsys), "name mismatch")
}

func TestMigrationDatabaseURL(t *testing.T) {
	t.Parallel()

	url, err := migrationDatabaseURL("postgres://u:p@localhost:5432/db?sslmode=disable")
	require.NoError(t, err)
	require.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", url)

	url, err = migrationDatabaseURL("postgresql://localhost/db")
	require.NoError(t, err)
	require.Equal(t, "pgx5://localhost/db", url)

	_, err = migrationDatabaseURL("host=localhost user=secret password=secret")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "password=secret")
}
