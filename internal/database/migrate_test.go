package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPgx5URL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pgx5://u:p@db:5432/app", pgx5URL("postgres://u:p@db:5432/app"))
	require.Equal(t, "pgx5://db/app", pgx5URL("postgresql://db/app"))
	require.Equal(t, "pgx5://db/app", pgx5URL("pgx5://db/app"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFiles, "migrations/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}
