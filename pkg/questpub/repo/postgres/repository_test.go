package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/questlore/questpub/pkg/questpub"
	"github.com/questlore/questpub/pkg/questpub/repo/postgres"
	"github.com/questlore/questpub/pkg/questpub/repo/repotest"
)

// Set QUESTPUB_TEST_DATABASE_URL to a disposable database to run these.
func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("QUESTPUB_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("QUESTPUB_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))

	repotest.Run(t, func(t *testing.T) questpub.Repository {
		repo := postgres.NewWithPool(pool)
		require.NoError(t, repo.EnsureSchema(ctx))
		_, err := pool.Exec(ctx, "DELETE FROM quests")
		require.NoError(t, err)
		return repo
	})
}
