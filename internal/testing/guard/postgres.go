package guard

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/estatehub/estatehub/internal/platform/db"
)

// Postgres starts a disposable PostgreSQL container, applies the schema and
// returns a pool that is closed when t finishes. It skips like RequireDocker.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	RequireDocker(t)
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("estatehub_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 5, ApplicationName: "estatehub-test"})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	// Migrations are idempotent.
	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}
