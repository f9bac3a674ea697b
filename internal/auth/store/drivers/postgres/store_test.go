package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/store"
	"github.com/aussiebroadwan/petauth/internal/auth/store/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgUser     = "petauth"
	pgPassword = "petauth"
	pgDatabase = "petauth"
)

// startPostgres runs a throwaway postgres container and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, host, port.Port(), pgDatabase)
}

func TestStore(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	st, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	require.NoError(t, st.ApplyMigrations(), "migrations must be idempotent")

	// One container for the whole suite; every case starts from empty tables.
	storetest.Run(t, func(t *testing.T) store.Store {
		_, err := st.db.ExecContext(ctx, `TRUNCATE token_blacklist, refresh_states`)
		require.NoError(t, err)
		return st
	})
}
