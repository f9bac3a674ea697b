package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/petauth/internal/auth/store"
	"github.com/aussiebroadwan/petauth/internal/auth/store/storetest"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dsn string) *Store {
	t.Helper()

	st, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t, ":memory:")
	})
}

func TestStoreOnDisk(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		dsn := "file:" + filepath.Join(t.TempDir(), "auth.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		return newTestStore(t, dsn)
	})
}

func TestApplyMigrationsIsRepeatable(t *testing.T) {
	st := newTestStore(t, ":memory:")
	require.NoError(t, st.ApplyMigrations())
	require.NoError(t, st.Ping(context.Background()))
}

func TestPrincipalKindIsConstrained(t *testing.T) {
	st := newTestStore(t, ":memory:")

	_, err := st.db.ExecContext(context.Background(),
		`INSERT INTO token_blacklist (token_id, principal_id, principal_kind, blacklisted_at, expires_at)
		 VALUES ('j', '1', 'robot', 0, 0)`)
	require.Error(t, err)
}
