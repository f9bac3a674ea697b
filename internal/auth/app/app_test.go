package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/petauth/internal/auth/directory"
	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/pkg/authsdk"
	"github.com/aussiebroadwan/petauth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func directoryEntry(kind, id string, roles ...string) directory.Entry {
	return directory.Entry{Kind: kind, ID: id, Roles: roles}
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	cfg.StoreDriver = DriverMemory
	cfg.Principals = []directory.Entry{
		directoryEntry("admin", "root", "superadmin"),
		directoryEntry("user", "alice"),
	}
	return cfg
}

func newTestApp(t *testing.T, cfg Config) *Application {
	t.Helper()
	app, err := newWithLogger(cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.AccessTTL = 0

	_, err := newWithLogger(cfg, discardLogger())
	require.ErrorContains(t, err, "AUTH_ACCESS_TTL")
}

func TestIssuedTokenWorksAgainstHandler(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	ctx := context.Background()

	pair, err := app.Issue(ctx, domain.PrincipalRef{Kind: domain.KindAdministrator, ID: "root"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var me authsdk.MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, "root", me.Subject)
	require.Equal(t, []string{"superadmin"}, me.Roles)
}

func TestIssueUnknownPrincipal(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	_, err := app.Issue(context.Background(), domain.PrincipalRef{Kind: domain.KindRegularUser, ID: "mallory"})
	require.ErrorIs(t, err, domain.ErrPrincipalNotFound)
}

func TestLoginRouteNotMounted(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSweep(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	res, err := app.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.Blacklist)
	require.Zero(t, res.RefreshStates)
}

func TestSQLiteDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = DriverSQLite
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "auth.db")

	app := newTestApp(t, cfg)
	_, err := app.Issue(context.Background(), domain.PrincipalRef{Kind: domain.KindRegularUser, ID: "alice"})
	require.NoError(t, err)

	_, err = os.Stat(cfg.DatabaseFile)
	require.NoError(t, err)
}

func TestSigningKeyFileSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "master.key")
	require.NoError(t, os.WriteFile(master, []byte("correct horse battery staple\n"), 0o600))

	cfg := testConfig(t)
	cfg.SigningKeyFile = filepath.Join(dir, "signing.key")
	cfg.MasterKeyPath = master
	require.NoError(t, WriteSigningKey(cfg.SigningKeyFile, cryptox.AlgES256, master))

	first := newTestApp(t, cfg)
	pair, err := first.Issue(context.Background(), domain.PrincipalRef{Kind: domain.KindRegularUser, ID: "alice"})
	require.NoError(t, err)

	second := newTestApp(t, cfg)
	claims, err := second.verifier.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)
}
