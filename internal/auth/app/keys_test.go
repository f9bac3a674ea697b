package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/petauth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestLoadSignerEphemeral(t *testing.T) {
	cfg := testConfig(t)
	cfg.Algorithm = cryptox.AlgRS256

	signer, err := LoadSigner(cfg, discardLogger())
	require.NoError(t, err)
	require.Equal(t, "RS256", signer.Alg())
	require.NotEmpty(t, signer.KID())
}

func TestLoadSignerPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, WriteSigningKey(path, cryptox.AlgES256, ""))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg := testConfig(t)
	cfg.SigningKeyFile = path

	a, err := LoadSigner(cfg, discardLogger())
	require.NoError(t, err)
	b, err := LoadSigner(cfg, discardLogger())
	require.NoError(t, err)
	require.Equal(t, "ES256", a.Alg())
	require.Equal(t, a.KID(), b.KID(), "the kid is stable for a key file")
}

func TestLoadSignerSealedFile(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "master.key")
	other := filepath.Join(dir, "other.key")
	require.NoError(t, os.WriteFile(master, []byte("master-material"), 0o600))
	require.NoError(t, os.WriteFile(other, []byte("different-material"), 0o600))

	path := filepath.Join(dir, "signing.sealed")
	require.NoError(t, WriteSigningKey(path, cryptox.AlgES256, master))

	cfg := testConfig(t)
	cfg.SigningKeyFile = path

	_, err := LoadSigner(cfg, discardLogger())
	require.Error(t, err, "a sealed key is not PEM")

	cfg.MasterKeyPath = other
	_, err = LoadSigner(cfg, discardLogger())
	require.Error(t, err, "the wrong master key cannot open it")

	cfg.MasterKeyPath = master
	_, err = LoadSigner(cfg, discardLogger())
	require.NoError(t, err)
}

func TestWriteSigningKeyRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o600))

	require.Error(t, WriteSigningKey(path, cryptox.AlgES256, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "keep me", string(data))
}

func TestRequireSigningKeyFile(t *testing.T) {
	cfg := testConfig(t)
	require.ErrorIs(t, cfg.RequireSigningKeyFile(), ErrNoSigningKeyFile)

	cfg.SigningKeyFile = filepath.Join(t.TempDir(), "signing.key")
	require.NoError(t, cfg.RequireSigningKeyFile())
}
