package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/petauth/pkg/cryptox"
	"github.com/aussiebroadwan/petauth/pkg/jwtx"
)

// ErrNoSigningKeyFile is returned when tokens are minted outside the server
// with no key file. An ephemeral key would sign tokens no server accepts.
var ErrNoSigningKeyFile = errors.New("AUTH_SIGNING_KEY_FILE (--key-file) is required to issue tokens outside the server")

// RequireSigningKeyFile fails unless c names a persistent signing key.
func (c Config) RequireSigningKeyFile() error {
	if c.SigningKeyFile == "" {
		return ErrNoSigningKeyFile
	}
	return nil
}

// LoadSigner returns the signer for access tokens.
//
// Key sources:
//   - AUTH_SIGNING_KEY_FILE set: the PEM key is read from disk. With
//     AUTH_MASTER_KEY_PATH also set, the file holds the key sealed by the
//     master key and is opened first.
//   - otherwise: a key is generated on startup and lives only in memory.
//     Every token issued before a restart stops verifying.
//
// The kid is derived from the public key, so a key file keeps its kid across
// restarts.
func LoadSigner(cfg Config, logger *slog.Logger) (jwtx.Signer, error) {
	if cfg.SigningKeyFile == "" {
		pemKey, err := cryptox.GenerateSigningKey(cfg.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral signing key: %w", err)
		}

		signer, err := jwtx.NewSigner("", pemKey)
		if err != nil {
			return nil, err
		}

		logger.Warn("using ephemeral signing key; tokens will not survive a restart",
			"algorithm", signer.Alg(),
			"kid", signer.KID(),
		)
		return signer, nil
	}

	data, err := os.ReadFile(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	if cfg.MasterKeyPath != "" {
		enc, err := cryptox.LoadKeyEncrypter(cfg.MasterKeyPath)
		if err != nil {
			return nil, err
		}
		if data, err = enc.Open(data); err != nil {
			return nil, fmt.Errorf("open signing key %s: %w", cfg.SigningKeyFile, err)
		}
	}

	signer, err := jwtx.NewSigner("", data)
	if err != nil {
		return nil, err
	}

	logger.Info("signing key loaded",
		"path", cfg.SigningKeyFile,
		"algorithm", signer.Alg(),
		"kid", signer.KID(),
		"sealed", cfg.MasterKeyPath != "",
	)
	return signer, nil
}

// WriteSigningKey generates a key for alg and writes it to path with owner
// only permissions. A non-empty masterKeyPath seals the key before writing.
// Existing files are never overwritten.
func WriteSigningKey(path, alg, masterKeyPath string) error {
	pemKey, err := cryptox.GenerateSigningKey(alg)
	if err != nil {
		return err
	}

	out := pemKey
	if masterKeyPath != "" {
		enc, err := cryptox.LoadKeyEncrypter(masterKeyPath)
		if err != nil {
			return err
		}
		if out, err = enc.Seal(pemKey); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	if _, err := f.Write(out); err != nil {
		_ = f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	return f.Close()
}
