package cryptox_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/aussiebroadwan/petauth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestGenerateSigningKey(t *testing.T) {
	t.Run("RS256", func(t *testing.T) {
		pemKey, err := cryptox.GenerateSigningKey(cryptox.AlgRS256)
		require.NoError(t, err)

		key, err := cryptox.ParsePrivateKeyPEM(pemKey)
		require.NoError(t, err)

		rk, ok := key.(*rsa.PrivateKey)
		require.True(t, ok)
		require.Equal(t, cryptox.MinRSABits, rk.N.BitLen())
	})

	t.Run("ES256", func(t *testing.T) {
		pemKey, err := cryptox.GenerateSigningKey(cryptox.AlgES256)
		require.NoError(t, err)

		key, err := cryptox.ParsePrivateKeyPEM(pemKey)
		require.NoError(t, err)

		ek, ok := key.(*ecdsa.PrivateKey)
		require.True(t, ok)
		require.Equal(t, elliptic.P256(), ek.Curve)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := cryptox.GenerateSigningKey("HS256")
		require.ErrorIs(t, err, cryptox.ErrUnsupportedAlg)
	})
}

func TestParsePrivateKeyPEMLegacyBlocks(t *testing.T) {
	rk, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rk)})

	key, err := cryptox.ParsePrivateKeyPEM(pkcs1)
	require.NoError(t, err)
	require.IsType(t, &rsa.PrivateKey{}, key)

	ek, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(ek)
	require.NoError(t, err)
	sec1 := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	key, err = cryptox.ParsePrivateKeyPEM(sec1)
	require.NoError(t, err)
	require.IsType(t, &ecdsa.PrivateKey{}, key)
}

func TestParsePrivateKeyPEMRejectsGarbage(t *testing.T) {
	_, err := cryptox.ParsePrivateKeyPEM([]byte("not a pem"))
	require.Error(t, err)

	_, err = cryptox.ParsePrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}}))
	require.Error(t, err)
}
