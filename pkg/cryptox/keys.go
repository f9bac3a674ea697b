package cryptox

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// Supported signing algorithms for GenerateSigningKey.
const (
	AlgRS256 = "RS256"
	AlgES256 = "ES256"
)

// MinRSABits is the smallest RSA modulus we are willing to sign with.
const MinRSABits = 2048

var ErrUnsupportedAlg = errors.New("cryptox: unsupported signing algorithm")

// GenerateSigningKey creates a fresh private key for alg and returns it as a
// PKCS8 "PRIVATE KEY" PEM block. RS256 keys are MinRSABits long.
func GenerateSigningKey(alg string) ([]byte, error) {
	var (
		priv any
		err  error
	)

	switch alg {
	case AlgRS256:
		priv, err = rsa.GenerateKey(rand.Reader, MinRSABits)
	case AlgES256:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("cryptox: generate %s key: %w", alg, err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("cryptox: marshal PKCS8: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes an RSA or ECDSA private key. Both PKCS1
// ("RSA PRIVATE KEY"), SEC1 ("EC PRIVATE KEY") and PKCS8 ("PRIVATE KEY")
// blocks are accepted since openssl hands out all three depending on flags.
func ParsePrivateKeyPEM(data []byte) (any, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("cryptox: invalid PEM private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse PKCS1: %w", err)
		}
		return key, nil

	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse SEC1: %w", err)
		}
		return key, nil

	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse PKCS8: %w", err)
		}
		switch key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey:
			return key, nil
		default:
			return nil, fmt.Errorf("cryptox: unsupported PKCS8 key type %T", key)
		}

	default:
		return nil, fmt.Errorf("cryptox: unsupported PEM type %q", block.Type)
	}
}
