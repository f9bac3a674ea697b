package jwtx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/petauth/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
}

// keySigner signs with an asymmetric private key. The private half never
// leaves this struct; only PublicJWK is handed to verifiers.
type keySigner struct {
	kid    string
	method jwt.SigningMethod
	key    any
	jwk    JWK
}

// NewSigner loads a PEM private key and picks the algorithm from the key
// type: RSA keys sign RS256, P-256 keys sign ES256. An empty kid is replaced
// by a fingerprint of the public key so restarts keep the same kid.
func NewSigner(kid string, pemKey []byte) (Signer, error) {
	priv, err := cryptox.ParsePrivateKeyPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: %w", err)
	}

	var (
		method jwt.SigningMethod
		pub    any
	)

	switch k := priv.(type) {
	case *rsa.PrivateKey:
		if k.N.BitLen() < cryptox.MinRSABits {
			return nil, fmt.Errorf("jwtx: RSA key too small (%d bits)", k.N.BitLen())
		}
		method, pub = jwt.SigningMethodRS256, &k.PublicKey
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return nil, errors.New("jwtx: ECDSA key must use P-256")
		}
		method, pub = jwt.SigningMethodES256, &k.PublicKey
	default:
		return nil, fmt.Errorf("jwtx: unsupported private key %T", priv)
	}

	if kid == "" {
		if kid, err = KeyID(pub); err != nil {
			return nil, err
		}
	}

	jwk, err := NewJWK(kid, method.Alg(), pub)
	if err != nil {
		return nil, err
	}

	return &keySigner{kid: kid, method: method, key: priv, jwk: jwk}, nil
}

func (s *keySigner) Alg() string    { return s.method.Alg() }
func (s *keySigner) KID() string    { return s.kid }
func (s *keySigner) PublicJWK() JWK { return s.jwk }

// Sign serialises claims into a compact JWS carrying our kid.
func (s *keySigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// KeyID derives a short stable identifier from a public key.
func KeyID(pub any) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("jwtx: marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:12]), nil
}
