package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token lifetimes. Services override them through configuration.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims are the access-token claims understood by every service that
// verifies our tokens. Additive changes only.
type Claims struct {
	jwt.RegisteredClaims

	// Kind distinguishes the principal population the subject belongs to
	// ("admin" or "user"). Subject ids are only unique within a kind.
	Kind string `json:"kind,omitempty"`

	// Roles granted to the subject at issue time. Regular users carry none.
	Roles []string `json:"roles,omitempty"`
}

// AccessParams is everything NewAccessClaims needs besides the clock.
type AccessParams struct {
	Subject  string
	Kind     string
	Roles    []string
	Issuer   string
	Audience []string
	TTL      time.Duration
}

// NewAccessClaims builds claims with a fresh jti and iat/nbf pinned to now.
func NewAccessClaims(p AccessParams, now time.Time) Claims {
	now = now.UTC()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(p.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
			ID:        NewJTI(),
		},
		Kind:  p.Kind,
		Roles: slices.Clone(p.Roles),
	}
}

// NewJTI returns a random (v4) UUID for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks that at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}
