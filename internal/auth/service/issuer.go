package service

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/pkg/cryptox"
	"github.com/aussiebroadwan/petauth/pkg/jwtx"
)

// Issuer mints access and refresh tokens. It never touches storage.
type Issuer struct {
	Signer    jwtx.Signer
	Issuer    string
	Audience  []string
	AccessTTL time.Duration
}

// IssueAccessToken signs a token for p valid from now for AccessTTL.
func (i *Issuer) IssueAccessToken(p domain.Principal, now time.Time) (string, jwtx.Claims, error) {
	ttl := i.AccessTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}

	claims := jwtx.NewAccessClaims(jwtx.AccessParams{
		Subject:  p.PrincipalID(),
		Kind:     string(p.PrincipalKind()),
		Roles:    p.PrincipalRoles(),
		Issuer:   i.Issuer,
		Audience: i.Audience,
		TTL:      ttl,
	}, now)

	token, err := i.Signer.Sign(claims)
	if err != nil {
		return "", jwtx.Claims{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims, nil
}

// IssueRefreshToken returns a fresh opaque 256-bit refresh token.
func (i *Issuer) IssueRefreshToken() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize256)
}
