package httpx

import (
	"context"
	"slices"
	"time"

	"github.com/aussiebroadwan/petauth/pkg/jwtx"
)

type ctxKey struct{}

// Principal is the authenticated caller of the current request. The zero
// value is the anonymous caller.
type Principal struct {
	ID        string
	Kind      string
	Roles     []string
	TokenID   string
	ExpiresAt time.Time
}

// PrincipalFromClaims builds the request principal from verified claims.
func PrincipalFromClaims(c jwtx.Claims) Principal {
	return Principal{
		ID:        c.Subject,
		Kind:      c.Kind,
		Roles:     slices.Clone(c.Roles),
		TokenID:   c.ID,
		ExpiresAt: c.Expiry(),
	}
}

func (p Principal) IsAuthenticated() bool { return p.ID != "" }

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// HasAnyRole is false when roles is empty.
func (p Principal) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(roles, p.HasRole)
}

// HasAllRoles is true when roles is empty.
func (p Principal) HasAllRoles(roles ...string) bool {
	for _, r := range roles {
		if !p.HasRole(r) {
			return false
		}
	}
	return true
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext returns the caller, or the anonymous principal when
// the request never went through AuthnMiddleware.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(ctxKey{}).(Principal)
	return p
}
