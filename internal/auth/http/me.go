package http

import (
	"net/http"
	"slices"

	"github.com/aussiebroadwan/petauth/pkg/authsdk"
	"github.com/aussiebroadwan/petauth/pkg/httpx"
)

// MeHandler serves GET /v1/auth/me with the caller's identity.
func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := httpx.PrincipalFromContext(r.Context())
		if !p.IsAuthenticated() {
			authsdk.ErrInvalidToken.WriteError(w)
			return
		}

		roles := slices.Clone(p.Roles)
		if roles == nil {
			roles = []string{}
		}

		httpx.WriteJSON(w, http.StatusOK, authsdk.MeResponse{
			Subject:   p.ID,
			Kind:      p.Kind,
			Roles:     roles,
			TokenID:   p.TokenID,
			ExpiresAt: p.ExpiresAt,
		})
	}
}
