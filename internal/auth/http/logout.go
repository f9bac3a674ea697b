package http

import (
	"net/http"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/internal/auth/service"
	"github.com/aussiebroadwan/petauth/pkg/authsdk"
	"github.com/aussiebroadwan/petauth/pkg/httpx"
)

// LogoutHandler serves POST /v1/auth/logout. It runs behind the
// authentication and revocation middlewares, so the caller's token is known
// to be valid and live.
type LogoutHandler struct {
	TokenService *service.TokenService
	Cookie       CookieConfig
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := httpx.PrincipalFromContext(ctx)

	kind, err := domain.ParsePrincipalKind(p.Kind)
	if err != nil {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	err = h.TokenService.Logout(ctx, service.LogoutRequest{
		Principal: domain.PrincipalRef{Kind: kind, ID: p.ID},
		TokenID:   p.TokenID,
		ExpiresAt: p.ExpiresAt,
	})
	if err != nil {
		writeServiceError(ctx, w, "logout", err)
		return
	}

	h.Cookie.clear(w)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
