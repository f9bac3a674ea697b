package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/internal/auth/service"
	"github.com/aussiebroadwan/petauth/pkg/authsdk"
	"github.com/aussiebroadwan/petauth/pkg/httpx"
	"github.com/aussiebroadwan/petauth/pkg/slogx"
)

// maxBodyBytes caps login and refresh bodies.
const maxBodyBytes = 16 << 10

// Authenticator checks credentials and returns the matching principal. It
// is the identity service's side of login; any error means "rejected".
type Authenticator interface {
	Authenticate(ctx context.Context, req authsdk.LoginRequest) (domain.Principal, error)
}

// LoginHandler serves POST /v1/auth/login.
type LoginHandler struct {
	Authenticator Authenticator
	TokenService  *service.TokenService
	Cookie        CookieConfig
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.LoginRequest
	if err := decodeBody(r, &req); err != nil || req.Username == "" || req.Kind == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	p, err := h.Authenticator.Authenticate(ctx, req)
	if err != nil {
		slogx.Security(ctx).Warn("login rejected", "kind", req.Kind, "err", err)
		authsdk.ErrInvalidCredentials.WriteError(w)
		return
	}

	pair, err := h.TokenService.Login(ctx, p)
	if err != nil {
		writeServiceError(ctx, w, "login", err)
		return
	}

	writeTokenPair(w, h.Cookie, pair)
}

// RefreshHandler serves POST /v1/auth/refresh. The refresh token comes from
// the cookie when present and from the JSON body otherwise.
type RefreshHandler struct {
	TokenService *service.TokenService
	Cookie       CookieConfig
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	presented, err := refreshTokenFrom(r)
	if err != nil || presented == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.Refresh(ctx, presented)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			h.Cookie.clear(w)
		}
		writeServiceError(ctx, w, "refresh", err)
		return
	}

	writeTokenPair(w, h.Cookie, pair)
}

func refreshTokenFrom(r *http.Request) (string, error) {
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	var req authsdk.RefreshRequest
	if err := decodeBody(r, &req); err != nil {
		return "", err
	}
	return strings.TrimSpace(req.RefreshToken), nil
}

// decodeBody reads a JSON body. An empty body decodes to the zero value.
func decodeBody(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errors.New("content-type must be application/json")
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeTokenPair(w http.ResponseWriter, cookie CookieConfig, pair *domain.TokenPair) {
	cookie.set(w, pair.RefreshToken, pair.RefreshExpiresAt)

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int(time.Until(pair.AccessExpiresAt).Seconds()),
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRefresh):
		authsdk.ErrInvalidGrant.WriteError(w)
	case errors.Is(err, service.ErrInactivePrincipal):
		authsdk.ErrAccessDenied.WriteError(w)
	case errors.Is(err, service.ErrMissingTokenID):
		authsdk.ErrInvalidToken.WriteError(w)
	default:
		slogx.FromContext(ctx).Error(op+" failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
