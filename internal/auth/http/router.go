package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/service"
	"github.com/aussiebroadwan/petauth/internal/auth/store"
	"github.com/aussiebroadwan/petauth/pkg/httpx"
	"github.com/aussiebroadwan/petauth/pkg/jwtx"
	"github.com/aussiebroadwan/petauth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	TokenService *service.TokenService

	// Authenticator enables POST /v1/auth/login. Without one, tokens are
	// only minted out of band (see the "issue" command).
	Authenticator Authenticator

	FailurePolicy httpx.FailurePolicy
	Cookie        CookieConfig
	RateLimit     httpx.RateLimitConfig
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		RateLimit:    httpx.StrictLimit,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// Authenticated wraps h with token verification and the revocation gate.
// Business handlers mounted elsewhere use the same chain.
func (r *Router) Authenticated(h http.Handler) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RevocationMiddleware(r.store.Blacklist(), r.FailurePolicy),
	)
}

func (r *Router) registerAuth() {
	limited := httpx.RateLimitByIP(r.RateLimit)

	if r.Authenticator != nil {
		r.Mux.Handle("POST /v1/auth/login",
			httpx.Chain(&LoginHandler{
				Authenticator: r.Authenticator,
				TokenService:  r.TokenService,
				Cookie:        r.Cookie,
			}, limited),
		)
	}

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(&RefreshHandler{TokenService: r.TokenService, Cookie: r.Cookie}, limited),
	)

	r.Mux.Handle("POST /v1/auth/logout",
		r.Authenticated(&LogoutHandler{TokenService: r.TokenService, Cookie: r.Cookie}),
	)

	r.Mux.Handle("GET /v1/auth/me", r.Authenticated(MeHandler()))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /.well-known/jwks.json", JWKSHandler(r.keys))
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys))
}
