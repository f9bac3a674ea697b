package authsdk

import (
	"time"

	"github.com/aussiebroadwan/petauth/pkg/jwtx"
)

// ErrorResponse is the wire form of OAuth2Error.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Token Types
// ============================================================================

// LoginRequest is the body of POST /v1/auth/login. Kind selects the
// principal population ("admin" or "user").
type LoginRequest struct {
	Kind     string `json:"kind"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /v1/auth/refresh for clients that do
// not use the refresh cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque, single use refresh token
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// MeResponse describes the caller of GET /v1/auth/me.
type MeResponse struct {
	Subject   string    `json:"sub"`
	Kind      string    `json:"kind"`
	Roles     []string  `json:"roles"`
	TokenID   string    `json:"jti"`
	ExpiresAt time.Time `json:"exp"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz (readyz adds Checks).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of each dependency readiness relies on.
type HealthChecks struct {
	// Store is the revocation store connection status
	Store string `json:"store"`

	// Signer indicates the JWT signing capability status
	Signer string `json:"signer"`
}

// JWKSResponse is the key set published at /.well-known/jwks.json.
type JWKSResponse jwtx.JWKS
