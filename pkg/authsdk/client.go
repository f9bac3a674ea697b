package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the auth service. It covers the unauthenticated
// endpoints and creates Sessions for everything else.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login authenticates against the service and returns a session.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	tokenResp, err := c.LoginGrant(ctx, req)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokenResp), nil
}

// AuthenticateWithRefreshToken exchanges a stored refresh token for a new
// session. The presented token is consumed.
func (c *SDKClient) AuthenticateWithRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	tokenResp, err := c.RefreshGrant(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokenResp), nil
}

// NewSessionFromTokens wraps tokens obtained elsewhere. The session still
// refreshes once the access token expires.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int) *Session {
	return &Session{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    refreshDeadline(expiresIn),
	}
}
