package authsdk

import (
	"context"
	"net/http"
)

// LoginGrant authenticates and returns the raw token pair.
func (c *SDKClient) LoginGrant(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	return c.requestToken(ctx, "/v1/auth/login", req)
}

// RefreshGrant exchanges a refresh token for a new pair. The presented token
// is consumed even if the response is lost; on any failure the caller has to
// log in again.
func (c *SDKClient) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.requestToken(ctx, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken})
}

func (c *SDKClient) requestToken(ctx context.Context, path string, payload any) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokenResp, nil
}
