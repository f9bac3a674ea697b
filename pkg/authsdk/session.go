package authsdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// expiryBuffer refreshes a little before the access token actually expires.
const expiryBuffer = 30 * time.Second

// Session represents an authenticated session with automatic token refresh.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func newSession(client *SDKClient, tokenResp *TokenResponse) *Session {
	return &Session{
		client:       client,
		accessToken:  tokenResp.AccessToken,
		refreshToken: tokenResp.RefreshToken,
		expiresAt:    refreshDeadline(tokenResp.ExpiresIn),
	}
}

func refreshDeadline(expiresIn int) time.Time {
	return time.Now().Add(time.Duration(expiresIn)*time.Second - expiryBuffer)
}

// getValidToken returns a valid access token, refreshing it if expired.
// Refreshes are serialised: the server accepts each refresh token once, so
// two concurrent refreshes from one session would end it.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	if s.refreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token available")
	}

	tokenResp, err := s.client.RefreshGrant(ctx, s.refreshToken)
	if err != nil {
		// Only a rejection spends the refresh token. After a transport
		// failure or server error it may still be good, so keep it for the
		// next attempt.
		if errors.Is(err, ErrInvalidGrant) {
			s.refreshToken = ""
		}
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	s.accessToken = tokenResp.AccessToken
	s.refreshToken = tokenResp.RefreshToken
	s.expiresAt = refreshDeadline(tokenResp.ExpiresIn)

	return s.accessToken, nil
}

// Refresh rotates the session's tokens now, regardless of expiry.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	_, err := s.getValidToken(ctx)
	return err
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}
