package domain

import "time"

// LogoutReason is recorded on blacklist entries written by logout.
const LogoutReason = "Logout"

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RefreshState is the single live refresh token of a principal. Only the
// fingerprint of the token is kept.
type RefreshState struct {
	Principal PrincipalRef
	TokenHash string // base64url SHA-256, see cryptox.FingerprintToken
	ExpiresAt time.Time
}

// Expired reports whether the state can no longer be exchanged at now.
func (s RefreshState) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// BlacklistEntry revokes one access token before its natural expiry. The
// entry lives exactly as long as the token would have, so ExpiresAt is
// copied from the token's exp claim.
type BlacklistEntry struct {
	TokenID       string // jti
	PrincipalID   string
	PrincipalKind PrincipalKind
	BlacklistedAt time.Time
	ExpiresAt     time.Time
	Reason        string
}
