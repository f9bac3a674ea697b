package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
)

const (
	insertBlacklistSQL = `
INSERT INTO token_blacklist (token_id, principal_id, principal_kind, reason, blacklisted_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (token_id) DO NOTHING`

	isBlacklistedSQL = `
SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE token_id = ? AND expires_at > ?)`

	sweepBlacklistSQL = `DELETE FROM token_blacklist WHERE expires_at <= ?`
)

type blacklistRepo struct {
	db *sql.DB
}

func (r *blacklistRepo) BlacklistToken(ctx context.Context, e domain.BlacklistEntry) error {
	_, err := r.db.ExecContext(ctx, insertBlacklistSQL,
		e.TokenID,
		e.PrincipalID,
		string(e.PrincipalKind),
		e.Reason,
		toMillis(e.BlacklistedAt),
		toMillis(e.ExpiresAt),
	)
	return err
}

func (r *blacklistRepo) IsBlacklisted(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	var found bool
	err := r.db.QueryRowContext(ctx, isBlacklistedSQL, tokenID, toMillis(now)).Scan(&found)
	return found, err
}

func (r *blacklistRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, sweepBlacklistSQL, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
