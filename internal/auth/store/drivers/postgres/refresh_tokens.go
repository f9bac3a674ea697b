package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
)

const (
	upsertRefreshSQL = `
INSERT INTO refresh_states (principal_kind, principal_id, token_hash, expires_at, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (principal_kind, principal_id) DO UPDATE SET
    token_hash = EXCLUDED.token_hash,
    expires_at = EXCLUDED.expires_at,
    updated_at = now()`

	getRefreshSQL = `
SELECT principal_kind, principal_id, token_hash, expires_at
FROM refresh_states WHERE principal_kind = $1 AND principal_id = $2`

	findRefreshSQL = `
SELECT principal_kind, principal_id, token_hash, expires_at
FROM refresh_states WHERE token_hash = $1`

	// Under READ COMMITTED the second of two racing updates re-evaluates
	// the WHERE clause after the first commits and matches zero rows.
	swapRefreshSQL = `
UPDATE refresh_states SET token_hash = $1, expires_at = $2, updated_at = now()
WHERE principal_kind = $3 AND principal_id = $4 AND token_hash = $5`

	clearRefreshSQL = `
DELETE FROM refresh_states WHERE principal_kind = $1 AND principal_id = $2 AND token_hash = $3`

	deleteExpiredRefreshSQL = `DELETE FROM refresh_states WHERE expires_at <= $1`
)

type refreshTokensRepo struct {
	db *sql.DB
}

func (r *refreshTokensRepo) SetRefreshToken(
	ctx context.Context,
	ref domain.PrincipalRef,
	tokenHash string,
	expiresAt time.Time,
) error {
	_, err := r.db.ExecContext(ctx, upsertRefreshSQL, string(ref.Kind), ref.ID, tokenHash, expiresAt.UTC())
	return err
}

func (r *refreshTokensRepo) GetRefreshState(
	ctx context.Context,
	ref domain.PrincipalRef,
) (domain.RefreshState, error) {
	return scanRefreshState(r.db.QueryRowContext(ctx, getRefreshSQL, string(ref.Kind), ref.ID))
}

func (r *refreshTokensRepo) FindRefreshState(ctx context.Context, tokenHash string) (domain.RefreshState, error) {
	return scanRefreshState(r.db.QueryRowContext(ctx, findRefreshSQL, tokenHash))
}

func (r *refreshTokensRepo) TrySwapRefreshToken(
	ctx context.Context,
	ref domain.PrincipalRef,
	expectedHash, newHash string,
	newExpiresAt time.Time,
) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if newHash == "" {
		res, err = r.db.ExecContext(ctx, clearRefreshSQL, string(ref.Kind), ref.ID, expectedHash)
	} else {
		res, err = r.db.ExecContext(ctx, swapRefreshSQL,
			newHash, newExpiresAt.UTC(), string(ref.Kind), ref.ID, expectedHash,
		)
	}
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteExpiredRefreshSQL, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRefreshState(row *sql.Row) (domain.RefreshState, error) {
	var s domain.RefreshState
	var kind string
	if err := row.Scan(&kind, &s.Principal.ID, &s.TokenHash, &s.ExpiresAt); err != nil {
		return domain.RefreshState{}, mapNotFound(err)
	}
	s.Principal.Kind = domain.PrincipalKind(kind)
	s.ExpiresAt = s.ExpiresAt.UTC()
	return s, nil
}
