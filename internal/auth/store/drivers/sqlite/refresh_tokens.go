package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
)

const (
	upsertRefreshSQL = `
INSERT INTO refresh_states (principal_kind, principal_id, token_hash, expires_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (principal_kind, principal_id) DO UPDATE SET
    token_hash = excluded.token_hash,
    expires_at = excluded.expires_at,
    updated_at = excluded.updated_at`

	getRefreshSQL = `
SELECT principal_kind, principal_id, token_hash, expires_at
FROM refresh_states WHERE principal_kind = ? AND principal_id = ?`

	findRefreshSQL = `
SELECT principal_kind, principal_id, token_hash, expires_at
FROM refresh_states WHERE token_hash = ?`

	swapRefreshSQL = `
UPDATE refresh_states SET token_hash = ?, expires_at = ?, updated_at = ?
WHERE principal_kind = ? AND principal_id = ? AND token_hash = ?`

	clearRefreshSQL = `
DELETE FROM refresh_states WHERE principal_kind = ? AND principal_id = ? AND token_hash = ?`

	deleteExpiredRefreshSQL = `DELETE FROM refresh_states WHERE expires_at <= ?`
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
	_, err := r.db.ExecContext(ctx, upsertRefreshSQL,
		string(ref.Kind), ref.ID, tokenHash, toMillis(expiresAt), toMillis(time.Now()),
	)
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

// TrySwapRefreshToken is a single conditional statement, so sqlite's write
// lock makes it atomic: of two racing swaps only one can match expectedHash.
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
			newHash, toMillis(newExpiresAt), toMillis(time.Now()),
			string(ref.Kind), ref.ID, expectedHash,
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
	res, err := r.db.ExecContext(ctx, deleteExpiredRefreshSQL, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRefreshState(row *sql.Row) (domain.RefreshState, error) {
	var (
		kind, id, hash string
		expires        int64
	)
	if err := row.Scan(&kind, &id, &hash, &expires); err != nil {
		return domain.RefreshState{}, mapNotFound(err)
	}
	return domain.RefreshState{
		Principal: domain.PrincipalRef{Kind: domain.PrincipalKind(kind), ID: id},
		TokenHash: hash,
		ExpiresAt: fromMillis(expires),
	}, nil
}
