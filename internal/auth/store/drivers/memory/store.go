// Package memory is a process-local store. It backs tests and single
// instance deployments that accept losing revocations on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/internal/auth/store"
)

type Store struct {
	mu        sync.Mutex
	blacklist map[string]domain.BlacklistEntry
	refresh   map[domain.PrincipalRef]domain.RefreshState
	byHash    map[string]domain.PrincipalRef
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		blacklist: make(map[string]domain.BlacklistEntry),
		refresh:   make(map[domain.PrincipalRef]domain.RefreshState),
		byHash:    make(map[string]domain.PrincipalRef),
	}
}

func (s *Store) Blacklist() store.Blacklist         { return (*blacklistRepo)(s) }
func (s *Store) RefreshTokens() store.RefreshTokens { return (*refreshTokensRepo)(s) }

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

type blacklistRepo Store

func (r *blacklistRepo) BlacklistToken(_ context.Context, e domain.BlacklistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blacklist[e.TokenID]; !ok {
		r.blacklist[e.TokenID] = e
	}
	return nil
}

func (r *blacklistRepo) IsBlacklisted(_ context.Context, tokenID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.blacklist[tokenID]
	return ok && e.ExpiresAt.After(now), nil
}

func (r *blacklistRepo) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.blacklist {
		if !e.ExpiresAt.After(now) {
			delete(r.blacklist, id)
			n++
		}
	}
	return n, nil
}

type refreshTokensRepo Store

func (r *refreshTokensRepo) SetRefreshToken(
	_ context.Context,
	ref domain.PrincipalRef,
	tokenHash string,
	expiresAt time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(ref, tokenHash, expiresAt)
	return nil
}

func (r *refreshTokensRepo) GetRefreshState(_ context.Context, ref domain.PrincipalRef) (domain.RefreshState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.refresh[ref]
	if !ok {
		return domain.RefreshState{}, store.ErrNotFound
	}
	return st, nil
}

func (r *refreshTokensRepo) FindRefreshState(_ context.Context, tokenHash string) (domain.RefreshState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.byHash[tokenHash]
	if !ok {
		return domain.RefreshState{}, store.ErrNotFound
	}
	return r.refresh[ref], nil
}

func (r *refreshTokensRepo) TrySwapRefreshToken(
	_ context.Context,
	ref domain.PrincipalRef,
	expectedHash, newHash string,
	newExpiresAt time.Time,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.refresh[ref]
	if !ok || cur.TokenHash != expectedHash {
		return false, nil
	}

	if newHash == "" {
		r.drop(ref)
		return true, nil
	}
	r.put(ref, newHash, newExpiresAt)
	return true, nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for ref, st := range r.refresh {
		if st.Expired(now) {
			r.drop(ref)
			n++
		}
	}
	return n, nil
}

// put and drop keep the hash index in step; callers hold mu.
func (r *refreshTokensRepo) put(ref domain.PrincipalRef, hash string, expiresAt time.Time) {
	r.drop(ref)
	r.refresh[ref] = domain.RefreshState{Principal: ref, TokenHash: hash, ExpiresAt: expiresAt}
	r.byHash[hash] = ref
}

func (r *refreshTokensRepo) drop(ref domain.PrincipalRef) {
	if old, ok := r.refresh[ref]; ok {
		delete(r.byHash, old.TokenHash)
		delete(r.refresh, ref)
	}
}
