package slogx

import (
	"context"
	"log/slog"
	"sync"
)

type (
	ctxKey     struct{}
	requestKey struct{}
)

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// Security returns the context logger tagged as a security event, so auth
// failures can be routed or alerted on separately from request logs.
func Security(ctx context.Context) *slog.Logger {
	return FromContext(ctx).With("security_event", true)
}

// requestInfo is filled in while a request is handled and read back by
// HTTPMiddleware for the access log line.
type requestInfo struct {
	mu        sync.Mutex
	principal string
	tokenID   string
}

// WithPrincipal names the caller on the context logger. principal is the
// "kind:id" form; tokenID is the access token's jti. The access log line of
// the surrounding request picks both up as well.
func WithPrincipal(ctx context.Context, principal, tokenID string) context.Context {
	if info, ok := ctx.Value(requestKey{}).(*requestInfo); ok {
		info.mu.Lock()
		info.principal, info.tokenID = principal, tokenID
		info.mu.Unlock()
	}
	return WithContext(ctx, FromContext(ctx).With("principal", principal, "jti", tokenID))
}
