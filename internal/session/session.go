// Package session stores refresh tokens, revoked access-token ids and OAuth
// state. Redis backs it in production; an in-memory LRU serves single-node setups.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound means the token or state is unknown, already used, or expired.
var ErrNotFound = errors.New("session: not found or expired")

// OAuthStateTTL bounds how long an authorization round-trip may take.
const OAuthStateTTL = 10 * time.Minute

type Store interface {
	// SaveRefresh records a refresh token hash for userID until expiresAt.
	SaveRefresh(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	// ConsumeRefresh removes the token and returns its user. A second call fails
	// with ErrNotFound, which makes rotation single-use.
	ConsumeRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeRefresh(ctx context.Context, tokenHash string) error
	// RevokeUser drops every refresh token issued to userID.
	RevokeUser(ctx context.Context, userID string) error

	// RevokeAccess blocks an access token id until its natural expiry.
	RevokeAccess(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessRevoked(ctx context.Context, jti string) (bool, error)

	SaveOAuthState(ctx context.Context, state string) error
	// ConsumeOAuthState reports whether state was issued and unused.
	ConsumeOAuthState(ctx context.Context, state string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

func ttlUntil(expiresAt time.Time, fallback time.Duration) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fallback
	}
	return ttl
}
