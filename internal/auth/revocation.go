package auth

import (
	"context"
	"time"
)

// RevocationEntry is what logout records about a session token.
type RevocationEntry struct {
	TokenID   string `json:"jti"`
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"exp"`
	Status    string `json:"status"`
}

// RevocationStore is a time-bounded denylist of token ids. Entries expire on
// their own once the token would have expired anyway.
type RevocationStore interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration, entry RevocationEntry) error
}
