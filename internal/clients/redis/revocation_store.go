package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/social-backend/internal/auth"
)

const revocationKeyPrefix = "jti:"

// RevocationStore keeps revoked token ids as "jti:<id>" keys whose TTL matches
// the token's remaining validity.
type RevocationStore struct {
	rdb goredis.UniversalClient
}

var _ auth.RevocationStore = (*RevocationStore)(nil)

func NewRevocationStore(rdb goredis.UniversalClient) (*RevocationStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RevocationStore{rdb: rdb}, nil
}

func revocationKey(tokenID string) string {
	return revocationKeyPrefix + strings.TrimSpace(tokenID)
}

func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if strings.TrimSpace(tokenID) == "" {
		return false, fmt.Errorf("empty token id")
	}
	n, err := s.rdb.Exists(ctx, revocationKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration, entry auth.RevocationEntry) error {
	if strings.TrimSpace(tokenID) == "" {
		return fmt.Errorf("empty token id")
	}
	if ttl <= 0 {
		return nil
	}
	entry.TokenID = tokenID
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal revocation entry: %w", err)
	}
	if err := s.rdb.Set(ctx, revocationKey(tokenID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Entry returns the stored metadata, or nil when the id is not revoked.
func (s *RevocationStore) Entry(ctx context.Context, tokenID string) (*auth.RevocationEntry, error) {
	raw, err := s.rdb.Get(ctx, revocationKey(tokenID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var entry auth.RevocationEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode revocation entry: %w", err)
	}
	return &entry, nil
}
