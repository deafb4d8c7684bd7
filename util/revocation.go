package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariebrainware/educe-api/config"
	"github.com/redis/go-redis/v9"
)

func revokedKey(tokenID string) string {
	return "revoked_token:" + tokenID
}

// RevokeToken marks a token id as logged out for ttl, the remaining lifetime
// of the token. Without Redis revocation is not persisted and the token stays
// valid until it expires.
func RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	rdb := config.GetRedisClient()
	if rdb == nil || tokenID == "" || ttl <= 0 {
		return nil
	}
	if err := rdb.Set(ctx, revokedKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether a token id was logged out.
func IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	rdb := config.GetRedisClient()
	if rdb == nil || tokenID == "" {
		return false, nil
	}
	err := rdb.Get(ctx, revokedKey(tokenID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return true, nil
}
