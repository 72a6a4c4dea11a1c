package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisRevocations keeps revoked escalation ids in Redis. Entries expire when
// the escalation itself would have, so the list never grows unbounded.
type RedisRevocations struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocations creates a revocation list under keyPrefix
func NewRedisRevocations(client *redis.Client, keyPrefix string) *RedisRevocations {
	if keyPrefix == "" {
		keyPrefix = "gatehouse"
	}
	return &RedisRevocations{client: client, prefix: keyPrefix, now: time.Now}
}

func (r *RedisRevocations) key(escalationID string) string {
	return fmt.Sprintf("%s:revoked_escalation:%s", r.prefix, escalationID)
}

// Revoke marks escalationID revoked until the given time
func (r *RedisRevocations) Revoke(ctx context.Context, escalationID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(escalationID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke escalation: %w", err)
	}
	return nil
}

// IsRevoked reports whether escalationID was revoked
func (r *RedisRevocations) IsRevoked(ctx context.Context, escalationID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(escalationID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}
