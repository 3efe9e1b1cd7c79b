package presence

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps presence records in a single Redis set so every relay
// process observing the same key sees the same online population.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps an existing Redis client. The key names the set that
// holds the online IDs and falls back to DefaultKey when blank.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		trimmed = DefaultKey
	}
	return &RedisStore{client: client, key: trimmed}
}

// Add marks the ID as online.
func (s *RedisStore) Add(ctx context.Context, id string) error {
	return s.client.SAdd(ctx, s.key, id).Err()
}

// Remove marks the ID as offline.
func (s *RedisStore) Remove(ctx context.Context, id string) error {
	return s.client.SRem(ctx, s.key, id).Err()
}

// Contains reports whether the ID is currently marked online.
func (s *RedisStore) Contains(ctx context.Context, id string) (bool, error) {
	return s.client.SIsMember(ctx, s.key, id).Result()
}

// Clear deletes the whole presence set.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
