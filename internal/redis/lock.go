package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireIntentLock attempts to acquire the reconciliation lock for the given
// payment intent. Returns true if the lock was acquired, false if already held
// by another caller.
func (s *LockStore) AcquireIntentLock(ctx context.Context, intentID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:intent:%s", intentID)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseIntentLock releases the reconciliation lock for the given intent.
func (s *LockStore) ReleaseIntentLock(ctx context.Context, intentID string) error {
	key := fmt.Sprintf("lock:intent:%s", intentID)

	return s.client.Del(ctx, key).Err()
}
