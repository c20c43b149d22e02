package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles caching of resolved caller identities in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

const identityCachePrefix = "cache:identity:"

// identityCacheKey hashes the bearer token so raw credentials never become
// Redis keys.
func identityCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return identityCachePrefix + hex.EncodeToString(sum[:])
}

// GetStudentID retrieves a cached token-to-student resolution. The second
// return value reports a cache hit.
func (s *CacheStore) GetStudentID(ctx context.Context, token string) (int64, bool, error) {
	data, err := s.client.Get(ctx, identityCacheKey(token)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil // Cache miss
		}
		return 0, false, err
	}

	id, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return 0, false, err
	}

	return id, true, nil
}

// SetStudentID stores a token-to-student resolution with a TTL.
func (s *CacheStore) SetStudentID(ctx context.Context, token string, studentID int64, ttl time.Duration) error {
	return s.client.Set(ctx, identityCacheKey(token), strconv.FormatInt(studentID, 10), ttl).Err()
}

// InvalidateToken removes a cached resolution.
func (s *CacheStore) InvalidateToken(ctx context.Context, token string) error {
	return s.client.Del(ctx, identityCacheKey(token)).Err()
}
