package redis

import (
	"context"
	"time"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireIntentLock(ctx context.Context, intentID string, ttl time.Duration) (bool, error)
	ReleaseIntentLock(ctx context.Context, intentID string) error
}

// CacheStoreInterface defines the interface for identity caching.
type CacheStoreInterface interface {
	GetStudentID(ctx context.Context, token string) (int64, bool, error)
	SetStudentID(ctx context.Context, token string, studentID int64, ttl time.Duration) error
	InvalidateToken(ctx context.Context, token string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface  = (*LockStore)(nil)
	_ CacheStoreInterface = (*CacheStore)(nil)
)
