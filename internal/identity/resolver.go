package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// ErrUnresolved is returned when a token cannot be mapped to a student.
var ErrUnresolved = errors.New("caller identity could not be resolved")

// Resolver maps a bearer token to the caller's student id.
type Resolver interface {
	ResolveStudentID(ctx context.Context, token string) (int64, error)
}

// HTTPResolver resolves the caller by asking the enrollment backend for the
// profile behind the token.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver with a bounded per-call timeout.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ResolveStudentID looks up the caller's student id via the backend profile
// endpoint.
func (r *HTTPResolver) ResolveStudentID(ctx context.Context, token string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/students/profile", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, ErrUnresolved
	}

	var profile struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&profile); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	if profile.ID == 0 {
		return 0, ErrUnresolved
	}

	return profile.ID, nil
}

// TokenCache is the cache surface CachedResolver needs.
type TokenCache interface {
	GetStudentID(ctx context.Context, token string) (int64, bool, error)
	SetStudentID(ctx context.Context, token string, studentID int64, ttl time.Duration) error
}

// CachedResolver wraps a Resolver with a cache so the per-request network
// round trip is paid once per token TTL.
type CachedResolver struct {
	inner Resolver
	cache TokenCache
	ttl   time.Duration
}

// NewCachedResolver creates a caching resolver.
func NewCachedResolver(inner Resolver, cache TokenCache, ttl time.Duration) *CachedResolver {
	return &CachedResolver{inner: inner, cache: cache, ttl: ttl}
}

// ResolveStudentID returns the cached resolution when present, otherwise
// resolves through the inner resolver and caches the result. Cache failures
// degrade to a direct resolution.
func (r *CachedResolver) ResolveStudentID(ctx context.Context, token string) (int64, error) {
	id, hit, err := r.cache.GetStudentID(ctx, token)
	if err != nil {
		log.Printf("identity: cache read failed: %v", err)
	} else if hit {
		return id, nil
	}

	id, err = r.inner.ResolveStudentID(ctx, token)
	if err != nil {
		return 0, err
	}

	if err := r.cache.SetStudentID(ctx, token, id, r.ttl); err != nil {
		log.Printf("identity: cache write failed: %v", err)
	}

	return id, nil
}
