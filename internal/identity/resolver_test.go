package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeResolver struct {
	mu    sync.Mutex
	calls int
	id    int64
	err   error
}

func (f *fakeResolver) ResolveStudentID(ctx context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.id, f.err
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]int64

	getErr error
	setErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]int64)}
}

func (f *fakeCache) GetStudentID(ctx context.Context, token string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return 0, false, f.getErr
	}
	id, ok := f.entries[token]
	return id, ok, nil
}

func (f *fakeCache) SetStudentID(ctx context.Context, token string, studentID int64, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[token] = studentID
	return nil
}

func TestCachedResolver_ResolvesOncePerToken(t *testing.T) {
	t.Parallel()

	inner := &fakeResolver{id: 42}
	resolver := NewCachedResolver(inner, newFakeCache(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := resolver.ResolveStudentID(ctx, "tok_a")
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if id != 42 {
			t.Errorf("resolve %d: expected 42, got %d", i, id)
		}
	}

	if inner.calls != 1 {
		t.Errorf("expected 1 inner resolution, got %d", inner.calls)
	}
}

func TestCachedResolver_FailuresAreNotCached(t *testing.T) {
	t.Parallel()

	inner := &fakeResolver{err: ErrUnresolved}
	cache := newFakeCache()
	resolver := NewCachedResolver(inner, cache, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := resolver.ResolveStudentID(ctx, "tok_bad"); !errors.Is(err, ErrUnresolved) {
			t.Fatalf("resolve %d: expected ErrUnresolved, got %v", i, err)
		}
	}

	if inner.calls != 2 {
		t.Errorf("expected 2 inner resolutions, got %d", inner.calls)
	}
	if len(cache.entries) != 0 {
		t.Errorf("expected empty cache, got %v", cache.entries)
	}
}

func TestCachedResolver_CacheErrorsDegradeToDirect(t *testing.T) {
	t.Parallel()

	inner := &fakeResolver{id: 7}
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")

	resolver := NewCachedResolver(inner, cache, time.Minute)

	id, err := resolver.ResolveStudentID(context.Background(), "tok_a")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != 7 {
		t.Errorf("expected 7, got %d", id)
	}
}

func TestHTTPResolver(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/students/profile" {
			http.NotFound(w, r)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer tok_valid":
			json.NewEncoder(w).Encode(map[string]any{"id": 42, "name": "Ada"})
		case "Bearer tok_zero":
			json.NewEncoder(w).Encode(map[string]any{"id": 0})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	resolver := NewHTTPResolver(server.URL, 2*time.Second)
	ctx := context.Background()

	id, err := resolver.ResolveStudentID(ctx, "tok_valid")
	if err != nil {
		t.Fatalf("resolve valid token: %v", err)
	}
	if id != 42 {
		t.Errorf("expected 42, got %d", id)
	}

	if _, err := resolver.ResolveStudentID(ctx, "tok_rejected"); !errors.Is(err, ErrUnresolved) {
		t.Errorf("expected ErrUnresolved for rejected token, got %v", err)
	}

	if _, err := resolver.ResolveStudentID(ctx, "tok_zero"); !errors.Is(err, ErrUnresolved) {
		t.Errorf("expected ErrUnresolved for zero id, got %v", err)
	}
}
