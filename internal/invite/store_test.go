package invite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, ttl), mr
}

func TestAllocateResolveRelease(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	token, err := s.Allocate(ctx, 42)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !strings.HasPrefix(token, "GM-") || len(token) != 9 {
		t.Fatalf("unexpected token format: %q", token)
	}

	id, ok, err := s.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ok || id != 42 {
		t.Fatalf("resolve = (%d, %v), want (42, true)", id, ok)
	}

	if err := s.Bind(ctx, token, 99); err != nil {
		t.Fatalf("bind: %v", err)
	}
	id, ok, err = s.Resolve(ctx, token)
	if err != nil || !ok || id != 99 {
		t.Fatalf("resolve after bind = (%d, %v, %v), want (99, true, nil)", id, ok, err)
	}

	if err := s.Release(ctx, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	_, ok, err = s.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve after release: %v", err)
	}
	if ok {
		t.Fatal("token resolved after release")
	}
}

func TestResolveUnknownToken(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	_, ok, err := s.Resolve(context.Background(), "GM-NOPE00")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok {
		t.Fatal("unknown token resolved")
	}
}

func TestTokenExpires(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	token, err := s.Allocate(ctx, 7)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	_, ok, err := s.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok {
		t.Fatal("token resolved after TTL")
	}
}

func TestTokenGenUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := TokenGen()
		if err != nil {
			t.Fatalf("tokengen: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}
