package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/astro-web3/txcache-auth/internal/infra/cache"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (cache.DecisionCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.NewDecisionCache(client), mr
}

func TestDecisionCache_RoundTrip(t *testing.T) {
	decisions, _ := newTestCache(t)
	ctx := context.Background()

	stored := &cache.CachedDecision{Allow: true, Subject: "builder-1"}
	if err := decisions.Set(ctx, "hash-1", stored, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := decisions.Get(ctx, "hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected a cached decision")
	}
	if !got.Allow || got.Subject != "builder-1" {
		t.Errorf("cached decision mismatch: %+v", got)
	}
}

func TestDecisionCache_MissReturnsNil(t *testing.T) {
	decisions, _ := newTestCache(t)

	got, err := decisions.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on cache miss, got %+v", got)
	}
}

func TestDecisionCache_TTLExpiry(t *testing.T) {
	decisions, mr := newTestCache(t)
	ctx := context.Background()

	if err := decisions.Set(ctx, "hash-1", &cache.CachedDecision{Allow: true}, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	got, err := decisions.Get(ctx, "hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected decision to expire, got %+v", got)
	}
}
