package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/astro-web3/txcache-auth/pkg/logger"
)

// Cache owns a single token State behind an exclusive-access guard.
//
// The guard is held across the whole check-and-possibly-refresh sequence,
// so concurrent callers of Token block on one in-flight fetch instead of
// issuing parallel fetches, then all observe its result. A failed fetch
// leaves the previous state untouched.
type Cache struct {
	fetcher Fetcher

	// sem is a one-slot semaphore guarding state. A waiter gives up when
	// its context deadline fires; the holder's in-flight fetch is
	// unaffected by a waiter's timeout.
	sem   chan struct{}
	state State

	// now is swapped out in tests.
	now func() time.Time
}

func NewCache(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		sem:     make(chan struct{}, 1),
		now:     time.Now,
	}
}

func (c *Cache) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cache) release() {
	<-c.sem
}

// Token returns a valid access token, refreshing it first if the cached one
// is missing or expired. The caller's deadline applies both while waiting
// for another caller's refresh and to a refresh performed here.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	if c.state.Valid(c.now()) {
		return c.state.AccessToken, nil
	}

	state, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return "", err
	}

	c.state = state
	return state.AccessToken, nil
}

// Invalidate drops the cached token so the next Token call fetches a fresh
// one. Used by the authorized client after an authorization rejection.
func (c *Cache) Invalidate() {
	c.sem <- struct{}{}
	defer c.release()

	c.state = State{}
}

// Authenticated reports whether a usable token is currently cached.
func (c *Cache) Authenticated() bool {
	c.sem <- struct{}{}
	defer c.release()

	return c.state.Valid(c.now())
}

// Refresh unconditionally fetches a new token and stores it on success.
func (c *Cache) Refresh(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	state, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}

	c.state = state
	return nil
}

// RunRefresh periodically refreshes the token until ctx is cancelled.
// Failures are logged and retried on the next tick; the stale token, if
// any, stays available in the meantime.
func (c *Cache) RunRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.Refresh(ctx); err != nil {
			logger.ErrorContext(ctx, "failed to refresh oauth token", slog.String("error", err.Error()))
		} else {
			logger.InfoContext(ctx, "refreshed oauth token")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
