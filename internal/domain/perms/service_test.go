package perms_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/astro-web3/txcache-auth/internal/auth"
	"github.com/astro-web3/txcache-auth/internal/domain/perms"
	"github.com/astro-web3/txcache-auth/internal/infra/cache"
	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

type mockDecisionCache struct {
	decisions map[string]*cache.CachedDecision
	sets      int
	lastTTL   time.Duration
}

func newMockDecisionCache() *mockDecisionCache {
	return &mockDecisionCache{decisions: make(map[string]*cache.CachedDecision)}
}

func (m *mockDecisionCache) Get(_ context.Context, tokenHash string) (*cache.CachedDecision, error) {
	return m.decisions[tokenHash], nil
}

func (m *mockDecisionCache) Set(_ context.Context, tokenHash string, value *cache.CachedDecision, ttl time.Duration) error {
	m.decisions[tokenHash] = value
	m.sets++
	m.lastTTL = ttl
	return nil
}

type mockUpstreamChecker struct {
	calls   int32
	checkFn func(ctx context.Context, subject string) error
}

func (m *mockUpstreamChecker) CheckPermission(ctx context.Context, subject string) error {
	atomic.AddInt32(&m.calls, 1)
	if m.checkFn != nil {
		return m.checkFn(ctx, subject)
	}
	return nil
}

func TestService_Check_ValidToken(t *testing.T) {
	svc := perms.NewService()

	token := signedToken(t, "builder-1", time.Now().Add(time.Hour))
	decision := svc.Check(context.Background(), token)

	if !decision.Allow {
		t.Fatalf("expected allow, got deny: %s", decision.Reason)
	}
	if decision.Subject != "builder-1" {
		t.Errorf("expected subject builder-1, got %q", decision.Subject)
	}
}

func TestService_Check_BearerPrefixStripped(t *testing.T) {
	svc := perms.NewService()

	token := signedToken(t, "builder-1", time.Now().Add(time.Hour))
	decision := svc.Check(context.Background(), "Bearer "+token)

	if !decision.Allow {
		t.Fatalf("expected allow, got deny: %s", decision.Reason)
	}
}

func TestService_Check_MissingToken(t *testing.T) {
	svc := perms.NewService()

	for _, token := range []string{"", "   ", "Bearer ", "Bearer    "} {
		decision := svc.Check(context.Background(), token)
		if decision.Allow {
			t.Errorf("expected deny for token %q", token)
		}
		if decision.Reason != perms.ReasonMissingToken {
			t.Errorf("expected reason %q, got %q", perms.ReasonMissingToken, decision.Reason)
		}
	}
}

func TestService_Check_MalformedToken(t *testing.T) {
	svc := perms.NewService()

	decision := svc.Check(context.Background(), "not-a-jwt")
	if decision.Allow {
		t.Fatal("expected deny for malformed token")
	}
	if decision.Reason != perms.ReasonMalformedToken {
		t.Errorf("expected reason %q, got %q", perms.ReasonMalformedToken, decision.Reason)
	}
}

func TestService_Check_ExpiredToken(t *testing.T) {
	svc := perms.NewService()

	token := signedToken(t, "builder-1", time.Now().Add(-time.Minute))
	decision := svc.Check(context.Background(), token)

	if decision.Allow {
		t.Fatal("expected deny for expired token")
	}
	if decision.Reason != perms.ReasonTokenExpired {
		t.Errorf("expected reason %q, got %q", perms.ReasonTokenExpired, decision.Reason)
	}
}

func TestService_Check_SubjectAllowlist(t *testing.T) {
	svc := perms.NewService(perms.WithAllowedSubjects([]string{"builder-1", "builder-2"}))

	allowed := svc.Check(context.Background(), signedToken(t, "builder-2", time.Now().Add(time.Hour)))
	if !allowed.Allow {
		t.Fatalf("expected allow for listed subject, got: %s", allowed.Reason)
	}

	denied := svc.Check(context.Background(), signedToken(t, "intruder", time.Now().Add(time.Hour)))
	if denied.Allow {
		t.Fatal("expected deny for unlisted subject")
	}
	if denied.Reason != perms.ReasonNotPermissioned {
		t.Errorf("expected reason %q, got %q", perms.ReasonNotPermissioned, denied.Reason)
	}
}

func TestService_Check_UpstreamAllowed(t *testing.T) {
	upstream := &mockUpstreamChecker{}
	svc := perms.NewService(perms.WithUpstreamChecker(upstream))

	decision := svc.Check(context.Background(), signedToken(t, "builder-1", time.Now().Add(time.Hour)))
	if !decision.Allow {
		t.Fatalf("expected allow, got: %s", decision.Reason)
	}
	if got := atomic.LoadInt32(&upstream.calls); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
}

func TestService_Check_UpstreamRejected(t *testing.T) {
	upstream := &mockUpstreamChecker{
		checkFn: func(context.Context, string) error {
			return &auth.AuthError{Kind: auth.KindRejected, Op: "check permission"}
		},
	}
	svc := perms.NewService(perms.WithUpstreamChecker(upstream))

	decision := svc.Check(context.Background(), signedToken(t, "builder-1", time.Now().Add(time.Hour)))
	if decision.Allow {
		t.Fatal("expected deny")
	}
	if decision.Reason != perms.ReasonUpstreamDenied {
		t.Errorf("expected reason %q, got %q", perms.ReasonUpstreamDenied, decision.Reason)
	}
	if decision.Unavailable {
		t.Error("a positive rejection must not be marked unavailable")
	}
}

func TestService_Check_UpstreamUnreachableFailsClosed(t *testing.T) {
	upstream := &mockUpstreamChecker{
		checkFn: func(context.Context, string) error {
			return &auth.AuthError{Kind: auth.KindUnreachable, Op: "check permission"}
		},
	}
	svc := perms.NewService(perms.WithUpstreamChecker(upstream))

	decision := svc.Check(context.Background(), signedToken(t, "builder-1", time.Now().Add(time.Hour)))
	if decision.Allow {
		t.Fatal("unreachable upstream must fail closed")
	}
	if !decision.Unavailable {
		t.Error("expected unavailable denial")
	}
	if decision.Reason != perms.ReasonServiceUnavailable {
		t.Errorf("expected reason %q, got %q", perms.ReasonServiceUnavailable, decision.Reason)
	}
}

func TestService_Check_OpenBreakerDeniesWithoutUpstreamCall(t *testing.T) {
	upstream := &mockUpstreamChecker{
		checkFn: func(context.Context, string) error {
			return &auth.AuthError{Kind: auth.KindUnreachable, Op: "check permission"}
		},
	}
	svc := perms.NewService(perms.WithUpstreamChecker(upstream))

	token := signedToken(t, "builder-1", time.Now().Add(time.Hour))

	// gobreaker's default trip condition is more than five consecutive
	// failures.
	for i := 0; i < 6; i++ {
		if decision := svc.Check(context.Background(), token); decision.Allow {
			t.Fatal("expected deny while upstream is failing")
		}
	}

	before := atomic.LoadInt32(&upstream.calls)
	decision := svc.Check(context.Background(), token)
	if decision.Allow {
		t.Fatal("expected deny while breaker is open")
	}
	if !decision.Unavailable {
		t.Error("expected unavailable denial from open breaker")
	}
	if got := atomic.LoadInt32(&upstream.calls); got != before {
		t.Errorf("expected no upstream call through open breaker, got %d extra", got-before)
	}
}

func TestService_Check_RejectionsDoNotTripBreaker(t *testing.T) {
	upstream := &mockUpstreamChecker{
		checkFn: func(_ context.Context, subject string) error {
			if subject == "intruder" {
				return &auth.AuthError{Kind: auth.KindRejected, Op: "check permission"}
			}
			return nil
		},
	}
	svc := perms.NewService(perms.WithUpstreamChecker(upstream))

	deniedToken := signedToken(t, "intruder", time.Now().Add(time.Hour))
	for i := 0; i < 10; i++ {
		decision := svc.Check(context.Background(), deniedToken)
		if decision.Allow {
			t.Fatal("expected deny for rejected subject")
		}
		if decision.Unavailable {
			t.Fatal("a healthy upstream answering deny must not read as unavailable")
		}
	}

	// A burst of denials must not degrade the gate for allowed subjects.
	decision := svc.Check(context.Background(), signedToken(t, "builder-1", time.Now().Add(time.Hour)))
	if !decision.Allow {
		t.Fatalf("expected allow after denied burst, got: %s (unavailable=%v)",
			decision.Reason, decision.Unavailable)
	}
}

func TestService_Check_DecisionCacheTTLCappedAtTokenExpiry(t *testing.T) {
	decisions := newMockDecisionCache()
	svc := perms.NewService(perms.WithDecisionCache(decisions, time.Hour))

	token := signedToken(t, "builder-1", time.Now().Add(time.Minute))
	if decision := svc.Check(context.Background(), token); !decision.Allow {
		t.Fatalf("expected allow, got: %s", decision.Reason)
	}

	if decisions.sets != 1 {
		t.Fatalf("expected decision to be cached, got %d sets", decisions.sets)
	}
	if decisions.lastTTL <= 0 || decisions.lastTTL > time.Minute {
		t.Errorf("expected cache TTL capped at the token's remaining lifetime, got %v", decisions.lastTTL)
	}
}

func TestService_Check_DecisionCache(t *testing.T) {
	decisions := newMockDecisionCache()
	upstream := &mockUpstreamChecker{}
	svc := perms.NewService(
		perms.WithDecisionCache(decisions, time.Minute),
		perms.WithUpstreamChecker(upstream),
	)

	token := signedToken(t, "builder-1", time.Now().Add(time.Hour))

	first := svc.Check(context.Background(), token)
	if !first.Allow {
		t.Fatalf("expected allow, got: %s", first.Reason)
	}
	if decisions.sets != 1 {
		t.Fatalf("expected allow decision to be cached, got %d sets", decisions.sets)
	}

	second := svc.Check(context.Background(), token)
	if !second.Allow {
		t.Fatalf("expected cached allow, got: %s", second.Reason)
	}
	if second.Subject != "builder-1" {
		t.Errorf("expected cached subject builder-1, got %q", second.Subject)
	}
	if got := atomic.LoadInt32(&upstream.calls); got != 1 {
		t.Errorf("expected cache hit to skip the upstream check, got %d calls", got)
	}
}

func TestService_Check_DenialsNotCached(t *testing.T) {
	decisions := newMockDecisionCache()
	svc := perms.NewService(perms.WithDecisionCache(decisions, time.Minute))

	token := signedToken(t, "builder-1", time.Now().Add(-time.Minute))
	if decision := svc.Check(context.Background(), token); decision.Allow {
		t.Fatal("expected deny for expired token")
	}
	if decisions.sets != 0 {
		t.Errorf("denials must not be cached, got %d sets", decisions.sets)
	}
}
