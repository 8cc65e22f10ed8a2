package perms

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/astro-web3/txcache-auth/internal/auth"
	"github.com/astro-web3/txcache-auth/internal/infra/cache"
	"github.com/astro-web3/txcache-auth/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker"
)

// UpstreamChecker delegates a permission decision to a remote service.
// Implementations must return an auth.AuthError so failures can be told
// apart from rejections.
type UpstreamChecker interface {
	CheckPermission(ctx context.Context, subject string) error
}

// Service decides whether a presented bearer token is allowed through.
// Every internal failure becomes a denial; checks never fail open.
type Service interface {
	Check(ctx context.Context, token string) *Decision
}

type service struct {
	decisions cache.DecisionCache
	upstream  UpstreamChecker
	breaker   *gobreaker.CircuitBreaker
	allowed   map[string]struct{}
	cacheTTL  time.Duration

	now func() time.Time
}

type Option func(*service)

// WithDecisionCache caches allow decisions keyed by token hash.
func WithDecisionCache(decisions cache.DecisionCache, ttl time.Duration) Option {
	return func(s *service) {
		s.decisions = decisions
		s.cacheTTL = ttl
	}
}

// WithUpstreamChecker delegates the final decision to a remote permission
// service, guarded by a circuit breaker. An open breaker denies without
// calling upstream. A rejection is a healthy upstream answering "deny",
// so only unreachable and malformed round-trips count as breaker
// failures.
func WithUpstreamChecker(upstream UpstreamChecker) Option {
	return func(s *service) {
		s.upstream = upstream
		s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "permission-upstream",
			IsSuccessful: func(err error) bool {
				return err == nil || auth.IsRejected(err)
			},
		})
	}
}

// WithAllowedSubjects restricts allow decisions to the given subjects.
func WithAllowedSubjects(subjects []string) Option {
	return func(s *service) {
		allowed := make(map[string]struct{}, len(subjects))
		for _, sub := range subjects {
			if sub = strings.TrimSpace(sub); sub != "" {
				allowed[sub] = struct{}{}
			}
		}
		s.allowed = allowed
	}
}

func NewService(opts ...Option) Service {
	s := &service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Check(ctx context.Context, token string) *Decision {
	token = strings.TrimSpace(token)
	if rest, ok := strings.CutPrefix(token, "Bearer"); ok {
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		return deny(ReasonMissingToken)
	}

	tokenHash := hashToken(token)

	if cached := s.lookupCached(ctx, tokenHash); cached != nil {
		return cached
	}

	claims, err := parseClaims(token)
	if err != nil {
		logger.DebugContext(ctx, "failed to parse token claims", slog.String("error", err.Error()))
		return deny(ReasonMalformedToken)
	}

	if claims.ExpiresAt != nil && !s.now().Before(claims.ExpiresAt.Time) {
		return deny(ReasonTokenExpired)
	}

	if len(s.allowed) > 0 {
		if _, ok := s.allowed[claims.Subject]; !ok {
			return deny(ReasonNotPermissioned)
		}
	}

	if s.upstream != nil {
		if decision := s.checkUpstream(ctx, claims.Subject); decision != nil {
			return decision
		}
	}

	decision := &Decision{Allow: true, Subject: claims.Subject}
	s.storeCached(ctx, tokenHash, decision, claims.ExpiresAt)
	return decision
}

// checkUpstream returns a denial, or nil when the subject is allowed.
func (s *service) checkUpstream(ctx context.Context, subject string) *Decision {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.upstream.CheckPermission(ctx, subject)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		logger.WarnContext(ctx, "permission upstream breaker open", slog.String("subject", subject))
		return unavailable()
	}
	if auth.IsRejected(err) {
		return deny(ReasonUpstreamDenied)
	}

	logger.WarnContext(ctx, "permission upstream check failed",
		slog.String("subject", subject),
		slog.String("error", err.Error()),
	)
	return unavailable()
}

func (s *service) lookupCached(ctx context.Context, tokenHash string) *Decision {
	if s.decisions == nil {
		return nil
	}

	cached, err := s.decisions.Get(ctx, tokenHash)
	if err != nil {
		logger.WarnContext(ctx, "failed to read decision cache", slog.String("error", err.Error()))
		return nil
	}
	if cached == nil {
		return nil
	}

	return &Decision{Allow: cached.Allow, Subject: cached.Subject, Reason: cached.Reason}
}

func (s *service) storeCached(ctx context.Context, tokenHash string, decision *Decision, expiresAt *jwt.NumericDate) {
	if s.decisions == nil || !decision.Allow {
		return
	}

	// A cached allow must never outlive the token itself.
	ttl := s.cacheTTL
	if expiresAt != nil {
		if remaining := expiresAt.Sub(s.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}

	cached := &cache.CachedDecision{Allow: true, Subject: decision.Subject}
	if err := s.decisions.Set(ctx, tokenHash, cached, ttl); err != nil {
		logger.WarnContext(ctx, "failed to write decision cache", slog.String("error", err.Error()))
	}
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// parseClaims extracts the registered claims without verifying the
// signature; the token issuer owns key material, exp and sub are what gate
// here.
func parseClaims(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
