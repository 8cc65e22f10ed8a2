package http

import (
	"context"
	"fmt"
	"net/http"

	appperms "github.com/astro-web3/txcache-auth/internal/app/perms"
	"github.com/astro-web3/txcache-auth/internal/auth"
	"github.com/astro-web3/txcache-auth/internal/config"
	permsdomain "github.com/astro-web3/txcache-auth/internal/domain/perms"
	"github.com/astro-web3/txcache-auth/internal/infra/cache"
	"github.com/astro-web3/txcache-auth/internal/infra/txcache"
	"github.com/astro-web3/txcache-auth/pkg/logger"
	"github.com/astro-web3/txcache-auth/pkg/otel"
	"github.com/astro-web3/txcache-auth/pkg/tracer"
)

type Server struct {
	httpServer    *http.Server
	refreshCancel context.CancelFunc
}

const (
	idleTimeoutMultiplier = 2
	serviceName           = "txcache-auth"
)

// upstreamChecker adapts the tx-cache client to the domain's
// UpstreamChecker with the configured check path bound in.
type upstreamChecker struct {
	client    *txcache.Client
	checkPath string
}

func (u *upstreamChecker) CheckPermission(ctx context.Context, subject string) error {
	return u.client.CheckPermission(ctx, u.checkPath, subject)
}

func NewServer(cfg *config.Config) (*Server, error) {
	logger.InitLogger(cfg.Observability.LogLevel, cfg.Observability.Format, cfg.Observability.LogSource)

	otelCfg := otel.Config{
		ServiceName:        serviceName,
		EndpointURL:        cfg.Observability.TracingEndpointURL,
		Enabled:            cfg.Observability.TraceEnabled,
		SampleRatio:        1.0,
		Insecure:           true,
		ResourceAttributes: make(map[string]string),
	}
	if err := tracer.InitTracer(serviceName, otelCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	fetcher := auth.NewClientCredentialsFetcher(
		cfg.OAuth.TokenURL,
		cfg.OAuth.ClientID,
		cfg.OAuth.ClientSecret,
		cfg.OAuth.Scope,
		cfg.OAuth.RefreshMargin,
	)
	tokenCache := auth.NewCache(fetcher)
	authClient := auth.NewClient(tokenCache)

	txCacheClient, err := txcache.NewClient(authClient, cfg.Upstream.TxCacheURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create tx-cache client: %w", err)
	}

	permsOpts := []permsdomain.Option{}
	if len(cfg.Perms.AllowedSubjects) > 0 {
		permsOpts = append(permsOpts, permsdomain.WithAllowedSubjects(cfg.Perms.AllowedSubjects))
	}
	if cfg.Upstream.CheckEnabled {
		permsOpts = append(permsOpts, permsdomain.WithUpstreamChecker(&upstreamChecker{
			client:    txCacheClient,
			checkPath: cfg.Upstream.PermissionCheckPath,
		}))
	}
	if cfg.Redis.URL != "" {
		redisClient, err := cache.NewRedisClient(cfg.Redis.URL, cfg.Redis.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		decisionCache := cache.NewDecisionCache(redisClient)
		permsOpts = append(permsOpts, permsdomain.WithDecisionCache(decisionCache, cfg.Redis.DecisionTTL))
	}

	permsDomainService := permsdomain.NewService(permsOpts...)
	permsService := appperms.NewService(permsDomainService)

	handler := NewHandler(txCacheClient)
	router := NewRouter(handler, permsService, cfg)

	var refreshCancel context.CancelFunc
	if cfg.OAuth.RefreshInterval > 0 {
		var refreshCtx context.Context
		refreshCtx, refreshCancel = context.WithCancel(context.Background())
		go tokenCache.RunRefresh(refreshCtx, cfg.OAuth.RefreshInterval)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * idleTimeoutMultiplier,
	}

	return &Server{
		httpServer:    httpServer,
		refreshCancel: refreshCancel,
	}, nil
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.refreshCancel != nil {
		s.refreshCancel()
	}
	return s.httpServer.Shutdown(ctx)
}
