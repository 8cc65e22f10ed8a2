package perms

import (
	"context"

	"github.com/astro-web3/txcache-auth/internal/domain/perms"
	"github.com/astro-web3/txcache-auth/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

type Service interface {
	Check(ctx context.Context, token string) *perms.Decision
}

type service struct {
	domainService perms.Service
}

func NewService(domainService perms.Service) Service {
	return &service{
		domainService: domainService,
	}
}

func (s *service) Check(ctx context.Context, token string) *perms.Decision {
	ctx, span := tracer.Start(ctx, "app.perms.Check")
	defer span.End()

	decision := s.domainService.Check(ctx, token)

	if decision.Allow {
		span.SetAttributes(
			attribute.Bool("perms.allowed", true),
			attribute.String("perms.subject", decision.Subject),
		)
	} else {
		span.SetAttributes(
			attribute.Bool("perms.allowed", false),
			attribute.String("perms.reason", decision.Reason),
		)
	}

	return decision
}
