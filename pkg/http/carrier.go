package http

import (
	"context"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// requestCarrier adapts a resty request's headers to the OTel
// propagation.TextMapCarrier interface so trace context survives
// the hop to the tx-cache upstream.
type requestCarrier struct {
	req *resty.Request
}

var _ propagation.TextMapCarrier = (*requestCarrier)(nil)

func (c *requestCarrier) Get(key string) string {
	return c.req.Header.Get(key)
}

func (c *requestCarrier) Set(key, value string) {
	c.req.SetHeader(key, value)
}

func (c *requestCarrier) Keys() []string {
	keys := make([]string, 0, len(c.req.Header))
	for k := range c.req.Header {
		keys = append(keys, k)
	}
	return keys
}

func injectTracingHeaders(ctx context.Context, req *resty.Request) {
	if propagator := otel.GetTextMapPropagator(); propagator != nil {
		propagator.Inject(ctx, &requestCarrier{req: req})
	}
}
