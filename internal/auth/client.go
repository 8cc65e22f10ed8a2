package auth

import (
	"context"
	"net/http"

	httpclient "github.com/astro-web3/txcache-auth/pkg/http"
	"github.com/go-resty/resty/v2"
)

// Client sends requests with a valid bearer token attached, refreshing the
// token through its Cache as needed.
//
// On an unauthorized or forbidden response the cached token is invalidated
// and the request retried exactly once with a freshly fetched token; a
// second rejection surfaces as an AuthError with KindRejected. All other
// failures pass through unchanged, retry policy for those belongs to the
// caller.
type Client struct {
	cache *Cache
}

func NewClient(cache *Cache) *Client {
	return &Client{cache: cache}
}

// Cache exposes the underlying token cache, e.g. for a background refresh.
func (c *Client) Cache() *Cache {
	return c.cache
}

func (c *Client) Do(ctx context.Context, method, url string, opts ...httpclient.RequestOption) (*resty.Response, error) {
	resp, err := c.attempt(ctx, method, url, opts)
	if err != nil {
		return nil, err
	}
	if !isAuthFailure(resp.StatusCode()) {
		return resp, nil
	}

	c.cache.Invalidate()

	resp, err = c.attempt(ctx, method, url, opts)
	if err != nil {
		return nil, err
	}
	if isAuthFailure(resp.StatusCode()) {
		return resp, &AuthError{
			Kind: KindRejected,
			Op:   "send " + method + " " + url,
			Err:  newStatusError(resp.StatusCode(), resp.Body()),
		}
	}

	return resp, nil
}

func (c *Client) Get(ctx context.Context, url string, opts ...httpclient.RequestOption) (*resty.Response, error) {
	return c.Do(ctx, http.MethodGet, url, opts...)
}

func (c *Client) Post(ctx context.Context, url string, opts ...httpclient.RequestOption) (*resty.Response, error) {
	return c.Do(ctx, http.MethodPost, url, opts...)
}

func (c *Client) attempt(ctx context.Context, method, url string, opts []httpclient.RequestOption) (*resty.Response, error) {
	token, err := c.cache.Token(ctx)
	if err != nil {
		return nil, err
	}

	withAuth := make([]httpclient.RequestOption, 0, len(opts)+1)
	withAuth = append(withAuth, opts...)
	withAuth = append(withAuth, httpclient.WithAuthToken(token))

	return httpclient.Request(ctx, method, url, withAuth...)
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
