package txcache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/astro-web3/txcache-auth/internal/auth"
	httpclient "github.com/astro-web3/txcache-auth/pkg/http"
	"github.com/go-resty/resty/v2"
)

const bundlesPath = "bundles"

// Client talks to the transaction-cache service. Every call goes through
// the authorized client, which attaches and refreshes bearer tokens.
type Client struct {
	authClient *auth.Client
	baseURL    string
}

func NewClient(authClient *auth.Client, baseURL string) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid tx-cache base URL: %w", err)
	}

	return &Client{
		authClient: authClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (c *Client) join(path string) string {
	return c.baseURL + "/" + path
}

// GetBundles fetches bundles from the cache, optionally paginated.
func (c *Client) GetBundles(ctx context.Context, page *Pagination) ([]Bundle, error) {
	opts := []httpclient.RequestOption{}
	if page != nil {
		if page.Cursor != "" {
			opts = append(opts, httpclient.WithQueryParam("cursor", page.Cursor))
		}
		if page.Limit > 0 {
			opts = append(opts, httpclient.WithQueryParam("limit", strconv.Itoa(page.Limit)))
		}
	}

	var result bundlesResponse
	opts = append(opts, httpclient.WithResult(&result))

	resp, err := c.authClient.Get(ctx, c.join(bundlesPath), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to get bundles: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("failed to get bundles: %w", err)
	}

	return result.Bundles, nil
}

// GetBundle fetches a single bundle by its UUID.
func (c *Client) GetBundle(ctx context.Context, bundleID string) (*Bundle, error) {
	var result bundleResponse

	resp, err := c.authClient.Get(ctx, c.join(bundlesPath+"/"+bundleID),
		httpclient.WithResult(&result),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get bundle %s: %w", bundleID, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("failed to get bundle %s: %w", bundleID, err)
	}

	return &result.Bundle, nil
}

// SubmitBundle submits a bundle to the cache and returns it with the
// cache-assigned ID filled in.
func (c *Client) SubmitBundle(ctx context.Context, bundle Bundle) (*Bundle, error) {
	var result bundleResponse

	resp, err := c.authClient.Post(ctx, c.join(bundlesPath),
		httpclient.WithBody(bundle),
		httpclient.WithResult(&result),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to submit bundle: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("failed to submit bundle: %w", err)
	}

	return &result.Bundle, nil
}

// GetTransactions fetches the raw transactions currently in the cache.
func (c *Client) GetTransactions(ctx context.Context) ([]Transaction, error) {
	var result transactionsResponse

	resp, err := c.authClient.Get(ctx, c.join("transactions"),
		httpclient.WithResult(&result),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	return result.Transactions, nil
}

// CheckPermission asks the permission endpoint whether the given subject is
// currently allowed. A rejection surfaces as an AuthError with
// KindRejected, transport failures as KindUnreachable.
func (c *Client) CheckPermission(ctx context.Context, checkPath, subject string) error {
	resp, err := c.authClient.Post(ctx, c.join(strings.TrimPrefix(checkPath, "/")),
		httpclient.WithBody(permissionCheckRequest{Subject: subject}),
	)
	if err != nil {
		if auth.KindOf(err) != 0 {
			return err
		}
		return &auth.AuthError{Kind: auth.KindUnreachable, Op: "check permission", Err: err}
	}
	if resp.IsError() {
		return &auth.AuthError{Kind: auth.KindRejected, Op: "check permission"}
	}

	return nil
}

func checkStatus(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("tx-cache returned status %d: %s", resp.StatusCode(), resp.Body())
	}
	return nil
}
