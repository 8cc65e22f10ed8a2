package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	httpclient "github.com/astro-web3/txcache-auth/pkg/http"
)

// DefaultRefreshMargin is the minimum safety margin subtracted from a
// token's server-reported expiry. Recommended: fetch latency ×3, never
// below 30 seconds.
const DefaultRefreshMargin = 30 * time.Second

// Fetcher obtains a fresh token state from the authorization server.
// Implementations are stateless; caching is the Cache's job.
type Fetcher interface {
	Fetch(ctx context.Context) (State, error)
}

// TokenResponse is the standard OAuth2 client-credentials token payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// ClientCredentialsFetcher performs the OAuth2 client-credentials grant
// against the configured token endpoint.
type ClientCredentialsFetcher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	margin       time.Duration
}

func NewClientCredentialsFetcher(tokenURL, clientID, clientSecret, scope string, margin time.Duration) *ClientCredentialsFetcher {
	if margin < DefaultRefreshMargin {
		margin = DefaultRefreshMargin
	}
	return &ClientCredentialsFetcher{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		margin:       margin,
	}
}

func (f *ClientCredentialsFetcher) Fetch(ctx context.Context) (State, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if f.scope != "" {
		form.Set("scope", f.scope)
	}

	var tokenResp TokenResponse
	resp, err := httpclient.PostForm(ctx, f.tokenURL, form, f.clientID, f.clientSecret, &tokenResp)
	if err != nil {
		// resty surfaces a decode failure on a 2xx response as an error
		// with the response attached.
		if resp != nil && resp.IsSuccess() {
			return State{}, &AuthError{Kind: KindMalformedResponse, Op: "fetch token", Err: err}
		}
		return State{}, &AuthError{Kind: KindUnreachable, Op: "fetch token", Err: err}
	}

	switch {
	case resp.StatusCode() >= http.StatusInternalServerError:
		return State{}, &AuthError{
			Kind: KindUnreachable,
			Op:   "fetch token",
			Err:  newStatusError(resp.StatusCode(), resp.Body()),
		}
	case resp.StatusCode() >= http.StatusBadRequest:
		return State{}, &AuthError{
			Kind: KindRejected,
			Op:   "fetch token",
			Err:  newStatusError(resp.StatusCode(), resp.Body()),
		}
	}

	if tokenResp.AccessToken == "" || tokenResp.ExpiresIn <= 0 {
		return State{}, &AuthError{Kind: KindMalformedResponse, Op: "fetch token"}
	}

	expiresIn := time.Duration(tokenResp.ExpiresIn) * time.Second
	return State{
		AccessToken: tokenResp.AccessToken,
		ExpiresAt:   time.Now().Add(expiresIn - f.margin),
	}, nil
}
