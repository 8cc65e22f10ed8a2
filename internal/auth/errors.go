package auth

import (
	"errors"
	"fmt"
)

// Kind classifies authorization failures so callers can pick a retry policy.
type Kind int

const (
	// KindUnreachable means the authorization server or upstream service
	// could not be contacted. Recoverable by caller retry with backoff.
	KindUnreachable Kind = iota + 1
	// KindRejected means credentials or a token were refused. Terminal.
	KindRejected
	// KindMalformedResponse means the token endpoint returned an
	// unparseable payload. Retryable like KindUnreachable, logged apart.
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindRejected:
		return "rejected"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// AuthError is the error type produced by the token fetcher, cache and
// authorized client.
//
//nolint:revive // AuthError keeps the domain name in the type for clarity
type AuthError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("auth: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

const maxErrorBodyLength = 256

type statusError struct {
	code int
	body string
}

func newStatusError(code int, body []byte) error {
	b := string(body)
	if len(b) > maxErrorBodyLength {
		b = b[:maxErrorBodyLength]
	}
	return &statusError{code: code, body: b}
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// KindOf returns the Kind of err, or 0 if err is not an AuthError.
func KindOf(err error) Kind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return 0
}

// IsRejected reports whether err is a terminal credential rejection.
func IsRejected(err error) bool {
	return KindOf(err) == KindRejected
}

// IsUnreachable reports whether err means the server could not be reached.
// Malformed responses count as unreachable for retry purposes.
func IsUnreachable(err error) bool {
	k := KindOf(err)
	return k == KindUnreachable || k == KindMalformedResponse
}
