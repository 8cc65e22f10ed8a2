package auth

import "time"

// State holds the most recently obtained access token and its expiry.
// ExpiresAt already has the configured safety margin subtracted, so a token
// is never handed out during its final moments before actual expiry.
// Replaced wholesale on every refresh, never partially mutated.
type State struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token can still be used at the given instant.
func (s State) Valid(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.ExpiresAt)
}
