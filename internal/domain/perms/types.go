package perms

// Reasons for denials that callers branch on.
const (
	ReasonMissingToken       = "missing bearer token"
	ReasonMalformedToken     = "malformed bearer token"
	ReasonTokenExpired       = "token expired"
	ReasonNotPermissioned    = "subject not permissioned"
	ReasonUpstreamDenied     = "permission denied by upstream"
	ReasonServiceUnavailable = "permission service unavailable"
)

// Decision is the outcome of a permission check for one request.
// Ephemeral; produced per request, never persisted beyond the decision
// cache.
type Decision struct {
	Allow   bool
	Subject string
	Reason  string
	// Unavailable marks a fail-closed denial caused by the check itself
	// not completing, as opposed to a positive rejection.
	Unavailable bool
}

func deny(reason string) *Decision {
	return &Decision{Allow: false, Reason: reason}
}

func unavailable() *Decision {
	return &Decision{Allow: false, Reason: ReasonServiceUnavailable, Unavailable: true}
}
