package domain

type contextKey string

// Context keys set by the auth middleware and read by handlers.
const (
	RequesterPeerCtxKey  contextKey = "ocpi-requesterPeer"
	RequesterTokenCtxKey contextKey = "ocpi-requesterToken"
)

// Protocol headers.
const (
	AuthorizationHeader = "Authorization"
	TokenScheme         = "Token"
	RequestIDHeader     = "X-Request-ID"
	CorrelationIDHeader = "X-Correlation-ID"
	TotalCountHeader    = "X-Total-Count"
	LimitHeader         = "X-Limit"
	LinkHeader          = "Link"
)
