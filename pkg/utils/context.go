package utils

type contextKey string

const (
	// TrustLoggerContextKey carries the request-scoped logger through
	// endpoint and service layers.
	TrustLoggerContextKey contextKey = "TrustLogger"
)
