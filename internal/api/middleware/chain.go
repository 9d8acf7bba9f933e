package middleware

import (
	"log/slog"
	"net/http"

	"github.com/dcsp-io/dcsp/internal/adminauth"
)

// Option configures a middleware chain applied by Apply.
type Option func(http.Handler) http.Handler

// Apply wraps handler with each option, outermost option first — i.e.
// the first option in the list runs first on the way in, last on the
// way out.
func Apply(handler http.Handler, options ...Option) http.Handler {
	wrapped := handler
	for i := len(options) - 1; i >= 0; i-- {
		wrapped = options[i](wrapped)
	}

	return wrapped
}

// WithCorrelationID stamps every request with a correlation id.
func WithCorrelationID() Option {
	return CorrelationID()
}

// WithRecovery recovers from handler panics.
func WithRecovery(logger *slog.Logger) Option {
	return Recovery(logger)
}

// WithAdminAuth requires a verified admin API key. Pass a nil store to
// disable auth entirely (local development only).
func WithAdminAuth(store *adminauth.Store, logger *slog.Logger) Option {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return Auth(store, logger)
}

// WithRateLimit enforces the configured request budget.
func WithRateLimit(limiter RateLimiter) Option {
	return RateLimit(limiter)
}

// WithRequestLogger logs each request's method, path, status and latency.
func WithRequestLogger(logger *slog.Logger) Option {
	return RequestLogger(logger)
}

// WithCORS applies the configured CORS policy.
func WithCORS(cfg CORSConfig) Option {
	return CORS(cfg)
}
