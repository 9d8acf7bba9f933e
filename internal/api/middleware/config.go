package middleware

import "github.com/dcsp-io/dcsp/internal/config"

// RateLimitConfig controls the InMemoryRateLimiter's budgets.
type RateLimitConfig struct {
	GlobalRPS int
	CallerRPS int
}

// LoadRateLimitConfig reads rate-limit tuning from the environment,
// falling back to InMemoryRateLimiter's own defaults when unset.
func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		GlobalRPS: config.GetEnvInt("DCSP_RATE_LIMIT_GLOBAL_RPS", defaultGlobalRPS),
		CallerRPS: config.GetEnvInt("DCSP_RATE_LIMIT_CALLER_RPS", defaultCallerRPS),
	}
}
