package telegram

import "github.com/harun/recondora/internal/ratelimit"

// RateLimiter limits recon requests per Telegram user id.
type RateLimiter = ratelimit.Limiter[int64]

// NewRateLimiter creates a rate limiter with the given per-user limits
func NewRateLimiter(requestsPerMinute, maxConcurrent int) *RateLimiter {
	return ratelimit.New[int64](requestsPerMinute, maxConcurrent)
}
