package telegram

import (
	"testing"

	"github.com/harun/recondora/internal/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPerUser(t *testing.T) {
	r := NewRateLimiter(1, 0)

	ok, _ := r.Acquire(1)
	assert.True(t, ok)
	r.Release(1)

	ok, reason := r.Acquire(1)
	assert.False(t, ok)
	assert.Equal(t, ratelimit.ReasonRate, reason)

	ok, _ = r.Acquire(2)
	assert.True(t, ok, "limits are per user")
}

func TestRateLimiterNil(t *testing.T) {
	var r *RateLimiter
	ok, reason := r.Acquire(1)
	assert.True(t, ok)
	assert.Empty(t, reason)
	r.Release(1)
}
