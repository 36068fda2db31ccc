package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute, func() time.Time { return now })

	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))
	assert.True(t, rl.Allow(2), "limits are per user")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow(1))

	now = now.Add(2 * time.Minute)
	rl.sweep()
	assert.Empty(t, rl.requests)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0, time.Minute, time.Now)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow(1))
	}
}

func TestRecoverFromPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverFromPanic(7)
		panic("boom")
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "абв", truncate("абв", 5))
	assert.Equal(t, "аб...", truncate("абвгд", 2))
}
