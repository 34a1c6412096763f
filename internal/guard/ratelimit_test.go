package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		rl := NewRateLimiter(3, time.Minute)
		assert.True(t, rl.Allow("p1"))
		assert.True(t, rl.Allow("p1"))
		assert.True(t, rl.Allow("p1"))
		assert.False(t, rl.Allow("p1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl := NewRateLimiter(1, time.Minute)
		assert.True(t, rl.Allow("p1"))
		assert.True(t, rl.Allow("p2"))
		assert.False(t, rl.Allow("p1"))
	})

	t.Run("window slides", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		rl := NewRateLimiter(2, time.Second)
		rl.now = func() time.Time { return now }

		assert.True(t, rl.Allow("p1"))
		assert.True(t, rl.Allow("p1"))
		assert.False(t, rl.Allow("p1"))

		now = now.Add(1100 * time.Millisecond)
		assert.True(t, rl.Allow("p1"))
	})

	t.Run("rejections do not extend the window", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		rl := NewRateLimiter(1, time.Second)
		rl.now = func() time.Time { return now }

		assert.True(t, rl.Allow("p1"))
		for i := 0; i < 5; i++ {
			now = now.Add(100 * time.Millisecond)
			assert.False(t, rl.Allow("p1"))
		}
		now = now.Add(600 * time.Millisecond)
		assert.True(t, rl.Allow("p1"))
	})
}
