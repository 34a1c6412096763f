package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorOf(t *testing.T) {
	t.Run("zero is green", func(t *testing.T) {
		assert.Equal(t, ColorGreen, ColorOf(0))
	})

	t.Run("odd indices are red", func(t *testing.T) {
		for i := 1; i <= 35; i += 2 {
			assert.Equal(t, ColorRed, ColorOf(i), "index %d", i)
		}
	})

	t.Run("even non-zero indices are black", func(t *testing.T) {
		for i := 2; i <= 36; i += 2 {
			assert.Equal(t, ColorBlack, ColorOf(i), "index %d", i)
		}
	})

	t.Run("exactly one green position", func(t *testing.T) {
		greens := 0
		for i := 0; i < WheelPositions; i++ {
			if ColorOf(i) == ColorGreen {
				greens++
			}
		}
		assert.Equal(t, 1, greens)
	})
}

func TestValidIndex(t *testing.T) {
	assert.True(t, ValidIndex(0))
	assert.True(t, ValidIndex(36))
	assert.False(t, ValidIndex(-1))
	assert.False(t, ValidIndex(37))
}
