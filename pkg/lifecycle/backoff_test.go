package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesUpToCap(t *testing.T) {
	b := Backoff{Base: time.Minute, Max: 10 * time.Minute}

	assert.Equal(t, time.Minute, b.Delay(0))
	assert.Equal(t, time.Minute, b.Delay(1))
	assert.Equal(t, 2*time.Minute, b.Delay(2))
	assert.Equal(t, 4*time.Minute, b.Delay(3))
	assert.Equal(t, 8*time.Minute, b.Delay(4))
	assert.Equal(t, 10*time.Minute, b.Delay(5))
	assert.Equal(t, 10*time.Minute, b.Delay(60))
}

func TestBackoffJitterStaysInBand(t *testing.T) {
	low := Backoff{Base: time.Minute, Max: time.Hour, Jitter: 0.2, rand: func() float64 { return 0 }}
	high := Backoff{Base: time.Minute, Max: time.Hour, Jitter: 0.2, rand: func() float64 { return 1 }}

	assert.Equal(t, 48*time.Second, low.Delay(1))
	assert.Equal(t, 72*time.Second, high.Delay(1))

	b := DefaultBackoff()
	for i := 0; i < 100; i++ {
		d := b.Delay(3)
		assert.GreaterOrEqual(t, d, time.Duration(float64(4*time.Minute)*0.8))
		assert.LessOrEqual(t, d, time.Duration(float64(4*time.Minute)*1.2))
	}
}
