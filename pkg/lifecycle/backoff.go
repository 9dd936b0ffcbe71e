package lifecycle

import (
	"math/rand"
	"time"
)

// Backoff computes retry delays as min(Base*2^(attempt-1), Max), spread by
// +/- Jitter (a fraction of the delay).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	rand func() float64
}

func DefaultBackoff() Backoff {
	return Backoff{Base: time.Minute, Max: time.Hour, Jitter: 0.2}
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = time.Minute
	}
	limit := b.Max
	if limit < base {
		limit = base
	}

	delay := base
	for i := 1; i < attempt && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}

	if b.Jitter > 0 {
		r := rand.Float64
		if b.rand != nil {
			r = b.rand
		}
		spread := float64(delay) * b.Jitter
		delay += time.Duration(spread * (2*r() - 1))
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
