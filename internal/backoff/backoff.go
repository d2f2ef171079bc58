package backoff

import (
	"math"
	"math/rand"
	"time"
)

const (
	Fixed          = "fixed"
	Linear         = "linear"
	Exponential    = "exponential"
	ExpEqualJitter = "exp_equal_jitter"
	ExpFullJitter  = "exp_full_jitter"
)

// Policy computes wait durations between attempts.
type Policy struct {
	Name string
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the next attempt. attempts is the number of
// attempts already made and is expected to be >= 0. A nil rng draws jitter from
// the shared, randomly seeded source.
func (p Policy) Delay(attempts int, rng *rand.Rand) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	maxDelay := p.Max
	if maxDelay <= 0 {
		maxDelay = base
	}
	switch p.Name {
	case Fixed, "":
		return minDuration(base, maxDelay)
	case Linear:
		return minDuration(base*time.Duration(maxInt(1, attempts)), maxDelay)
	case Exponential:
		return exponential(base, maxDelay, attempts)
	case ExpEqualJitter:
		d := exponential(base, maxDelay, attempts)
		half := d / 2
		return half + time.Duration(int63n(rng, int64(half)+1))
	default: // exp_full_jitter
		d := exponential(base, maxDelay, attempts)
		if d <= 0 {
			return 0
		}
		return time.Duration(int63n(rng, int64(d)+1))
	}
}

func int63n(rng *rand.Rand, n int64) int64 {
	if rng == nil {
		return rand.Int63n(n)
	}
	return rng.Int63n(n)
}

func exponential(base, maxDelay time.Duration, attempts int) time.Duration {
	f := float64(base) * math.Pow(2, float64(attempts))
	if f >= float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(f)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
