package ingestion

import (
	"math"
	"math/rand"
	"time"
)

// backoff returns base for the first failure and doubles per consecutive
// failure, capped at maxBackoff. With maxBackoff == base the wait is fixed.
func backoff(failures int, base, maxBackoff time.Duration) time.Duration {
	if failures <= 0 {
		return 0
	}
	f := math.Pow(2, float64(failures-1)) * float64(base)
	if f >= float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(f)
}

// jitter draws uniformly from [0, maxJitter]. Without a source it adds nothing.
func jitter(r *rand.Rand, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 || r == nil {
		return 0
	}
	return time.Duration(r.Int63n(int64(maxJitter) + 1)) //nolint:gosec
}
