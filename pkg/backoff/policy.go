// Package backoff computes retry delays for failed jobs.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max bounds the computed delay from above.
	Max time.Duration
	// Factor is the exponential growth applied per attempt.
	Factor float64
	// Jitter is the randomization fraction (0.0 to 1.0) added on top of the
	// base delay. Keeping Factor > 1+Jitter keeps delays monotonic in the
	// attempt number even at jitter extremes.
	Jitter float64
}

// Delay computes the retry delay for the given attempt number. Attempts
// start at 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand computes the delay using a supplied random value in
// [0.0, 1.0), so tests can pin the jitter.
func (p Policy) DelayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	jitter := base * p.Jitter * randomValue
	total := math.Min(float64(p.Max), base+jitter)
	return time.Duration(total).Round(time.Millisecond)
}

// QueuePolicy returns the delay schedule used for job retries.
// Initial: 10s, Max: 10m, Factor: 3, Jitter: 20%.
func QueuePolicy() Policy {
	return Policy{
		Initial: 10 * time.Second,
		Max:     10 * time.Minute,
		Factor:  3,
		Jitter:  0.2,
	}
}
