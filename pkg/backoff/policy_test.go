package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayWithRand(t *testing.T) {
	p := Policy{Initial: 10 * time.Second, Max: 10 * time.Minute, Factor: 3, Jitter: 0}

	assert.Equal(t, 10*time.Second, p.DelayWithRand(1, 0.5))
	assert.Equal(t, 30*time.Second, p.DelayWithRand(2, 0.5))
	assert.Equal(t, 90*time.Second, p.DelayWithRand(3, 0.5))
	assert.Equal(t, 270*time.Second, p.DelayWithRand(4, 0.5))
}

func TestDelayClampsToMax(t *testing.T) {
	p := Policy{Initial: 10 * time.Second, Max: 1 * time.Minute, Factor: 3, Jitter: 0}

	assert.Equal(t, 1*time.Minute, p.DelayWithRand(5, 0))
	assert.Equal(t, 1*time.Minute, p.DelayWithRand(50, 0.99))
}

func TestDelayJitterBounds(t *testing.T) {
	p := Policy{Initial: 10 * time.Second, Max: 10 * time.Minute, Factor: 3, Jitter: 0.2}

	noJitter := p.DelayWithRand(2, 0)
	fullJitter := p.DelayWithRand(2, 0.999)

	assert.Equal(t, 30*time.Second, noJitter)
	assert.Greater(t, fullJitter, noJitter)
	assert.LessOrEqual(t, fullJitter, 36*time.Second)
}

func TestDelayMonotonicAcrossJitterExtremes(t *testing.T) {
	p := QueuePolicy()

	// Worst case for monotonicity: maximal jitter at attempt n, zero at n+1.
	for attempt := 1; attempt < 8; attempt++ {
		high := p.DelayWithRand(attempt, 0.999)
		nextLow := p.DelayWithRand(attempt+1, 0)
		if nextLow >= p.Max {
			break
		}
		assert.Greater(t, nextLow, high, "attempt %d", attempt)
	}
}

func TestDelayFirstAttemptFloor(t *testing.T) {
	p := QueuePolicy()

	// Attempt numbers below 1 behave like attempt 1.
	assert.Equal(t, p.DelayWithRand(1, 0), p.DelayWithRand(0, 0))
	assert.Equal(t, p.DelayWithRand(1, 0), p.DelayWithRand(-3, 0))
}
