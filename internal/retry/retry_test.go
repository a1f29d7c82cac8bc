package retry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func defaultPolicy(rnd *rand.Rand) *Policy {
	return New(500*time.Millisecond, 2, 8*time.Second, 0.2, 3, rnd)
}

func TestDelay_Exponential(t *testing.T) {
	p := defaultPolicy(rand.New(rand.NewSource(1)))

	// With jitter present exact equality isn't meaningful; check growth
	// trend across many samples by disabling jitter for this check.
	p.Jitter = 0
	assert.Equal(t, 500*time.Millisecond, p.Delay(1))
	assert.Equal(t, 1000*time.Millisecond, p.Delay(2))
	assert.Equal(t, 2000*time.Millisecond, p.Delay(3))
}

func TestDelay_CapsAtMax(t *testing.T) {
	p := defaultPolicy(rand.New(rand.NewSource(1)))
	p.Jitter = 0

	d := p.Delay(10)
	assert.Equal(t, 8*time.Second, d)
}

func TestDelay_JitterWithinBounds(t *testing.T) {
	p := defaultPolicy(rand.New(rand.NewSource(42)))

	base := 500 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8)-time.Millisecond)
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.2)+time.Millisecond)
	}
}

func TestDelay_Deterministic_WithSeededSource(t *testing.T) {
	p1 := defaultPolicy(rand.New(rand.NewSource(7)))
	p2 := defaultPolicy(rand.New(rand.NewSource(7)))

	for attempt := 1; attempt <= 3; attempt++ {
		assert.Equal(t, p1.Delay(attempt), p2.Delay(attempt))
	}
}

func TestNew_NilRandDoesNotPanic(t *testing.T) {
	p := New(time.Millisecond, 2, time.Second, 0.1, 3, nil)
	assert.NotPanics(t, func() {
		p.Delay(1)
	})
}
