// Package retry implements the single generic backoff policy shared by the
// Classifier pre-processing pass and the per-worker dispatcher (spec §9:
// "a single generic policy object ... reused").
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy is an exponential-backoff-with-jitter schedule. Jitter draws from
// a caller-supplied *rand.Rand so tests can seed it for deterministic
// delays.
type Policy struct {
	BaseDelay  time.Duration
	Factor     float64
	CapDelay   time.Duration
	Jitter     float64 // fraction, e.g. 0.2 for ±20%
	MaxAttempts int

	rnd *rand.Rand
}

// New builds a Policy. rnd may be nil, in which case a time-seeded source
// is used; tests should pass rand.New(rand.NewSource(seed)) for
// determinism.
func New(base time.Duration, factor float64, cap time.Duration, jitter float64, maxAttempts int, rnd *rand.Rand) *Policy {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Policy{
		BaseDelay:   base,
		Factor:      factor,
		CapDelay:    cap,
		Jitter:      jitter,
		MaxAttempts: maxAttempts,
		rnd:         rnd,
	}
}

// Delay returns the backoff delay before retry attempt number `attempt`
// (1-indexed: attempt=1 is the delay before the second overall try).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if cap := float64(p.CapDelay); d > cap {
		d = cap
	}

	if p.Jitter > 0 {
		// signed jitter fraction in [-Jitter, +Jitter]
		frac := (p.rnd.Float64()*2 - 1) * p.Jitter
		d = d * (1 + frac)
		if d < 0 {
			d = 0
		}
	}

	return time.Duration(d)
}
