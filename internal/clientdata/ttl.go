package clientdata

import "time"

// TTL constants for the cache tables.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLPrice bounds how long a cached price quote is served without
	// refetching from the oracle. Short-lived: prices move within a session.
	TTLPrice = 10 * time.Minute

	// TTLTechnicalSnapshot bounds how long a computed SMA/RSI snapshot is
	// reused across Projector dispatches before projection recomputes it.
	TTLTechnicalSnapshot = time.Hour
)
