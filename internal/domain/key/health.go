package key

import "time"

const (
	// DefaultFailureThreshold is the number of consecutive failures after
	// which a key is put on cooldown.
	DefaultFailureThreshold = 3
	// DefaultCooldown is how long a tripped key stays unselectable.
	DefaultCooldown = 5 * time.Minute
)

// healthState tracks consecutive failures and the temporary-disable timer for
// one key. All access goes through the owning Key's mutex.
type healthState struct {
	consecutiveFailures int
	disabledUntil       time.Time
	lastFailureReason   string
	lastFailureAt       time.Time
}

// available reports whether the cooldown timer, if set, has elapsed.
func (h *healthState) available(now time.Time) bool {
	return h.disabledUntil.IsZero() || !now.Before(h.disabledUntil)
}

func (h *healthState) recordSuccess() {
	h.consecutiveFailures = 0
	h.disabledUntil = time.Time{}
	h.lastFailureReason = ""
}

// recordFailure bumps the failure counter and trips the cooldown when the
// threshold is reached. The counter is pinned at the threshold so repeated
// failures on an already-tripped key need no special casing. Returns true
// when this failure starts (or extends) a cooldown.
func (h *healthState) recordFailure(now time.Time, reason string, threshold int, cooldown time.Duration) bool {
	if h.consecutiveFailures < threshold {
		h.consecutiveFailures++
	}
	h.lastFailureReason = reason
	h.lastFailureAt = now
	if h.consecutiveFailures >= threshold {
		h.disabledUntil = now.Add(cooldown)
		return true
	}
	return false
}
