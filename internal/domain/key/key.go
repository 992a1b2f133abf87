package key

import (
	"strings"
	"sync"
	"time"
)

// Default budgets applied when a key config leaves a limit unset.
const (
	DefaultRequestsPerMinute = 60
	DefaultRequestsPerHour   = 3600
	DefaultRequestsPerDay    = 86400
	DefaultPriority          = 1
)

// Config is the static configuration for one credential.
type Config struct {
	// Credential is the secret used against the upstream provider. It is
	// never logged in cleartext; use Redact or the key fingerprint.
	Credential string

	// Name is a human-readable label. Falls back to a redacted credential
	// fingerprint when empty.
	Name string

	MaxRequestsPerMinute int
	MaxRequestsPerHour   int
	MaxRequestsPerDay    int

	// Priority orders selection; lower values are tried first. Ties are
	// broken by insertion order.
	Priority int

	// Enabled is the administrative switch. Disabled keys are never
	// selected regardless of capacity.
	Enabled bool
}

func (c Config) withDefaults() Config {
	if c.MaxRequestsPerMinute <= 0 {
		c.MaxRequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.MaxRequestsPerHour <= 0 {
		c.MaxRequestsPerHour = DefaultRequestsPerHour
	}
	if c.MaxRequestsPerDay <= 0 {
		c.MaxRequestsPerDay = DefaultRequestsPerDay
	}
	if c.Priority <= 0 {
		c.Priority = DefaultPriority
	}
	return c
}

// Redact returns a short fingerprint of a credential safe for logs and
// snapshots.
func Redact(credential string) string {
	trimmed := strings.TrimSpace(credential)
	if len(trimmed) <= 8 {
		return strings.Repeat("*", len(trimmed))
	}
	return trimmed[:8] + "..."
}

// RejectReason explains why the selector passed over a key.
type RejectReason string

const (
	RejectDisabled     RejectReason = "disabled"
	RejectCoolingDown  RejectReason = "cooling_down"
	RejectRateWindow   RejectReason = "rate_window_exhausted"
	RejectAlreadyTried RejectReason = "already_tried"
)

// Key is one credential with its rate windows and health state. All mutable
// state is guarded by mu; the availability check and the window reservation
// happen under a single lock acquisition so two concurrent selections can
// never both reserve the last slot.
type Key struct {
	cfg   Config
	order int

	mu       sync.Mutex
	windows  [3]rateWindow
	health   healthState
	lastUsed time.Time

	failureThreshold int
	cooldown         time.Duration
}

func newKey(cfg Config, order, failureThreshold int, cooldown time.Duration) *Key {
	cfg = cfg.withDefaults()
	return &Key{
		cfg:   cfg,
		order: order,
		windows: [3]rateWindow{
			{span: time.Minute, limit: cfg.MaxRequestsPerMinute},
			{span: time.Hour, limit: cfg.MaxRequestsPerHour},
			{span: 24 * time.Hour, limit: cfg.MaxRequestsPerDay},
		},
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

// Credential returns the secret for use in the outbound request.
func (k *Key) Credential() string { return k.cfg.Credential }

// Name returns the display name, falling back to a redacted fingerprint.
func (k *Key) Name() string {
	if k.cfg.Name != "" {
		return k.cfg.Name
	}
	return Redact(k.cfg.Credential)
}

// Priority returns the configured selection priority.
func (k *Key) Priority() int { return k.cfg.Priority }

// TryAcquire atomically checks the administrative switch, the cooldown timer
// and every rate window, and reserves one slot in each window when all checks
// pass. On rejection nothing is recorded.
func (k *Key) TryAcquire(now time.Time) (bool, RejectReason) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.cfg.Enabled {
		return false, RejectDisabled
	}
	if !k.health.available(now) {
		return false, RejectCoolingDown
	}
	for i := range k.windows {
		if !k.windows[i].hasCapacity(now) {
			return false, RejectRateWindow
		}
	}
	for i := range k.windows {
		k.windows[i].record(now)
	}
	k.lastUsed = now
	return true, ""
}

// RecordSuccess clears the failure counter and any cooldown.
func (k *Key) RecordSuccess() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.health.recordSuccess()
}

// RecordFailure bumps the consecutive-failure counter. Returns true when this
// failure tripped the cooldown.
func (k *Key) RecordFailure(now time.Time, reason string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.health.recordFailure(now, reason, k.failureThreshold, k.cooldown)
}

// Available reports whether the key would currently pass the health and
// capacity checks, without reserving anything.
func (k *Key) Available(now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cfg.Enabled || !k.health.available(now) {
		return false
	}
	for i := range k.windows {
		if !k.windows[i].hasCapacity(now) {
			return false
		}
	}
	return true
}

// adoptState copies window timestamps and health state from a previous
// incarnation of the same credential. Used when a pool is re-registered so
// usage counters survive configuration reloads.
func (k *Key) adoptState(old *Key) {
	old.mu.Lock()
	windows := old.windows
	health := old.health
	lastUsed := old.lastUsed
	old.mu.Unlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.windows {
		k.windows[i].stamps = append([]time.Time(nil), windows[i].stamps...)
	}
	k.health = health
	k.lastUsed = lastUsed
}
