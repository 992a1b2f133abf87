package key

import "time"

// Snapshot is a point-in-time view of one key's counters and health, for
// dashboards and telemetry. Field names mirror the usage surface exposed to
// operators; the credential itself never appears.
type Snapshot struct {
	Name                string     `json:"name"`
	Fingerprint         string     `json:"fingerprint"`
	Priority            int        `json:"priority"`
	Enabled             bool       `json:"enabled"`
	RequestsThisMinute  int        `json:"requests_this_minute"`
	RequestsThisHour    int        `json:"requests_this_hour"`
	RequestsThisDay     int        `json:"requests_this_day"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	DisabledUntil       *time.Time `json:"disabled_until,omitempty"`
	LastUsed            *time.Time `json:"last_used,omitempty"`
	Available           bool       `json:"available"`
}

// Snapshot returns per-key usage views. Each key is locked only briefly and
// independently, so a snapshot taken during active dispatch is eventually
// consistent rather than a single atomic observation of the whole pool.
func (p *Pool) Snapshot(now time.Time) []Snapshot {
	result := make([]Snapshot, 0, len(p.keys))
	for _, k := range p.keys {
		result = append(result, k.snapshot(now))
	}
	return result
}

func (k *Key) snapshot(now time.Time) Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()

	s := Snapshot{
		Name:                k.Name(),
		Fingerprint:         Redact(k.cfg.Credential),
		Priority:            k.cfg.Priority,
		Enabled:             k.cfg.Enabled,
		RequestsThisMinute:  k.windows[0].count(now),
		RequestsThisHour:    k.windows[1].count(now),
		RequestsThisDay:     k.windows[2].count(now),
		ConsecutiveFailures: k.health.consecutiveFailures,
	}
	if !k.health.disabledUntil.IsZero() && now.Before(k.health.disabledUntil) {
		until := k.health.disabledUntil
		s.DisabledUntil = &until
	}
	if !k.lastUsed.IsZero() {
		used := k.lastUsed
		s.LastUsed = &used
	}
	s.Available = k.cfg.Enabled && k.health.available(now)
	if s.Available {
		for i := range k.windows {
			if !k.windows[i].hasCapacity(now) {
				s.Available = false
				break
			}
		}
	}
	return s
}
