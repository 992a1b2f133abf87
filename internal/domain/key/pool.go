package key

import (
	"fmt"
	"sort"
	"time"
)

// Options tune pool-wide health behaviour. Zero values fall back to the
// package defaults.
type Options struct {
	Clock            Clock
	FailureThreshold int
	Cooldown         time.Duration
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	return o
}

// Pool is the ordered set of keys for one provider scope. It is constructed
// once and then shared by every in-flight request targeting that scope; all
// per-key state is synchronized inside Key.
type Pool struct {
	scope string
	keys  []*Key
	clock Clock
}

// NewPool builds a pool from the given configs, sorted by ascending priority
// with insertion order breaking ties.
func NewPool(scope string, cfgs []Config, opts Options) *Pool {
	opts = opts.withDefaults()
	keys := make([]*Key, 0, len(cfgs))
	for i, cfg := range cfgs {
		keys = append(keys, newKey(cfg, i, opts.FailureThreshold, opts.Cooldown))
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].cfg.Priority != keys[j].cfg.Priority {
			return keys[i].cfg.Priority < keys[j].cfg.Priority
		}
		return keys[i].order < keys[j].order
	})
	return &Pool{scope: scope, keys: keys, clock: opts.Clock}
}

// Scope returns the provider scope this pool serves.
func (p *Pool) Scope() string { return p.scope }

// Len returns the number of keys in the pool, usable or not.
func (p *Pool) Len() int { return len(p.keys) }

// Rejection records why one key was passed over during selection.
type Rejection struct {
	Key    string
	Reason RejectReason
}

// NoKeyAvailableError reports that no key passed the health and capacity
// checks, with per-key diagnostics for caller-visible error reporting.
type NoKeyAvailableError struct {
	Scope      string
	Total      int
	Rejections []Rejection

	// RetryAfter is the earliest instant a cooling-down key becomes
	// eligible again, when one exists.
	RetryAfter time.Time

	// LastFailureReason is the most recently recorded failure reason among
	// cooling-down keys, when one exists.
	LastFailureReason string
}

func (e *NoKeyAvailableError) Error() string {
	var disabled, cooling, exhausted, tried int
	for _, r := range e.Rejections {
		switch r.Reason {
		case RejectDisabled:
			disabled++
		case RejectCoolingDown:
			cooling++
		case RejectRateWindow:
			exhausted++
		case RejectAlreadyTried:
			tried++
		}
	}
	return fmt.Sprintf("no usable key in pool %q: %d keys (%d disabled, %d cooling down, %d rate-window exhausted, %d already tried)",
		e.Scope, e.Total, disabled, cooling, exhausted, tried)
}

// AllCoolingDown reports whether every administratively enabled key was
// rejected because of its cooldown timer.
func (e *NoKeyAvailableError) AllCoolingDown() bool {
	cooling := 0
	for _, r := range e.Rejections {
		switch r.Reason {
		case RejectCoolingDown:
			cooling++
		case RejectRateWindow:
			return false
		}
	}
	return cooling > 0
}

// Acquire selects the highest-priority key that passes health checks and has
// capacity in every rate window, reserving the usage slot in the same step.
// Returns *NoKeyAvailableError when every key is rejected.
func (p *Pool) Acquire(now time.Time) (*Key, error) {
	return p.AcquireExcept(now, nil)
}

// AcquireExcept behaves like Acquire but skips the given keys. The dispatcher
// uses it to rotate within one request: a key the provider just rejected must
// stay out of consideration even though its local windows and health checks
// may still pass.
func (p *Pool) AcquireExcept(now time.Time, skip map[*Key]bool) (*Key, error) {
	rejections := make([]Rejection, 0, len(p.keys))
	var retryAfter time.Time
	var lastFailureReason string
	var lastFailureAt time.Time

	for _, k := range p.keys {
		if skip[k] {
			rejections = append(rejections, Rejection{Key: k.Name(), Reason: RejectAlreadyTried})
			continue
		}
		ok, reason := k.TryAcquire(now)
		if ok {
			return k, nil
		}
		rejections = append(rejections, Rejection{Key: k.Name(), Reason: reason})
		if reason == RejectCoolingDown {
			k.mu.Lock()
			until := k.health.disabledUntil
			failReason := k.health.lastFailureReason
			failAt := k.health.lastFailureAt
			k.mu.Unlock()
			if retryAfter.IsZero() || until.Before(retryAfter) {
				retryAfter = until
			}
			if failReason != "" && failAt.After(lastFailureAt) {
				lastFailureAt = failAt
				lastFailureReason = failReason
			}
		}
	}

	return nil, &NoKeyAvailableError{
		Scope:             p.scope,
		Total:             len(p.keys),
		Rejections:        rejections,
		RetryAfter:        retryAfter,
		LastFailureReason: lastFailureReason,
	}
}

// adoptFrom carries window and health state over from an older pool for keys
// matching by credential identity.
func (p *Pool) adoptFrom(old *Pool) {
	if old == nil {
		return
	}
	byCredential := make(map[string]*Key, len(old.keys))
	for _, k := range old.keys {
		byCredential[k.cfg.Credential] = k
	}
	for _, k := range p.keys {
		if prev, ok := byCredential[k.cfg.Credential]; ok {
			k.adoptState(prev)
		}
	}
}

// AdoptState preserves usage counters across a configuration reload.
func (p *Pool) AdoptState(old *Pool) { p.adoptFrom(old) }
