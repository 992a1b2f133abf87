package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"keygate/internal/domain/key"
)

// ErrPoolNotFound is returned when a provider scope has no registered pool.
var ErrPoolNotFound = errors.New("key pool not registered")

// Registry owns the key pools, one per provider scope, and is the object the
// surrounding platform injects wherever dispatch is needed. There is no
// ambient global; callers hold a *Registry.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*key.Pool

	dispatcher *Dispatcher
	opts       key.Options
	logger     zerolog.Logger
}

func NewRegistry(dispatcher *Dispatcher, opts key.Options, logger zerolog.Logger) *Registry {
	if opts.Clock == nil {
		opts.Clock = key.SystemClock
	}
	return &Registry{
		pools:      make(map[string]*key.Pool),
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
	}
}

// RegisterPool installs the key configuration for a provider scope. It is
// idempotent: re-registering replaces static configuration but carries
// window and health state over for keys matching by credential identity.
func (r *Registry) RegisterPool(scope string, cfgs []key.Config) *key.Pool {
	pool := key.NewPool(scope, cfgs, r.opts)

	r.mu.Lock()
	if old, ok := r.pools[scope]; ok {
		pool.AdoptState(old)
	}
	r.pools[scope] = pool
	r.mu.Unlock()

	r.logger.Info().
		Str("scope", scope).
		Int("keys", pool.Len()).
		Msg("registered key pool")
	return pool
}

// Pool returns the pool for a scope.
func (r *Registry) Pool(scope string) (*key.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.pools[scope]
	return pool, ok
}

// Scopes lists the registered provider scopes.
func (r *Registry) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	scopes := make([]string, 0, len(r.pools))
	for scope := range r.pools {
		scopes = append(scopes, scope)
	}
	return scopes
}

// ExecuteScoped is the single call site for higher-level request logic: it
// resolves the pool for the scope and dispatches fn through it.
func ExecuteScoped[T any](ctx context.Context, r *Registry, scope string, fn RequestFunc[T]) (T, error) {
	var zero T
	pool, ok := r.Pool(scope)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrPoolNotFound, scope)
	}
	return Execute(ctx, r.dispatcher, pool, fn)
}

// UsageSnapshot returns per-key usage for a scope's dashboard/telemetry view.
func (r *Registry) UsageSnapshot(scope string) ([]key.Snapshot, error) {
	pool, ok := r.Pool(scope)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, scope)
	}
	return pool.Snapshot(r.opts.Clock.Now()), nil
}
