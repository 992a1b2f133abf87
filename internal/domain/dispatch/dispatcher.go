package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"keygate/internal/domain/key"
	"keygate/internal/infrastructure/metrics"
)

// AllKeysExhaustedError means every key in the pool was tried for this
// request and failed. It carries the last underlying failure for diagnostics.
type AllKeysExhaustedError struct {
	Scope    string
	Attempts int
	Err      error
}

func (e *AllKeysExhaustedError) Error() string {
	return fmt.Sprintf("all keys exhausted for %q after %d attempts: %v", e.Scope, e.Attempts, e.Err)
}

func (e *AllKeysExhaustedError) Unwrap() error { return e.Err }

// RequestFunc performs the actual upstream call with the selected credential.
// It must return either a response or an error classifiable by Classify;
// clients built in this repo return *Failure directly.
type RequestFunc[T any] func(ctx context.Context, credential string) (T, error)

// Dispatcher orchestrates key selection, upstream invocation, failure
// classification and rotation. It holds no per-request state and is safe for
// concurrent use.
type Dispatcher struct {
	clock   key.Clock
	backoff BackoffPolicy
	logger  zerolog.Logger
}

func NewDispatcher(clock key.Clock, backoff BackoffPolicy, logger zerolog.Logger) *Dispatcher {
	if clock == nil {
		clock = key.SystemClock
	}
	if backoff.MaxAttempts <= 0 {
		backoff = DefaultBackoffPolicy()
	}
	return &Dispatcher{clock: clock, backoff: backoff, logger: logger}
}

// Execute runs fn against the pool: it acquires a key (health check plus
// window reservation in one step), invokes fn without holding any lock, and
// on failure either retries the same key with backoff (server errors,
// timeouts) or rotates to the next one (rate limits, auth errors). Keys
// already tried within this call are never re-selected, so rotation always
// lands on a different key; the rotation budget equals the pool size.
func Execute[T any](ctx context.Context, d *Dispatcher, pool *key.Pool, fn RequestFunc[T]) (T, error) {
	var zero T

	budget := pool.Len()
	if budget == 0 {
		_, err := pool.Acquire(d.clock.Now())
		return zero, err
	}

	tried := make(map[*key.Key]bool, budget)
	var last *Failure
	for attempt := 0; attempt < budget; attempt++ {
		k, err := pool.AcquireExcept(d.clock.Now(), tried)
		if err != nil {
			var noKey *key.NoKeyAvailableError
			if errors.As(err, &noKey) {
				return zero, d.selectionFailure(noKey, last, attempt)
			}
			return zero, err
		}
		tried[k] = true

		result, failure := attemptKey(ctx, d, pool.Scope(), k, fn)
		if failure == nil {
			return result, nil
		}
		if failure.Kind == KindOther {
			return zero, failure
		}
		last = failure
		if ctx.Err() != nil {
			// The caller abandoned the request; the reservation stands
			// but there is no point rotating further.
			return zero, failure
		}
		if attempt+1 < budget {
			metrics.RecordRotation(pool.Scope(), string(failure.Kind))
			d.logger.Info().
				Str("scope", pool.Scope()).
				Str("key", k.Name()).
				Str("kind", string(failure.Kind)).
				Int("attempt", attempt+1).
				Msg("rotating to next key")
		}
	}

	return zero, &AllKeysExhaustedError{Scope: pool.Scope(), Attempts: budget, Err: last}
}

// attemptKey invokes fn for one acquired key, retrying in place for
// retriable failures. A nil Failure means success.
func attemptKey[T any](ctx context.Context, d *Dispatcher, scope string, k *key.Key, fn RequestFunc[T]) (T, *Failure) {
	var zero T
	for try := 1; ; try++ {
		result, err := fn(ctx, k.Credential())
		if err == nil {
			k.RecordSuccess()
			return result, nil
		}

		failure := Classify(err)
		if failure.Kind == KindOther {
			// Request-specific; not the key's fault, so health is
			// left untouched.
			return zero, failure
		}

		tripped := k.RecordFailure(d.clock.Now(), string(failure.Kind))
		metrics.RecordUpstreamFailure(scope, string(failure.Kind))
		if tripped {
			metrics.RecordCooldown(scope)
			d.logger.Warn().
				Str("scope", scope).
				Str("key", k.Name()).
				Str("kind", string(failure.Kind)).
				Msg("key entered cooldown after consecutive failures")
		}

		if failure.Kind.RetriesSameKey() && try < d.backoff.MaxAttempts {
			delay := d.backoff.Delay(try)
			d.logger.Warn().
				Str("scope", scope).
				Str("key", k.Name()).
				Str("kind", string(failure.Kind)).
				Int("attempt", try).
				Int("max_attempts", d.backoff.MaxAttempts).
				Dur("retry_delay", delay).
				Msg("retrying key after upstream error")
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return zero, Classify(sleepErr)
			}
			continue
		}

		return zero, failure
	}
}

// selectionFailure maps a failed selection to the caller-facing taxonomy.
// With failures already observed in this call the pool is exhausted; a pool
// whose every enabled key is cooling down from earlier failures is reported
// the same way, carrying the most recent recorded failure.
func (d *Dispatcher) selectionFailure(noKey *key.NoKeyAvailableError, last *Failure, attempts int) error {
	if last != nil {
		return &AllKeysExhaustedError{Scope: noKey.Scope, Attempts: attempts, Err: last}
	}
	if noKey.AllCoolingDown() {
		var lastErr error = noKey
		if noKey.LastFailureReason != "" {
			lastErr = NewFailure(FailureKind(noKey.LastFailureReason), "key cooling down after repeated failures")
		}
		return &AllKeysExhaustedError{Scope: noKey.Scope, Attempts: attempts, Err: lastErr}
	}
	return noKey
}
