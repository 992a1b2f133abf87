package key

import (
	"testing"
	"time"
)

func TestHealthCooldownTripsAtThreshold(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var h healthState

	for i := 0; i < DefaultFailureThreshold-1; i++ {
		if tripped := h.recordFailure(now, "server_error", DefaultFailureThreshold, DefaultCooldown); tripped {
			t.Fatalf("cooldown tripped too early at failure %d", i+1)
		}
		if !h.available(now) {
			t.Fatalf("key unavailable before threshold at failure %d", i+1)
		}
	}

	if tripped := h.recordFailure(now, "server_error", DefaultFailureThreshold, DefaultCooldown); !tripped {
		t.Fatal("expected cooldown to trip at threshold")
	}
	if h.available(now) {
		t.Fatal("key should be unavailable during cooldown")
	}
	if h.available(now.Add(DefaultCooldown - time.Second)) {
		t.Fatal("key should stay unavailable until cooldown elapses")
	}
	if !h.available(now.Add(DefaultCooldown)) {
		t.Fatal("key should become available once cooldown elapses")
	}
}

func TestHealthCounterPinnedAtThreshold(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var h healthState

	for i := 0; i < 10; i++ {
		h.recordFailure(now, "auth_error", DefaultFailureThreshold, DefaultCooldown)
	}
	if h.consecutiveFailures != DefaultFailureThreshold {
		t.Fatalf("counter should be pinned at %d, got %d", DefaultFailureThreshold, h.consecutiveFailures)
	}

	// A failure right after the cooldown elapses re-trips immediately.
	later := now.Add(DefaultCooldown + time.Second)
	if tripped := h.recordFailure(later, "auth_error", DefaultFailureThreshold, DefaultCooldown); !tripped {
		t.Fatal("failure after cooldown should re-trip")
	}
}

func TestHealthSuccessResets(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var h healthState

	for i := 0; i < DefaultFailureThreshold; i++ {
		h.recordFailure(now, "timeout", DefaultFailureThreshold, DefaultCooldown)
	}
	h.recordSuccess()

	if h.consecutiveFailures != 0 {
		t.Fatalf("expected counter reset, got %d", h.consecutiveFailures)
	}
	if !h.available(now) {
		t.Fatal("success should clear the cooldown")
	}
	if h.lastFailureReason != "" {
		t.Fatalf("expected failure reason cleared, got %q", h.lastFailureReason)
	}
}
