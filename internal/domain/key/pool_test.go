package key

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func testPool(t *testing.T, cfgs []Config) *Pool {
	t.Helper()
	return NewPool("test/scope", cfgs, Options{})
}

func TestAcquirePrefersLowerPriority(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testPool(t, []Config{
		{Credential: "sk-backup-00000000", Name: "backup", Priority: 2, Enabled: true},
		{Credential: "sk-primary-0000000", Name: "primary", Priority: 1, Enabled: true},
	})

	k, err := p.Acquire(now)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if k.Name() != "primary" {
		t.Fatalf("expected primary selected, got %s", k.Name())
	}
}

func TestAcquireBreaksTiesByInsertionOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testPool(t, []Config{
		{Credential: "sk-first-000000000", Name: "first", Priority: 1, Enabled: true},
		{Credential: "sk-second-00000000", Name: "second", Priority: 1, Enabled: true},
	})

	k, err := p.Acquire(now)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if k.Name() != "first" {
		t.Fatalf("expected insertion order to win ties, got %s", k.Name())
	}
}

func TestAcquireSkipsDisabledKeys(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testPool(t, []Config{
		{Credential: "sk-off-0000000000", Name: "off", Priority: 1, Enabled: false},
		{Credential: "sk-on-00000000000", Name: "on", Priority: 2, Enabled: true},
	})

	k, err := p.Acquire(now)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if k.Name() != "on" {
		t.Fatalf("disabled key must never be selected, got %s", k.Name())
	}
}

func TestAcquireFallsThroughWhenTopKeyExhausted(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testPool(t, []Config{
		{Credential: "sk-small-000000000", Name: "small", Priority: 1, MaxRequestsPerMinute: 1, Enabled: true},
		{Credential: "sk-big-0000000000", Name: "big", Priority: 2, Enabled: true},
	})

	first, err := p.Acquire(now)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if first.Name() != "small" {
		t.Fatalf("expected small first, got %s", first.Name())
	}

	second, err := p.Acquire(now)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if second.Name() != "big" {
		t.Fatalf("expected fallthrough to big, got %s", second.Name())
	}
}

func TestAcquireConcurrentSingleSlotKeys(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testPool(t, []Config{
		{Credential: "sk-a-000000000000", Name: "a", MaxRequestsPerMinute: 1, Enabled: true},
		{Credential: "sk-b-000000000000", Name: "b", MaxRequestsPerMinute: 1, Enabled: true},
	})

	var wg sync.WaitGroup
	picks := make(chan string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, err := p.Acquire(now)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			picks <- k.Name()
		}()
	}
	wg.Wait()
	close(picks)

	seen := map[string]bool{}
	for name := range picks {
		if seen[name] {
			t.Fatalf("key %s reserved twice for a single slot", name)
		}
		seen[name] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected both keys used once, got %v", seen)
	}
}

func TestAcquireExceptSkipsGivenKeys(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testPool(t, []Config{
		{Credential: "sk-first-000000000", Name: "first", Priority: 1, Enabled: true},
		{Credential: "sk-second-00000000", Name: "second", Priority: 2, Enabled: true},
	})

	first, err := p.Acquire(now)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if first.Name() != "first" {
		t.Fatalf("expected first, got %s", first.Name())
	}

	// With the top key excluded the next priority wins, even though the
	// excluded key still has capacity.
	second, err := p.AcquireExcept(now, map[*Key]bool{first: true})
	if err != nil {
		t.Fatalf("acquire except: %v", err)
	}
	if second.Name() != "second" {
		t.Fatalf("expected second, got %s", second.Name())
	}

	_, err = p.AcquireExcept(now, map[*Key]bool{first: true, second: true})
	var noKey *NoKeyAvailableError
	if !errors.As(err, &noKey) {
		t.Fatalf("expected NoKeyAvailableError, got %v", err)
	}
	for _, r := range noKey.Rejections {
		if r.Reason != RejectAlreadyTried {
			t.Fatalf("expected already_tried rejection, got %s", r.Reason)
		}
	}
}

func TestAcquireErrorDiagnostics(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testPool(t, []Config{
		{Credential: "sk-off-0000000000", Name: "off", Enabled: false},
		{Credential: "sk-tiny-000000000", Name: "tiny", MaxRequestsPerMinute: 1, Enabled: true},
	})

	if _, err := p.Acquire(now); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err := p.Acquire(now)
	var noKey *NoKeyAvailableError
	if !errors.As(err, &noKey) {
		t.Fatalf("expected NoKeyAvailableError, got %v", err)
	}
	if noKey.Total != 2 || len(noKey.Rejections) != 2 {
		t.Fatalf("expected diagnostics for both keys, got %+v", noKey)
	}
	if noKey.Rejections[0].Reason != RejectDisabled {
		t.Fatalf("expected disabled rejection first, got %s", noKey.Rejections[0].Reason)
	}
	if noKey.Rejections[1].Reason != RejectRateWindow {
		t.Fatalf("expected rate-window rejection, got %s", noKey.Rejections[1].Reason)
	}
	if noKey.AllCoolingDown() {
		t.Fatal("rate-window exhaustion must not count as cooling down")
	}
}

func TestAcquireAllCoolingDownCarriesRetryAfter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testPool(t, []Config{
		{Credential: "sk-only-000000000", Name: "only", Enabled: true},
	})

	k, err := p.Acquire(now)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	for i := 0; i < DefaultFailureThreshold; i++ {
		k.RecordFailure(now, "auth_error")
	}

	_, err = p.Acquire(now)
	var noKey *NoKeyAvailableError
	if !errors.As(err, &noKey) {
		t.Fatalf("expected NoKeyAvailableError, got %v", err)
	}
	if !noKey.AllCoolingDown() {
		t.Fatal("expected all enabled keys cooling down")
	}
	if got, want := noKey.RetryAfter, now.Add(DefaultCooldown); !got.Equal(want) {
		t.Fatalf("RetryAfter = %v, want %v", got, want)
	}
	if noKey.LastFailureReason != "auth_error" {
		t.Fatalf("LastFailureReason = %q, want auth_error", noKey.LastFailureReason)
	}
}

func TestSnapshotReflectsUsageAndHealth(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testPool(t, []Config{
		{Credential: "sk-live-abcdef1234", Name: "live", Enabled: true},
	})

	for i := 0; i < 3; i++ {
		if _, err := p.Acquire(now.Add(time.Duration(i) * time.Second)); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	snaps := p.Snapshot(now.Add(3 * time.Second))
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	s := snaps[0]
	if s.RequestsThisMinute != 3 || s.RequestsThisHour != 3 || s.RequestsThisDay != 3 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if s.Fingerprint != "sk-live-..." {
		t.Fatalf("fingerprint = %q", s.Fingerprint)
	}
	if s.DisabledUntil != nil {
		t.Fatal("healthy key must not report disabled_until")
	}
	if s.LastUsed == nil {
		t.Fatal("expected last_used to be set")
	}
	if !s.Available {
		t.Fatal("expected key available")
	}

	// A minute later the rolling windows have drained.
	later := p.Snapshot(now.Add(70 * time.Second))[0]
	if later.RequestsThisMinute != 0 {
		t.Fatalf("minute window should have drained, got %d", later.RequestsThisMinute)
	}
	if later.RequestsThisHour != 3 {
		t.Fatalf("hour window should still hold 3, got %d", later.RequestsThisHour)
	}
}

func TestSnapshotOmitsElapsedCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testPool(t, []Config{
		{Credential: "sk-trip-0000000000", Name: "trip", Enabled: true},
	})
	k, err := p.Acquire(now)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	for i := 0; i < DefaultFailureThreshold; i++ {
		k.RecordFailure(now, "server_error")
	}

	during := p.Snapshot(now.Add(time.Minute))[0]
	if during.DisabledUntil == nil || during.Available {
		t.Fatalf("expected cooling key, got %+v", during)
	}

	after := p.Snapshot(now.Add(DefaultCooldown + time.Second))[0]
	if after.DisabledUntil != nil {
		t.Fatal("elapsed cooldown must not be reported")
	}
	if !after.Available {
		t.Fatal("key should be available again after cooldown")
	}
}

func TestAdoptStatePreservesCountersAcrossReload(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	old := testPool(t, []Config{
		{Credential: "sk-keep-000000000", Name: "keep", MaxRequestsPerMinute: 2, Enabled: true},
	})
	if _, err := old.Acquire(now); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	fresh := testPool(t, []Config{
		{Credential: "sk-keep-000000000", Name: "renamed", MaxRequestsPerMinute: 2, Enabled: true},
		{Credential: "sk-new-0000000000", Name: "new", Enabled: true},
	})
	fresh.AdoptState(old)

	snaps := fresh.Snapshot(now)
	if snaps[0].RequestsThisMinute != 1 {
		t.Fatalf("expected carried-over counter 1, got %d", snaps[0].RequestsThisMinute)
	}
	if snaps[1].RequestsThisMinute != 0 {
		t.Fatalf("new key should start clean, got %d", snaps[1].RequestsThisMinute)
	}
}

func TestRedact(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "*****"},
		{"12345678", "********"},
		{"sk-live-abcdef1234", "sk-live-..."},
	}
	for _, tc := range cases {
		if got := Redact(tc.in); got != tc.want {
			t.Fatalf("Redact(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
