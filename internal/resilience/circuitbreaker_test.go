package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackendDown = errors.New("backend down")

func tripBreaker(t *testing.T, b *Breaker, failures int) {
	t.Helper()
	for i := 0; i < failures; i++ {
		_ = b.Execute(func() error { return errBackendDown })
	}
}

func TestBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "whisper"})
	if b.cfg.FailureLimit != 5 {
		t.Errorf("FailureLimit = %d; want 5", b.cfg.FailureLimit)
	}
	if b.cfg.Cooldown != 30*time.Second {
		t.Errorf("Cooldown = %v; want 30s", b.cfg.Cooldown)
	}
	if b.cfg.ProbeQuota != 3 {
		t.Errorf("ProbeQuota = %d; want 3", b.cfg.ProbeQuota)
	}
	if b.State() != BreakerClosed {
		t.Errorf("State() = %v; want closed", b.State())
	}
}

func TestBreaker_ClosedForwardsCalls(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "whisper", FailureLimit: 3})

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "whisper", FailureLimit: 3, Cooldown: time.Hour})

	tripBreaker(t, b, 2)
	if b.State() != BreakerClosed {
		t.Fatalf("State() after 2 failures = %v; want still closed", b.State())
	}

	tripBreaker(t, b, 1)
	if b.State() != BreakerOpen {
		t.Fatalf("State() after 3 failures = %v; want open", b.State())
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Execute() while open error = %v; want ErrBreakerOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "whisper", FailureLimit: 3, Cooldown: time.Hour})

	tripBreaker(t, b, 2)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	tripBreaker(t, b, 2)
	if b.State() != BreakerClosed {
		t.Errorf("State() = %v; want closed, success should clear the streak", b.State())
	}
}

func TestBreaker_ProbesAfterCooldown(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{
		Name:         "whisper",
		FailureLimit: 1,
		Cooldown:     50 * time.Millisecond,
		ProbeQuota:   2,
	})

	tripBreaker(t, b, 1)
	if b.State() != BreakerOpen {
		t.Fatalf("State() = %v; want open", b.State())
	}

	time.Sleep(75 * time.Millisecond)
	if b.State() != BreakerProbing {
		t.Fatalf("State() after cooldown = %v; want probing", b.State())
	}

	// ProbeQuota successful calls close the breaker again.
	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d error = %v", i, err)
		}
	}
	if b.State() != BreakerClosed {
		t.Errorf("State() after probes = %v; want closed", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{
		Name:         "whisper",
		FailureLimit: 1,
		Cooldown:     50 * time.Millisecond,
		ProbeQuota:   3,
	})

	tripBreaker(t, b, 1)
	time.Sleep(75 * time.Millisecond)

	if err := b.Execute(func() error { return errBackendDown }); !errors.Is(err, errBackendDown) {
		t.Fatalf("probe error = %v; want the backend error", err)
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Execute() after failed probe error = %v; want ErrBreakerOpen", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "whisper", FailureLimit: 1, Cooldown: time.Hour})

	tripBreaker(t, b, 1)
	b.Reset()

	if b.State() != BreakerClosed {
		t.Fatalf("State() after Reset = %v; want closed", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute() after Reset error = %v", err)
	}
}

func TestBreakerState_String(t *testing.T) {
	t.Parallel()
	cases := []struct {
		state BreakerState
		want  string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerProbing, "probing"},
		{BreakerState(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("String(%d) = %q; want %q", tc.state, got, tc.want)
		}
	}
}
