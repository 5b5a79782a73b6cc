package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *fakeClock) *Breaker {
	return NewBreaker("test", Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
	}).WithClock(clock.now)
}

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(func() error { return errBoom })
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	failN(b, 2)
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after 2 failures = %s, want closed", got)
	}

	failN(b, 1)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after 3 failures = %s, want open", got)
	}
}

func TestBreaker_OpenShortCircuitsWithoutInvoking(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)
	failN(b, 3)

	invoked := false
	err := b.Execute(func() error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Errorf("operation must not run while the circuit is open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	failN(b, 2)
	_ = b.Execute(func() error { return nil })
	failN(b, 2)

	if got := b.State(); got != StateClosed {
		t.Errorf("state = %s, want closed (failures are consecutive, not cumulative)", got)
	}
}

func TestBreaker_ProbeAfterTimeout(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)
	failN(b, 3)

	// Still inside the cooldown window.
	clock.advance(9 * time.Second)
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("call inside cooldown: err = %v, want ErrCircuitOpen", err)
	}

	// Cooldown elapsed: exactly one probe goes through.
	clock.advance(2 * time.Second)
	invoked := false
	if err := b.Execute(func() error { invoked = true; return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if !invoked {
		t.Fatalf("probe call must invoke the operation")
	}
	if got := b.State(); got != StateHalfOpen {
		t.Errorf("state after first probe success = %s, want half-open", got)
	}
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)
	failN(b, 3)
	clock.advance(11 * time.Second)

	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return nil })

	if got := b.State(); got != StateClosed {
		t.Errorf("state after %d half-open successes = %s, want closed", 2, got)
	}
}

func TestBreaker_HalfOpenFailureReopensImmediately(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)
	failN(b, 3)
	clock.advance(11 * time.Second)

	_ = b.Execute(func() error { return nil })  // probe success
	_ = b.Execute(func() error { return errBoom }) // single failure re-opens

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen after half-open failure", err)
	}
}

func TestExecuteWithFallback(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	got := ExecuteWithFallback(b, func() ([]string, error) {
		return []string{"ctx-1", "ctx-2"}, nil
	}, nil)
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}

	got = ExecuteWithFallback(b, func() ([]string, error) {
		return nil, errBoom
	}, []string{"fallback"})
	if len(got) != 1 || got[0] != "fallback" {
		t.Errorf("got %v, want fallback value on failure", got)
	}

	// Open circuit short-circuits to the fallback too.
	failN(b, 3)
	got = ExecuteWithFallback(b, func() ([]string, error) {
		t.Fatal("operation must not run while open")
		return nil, nil
	}, []string{"fallback"})
	if len(got) != 1 || got[0] != "fallback" {
		t.Errorf("got %v, want fallback value while open", got)
	}
}
