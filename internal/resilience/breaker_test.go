package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

func failN(b *Breaker, n int) {
	for range n {
		b.Execute(func() error { return errBackend })
	}
}

func TestBreaker_StartsClosed(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test"})
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_ForwardsWhileClosed(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", FailureLimit: 3})

	calls := 0
	for range 5 {
		if err := b.Execute(func() error { calls++; return nil }); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if calls != 5 {
		t.Errorf("calls = %d, want 5", calls)
	}
}

func TestBreaker_TripsAtFailureLimit(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{
		Name:         "test",
		FailureLimit: 3,
		Cooldown:     time.Hour,
	})

	failN(b, 3)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", b.State())
	}

	// Rejected without touching the backend.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("backend called while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", FailureLimit: 3, Cooldown: time.Hour})

	failN(b, 2)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	failN(b, 2)

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed (success should reset the count)", b.State())
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{
		Name:         "test",
		FailureLimit: 2,
		Cooldown:     10 * time.Millisecond,
	})

	failN(b, 2)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", b.State())
	}
}

func TestBreaker_TrialSuccessCloses(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{
		Name:         "test",
		FailureLimit: 2,
		Cooldown:     10 * time.Millisecond,
	})

	failN(b, 2)
	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful trial", b.State())
	}
}

func TestBreaker_TrialFailureReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{
		Name:         "test",
		FailureLimit: 2,
		Cooldown:     10 * time.Millisecond,
	})

	failN(b, 2)
	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("trial call err = %v, want backend error", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed trial", b.State())
	}

	// And the re-opened breaker rejects again immediately.
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_SingleTrialAtATime(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{
		Name:         "test",
		FailureLimit: 1,
		Cooldown:     10 * time.Millisecond,
	})

	failN(b, 1)
	time.Sleep(20 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	trialErr := make(chan error, 1)
	go func() {
		trialErr <- b.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("trial call never started")
	}

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second call during trial: err = %v, want ErrCircuitOpen", err)
	}

	close(release)
	if err := <-trialErr; err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
