package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackendDown = errors.New("backend down")

// trip drives the breaker into the open state with n consecutive failures.
func trip(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errBackendDown })
	}
}

func TestCircuitBreaker_ZeroConfigDefaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper"})
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.trialBudget != 3 {
		t.Errorf("trialBudget = %d, want 3", cb.trialBudget)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("initial state = %v, want closed", got)
	}
}

func TestCircuitBreaker_ForwardsWhileClosed(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper", MaxFailures: 3})
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("call never reached the backend")
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "elevenlabs",
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})
	trip(cb, 3)

	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	// Nothing reaches the backend while open.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("open breaker forwarded a call")
	}
}

func TestCircuitBreaker_SuccessClearsFailureStreak(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper", MaxFailures: 3})

	trip(cb, 2)
	_ = cb.Execute(func() error { return nil })

	// The streak restarted, so two more failures must not open it.
	trip(cb, 2)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after the streak reset", got)
	}
}

func TestCircuitBreaker_ReportsHalfOpenAfterResetTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "openai",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	trip(cb, 2)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(15 * time.Millisecond)

	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("state = %v, want half-open once the timeout elapsed", got)
	}
}

func TestCircuitBreaker_ClosesAfterSuccessfulTrials(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "openai",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	trip(cb, 2)
	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("trial %d: %v", i, err)
		}
	}

	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after the trial budget succeeded", got)
	}
}

func TestCircuitBreaker_ReopensOnFailedTrial(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "elevenlabs",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  3,
	})
	trip(cb, 2)
	time.Sleep(15 * time.Millisecond)

	if err := cb.Execute(func() error { return errBackendDown }); err == nil {
		t.Fatal("expected the failing trial error")
	}

	// The failure re-armed the open timer, so State must report open, not
	// half-open.
	cb.mu.Lock()
	got := cb.state
	cb.mu.Unlock()
	if got != StateOpen {
		t.Fatalf("state = %v, want open after a failed trial", got)
	}
}

func TestCircuitBreaker_ExhaustedTrialBudgetRejects(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "whisper",
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	trip(cb, 1)
	time.Sleep(15 * time.Millisecond)

	// Admit the budget without settling a verdict by alternating one
	// success short of closing.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("first trial: %v", err)
	}

	cb.mu.Lock()
	cb.trials = cb.trialBudget
	cb.mu.Unlock()

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen once the budget is spent", err)
	}
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "whisper",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	trip(cb, 2)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after Reset", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
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
