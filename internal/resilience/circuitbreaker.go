// Package resilience keeps the bot responsive when a speech or language
// provider degrades. Cloud STT, TTS and LLM backends fail in bursts: a
// [CircuitBreaker] stops hammering a backend that has failed repeatedly,
// and the provider fallback groups ([STTFallback], [TTSFallback],
// [LLMFallback]) route each call to the first healthy backend in a
// configured chain so a dead primary never silences a reply.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// is open and its reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen]. Entered after too
	// many consecutive failures, left once the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a small budget of trial calls through to test
	// whether the backend recovered. All trials succeeding closes the
	// breaker; any failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields fall back to
// defaults suited to per-utterance provider calls.
type CircuitBreakerConfig struct {
	// Name labels the backend in log output ("whisper", "elevenlabs").
	Name string

	// MaxFailures is how many consecutive failures open the breaker.
	// Default 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before allowing
	// trial calls. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the trial-call budget in the half-open state.
	// Default 3.
	HalfOpenMax int
}

// CircuitBreaker guards calls to one provider backend. It trips open after
// MaxFailures consecutive errors, rejects calls until ResetTimeout has
// passed, then admits HalfOpenMax trial calls to decide whether the
// backend is healthy again.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	trialBudget  int

	mu        sync.Mutex
	state     State
	failures  int       // consecutive failures while closed
	openedAt  time.Time // last failure that kept the breaker open
	trials    int       // trial calls admitted this half-open round
	trialWins int       // trial calls that succeeded this round
}

// NewCircuitBreaker builds a breaker from cfg, substituting defaults for
// zero fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		trialBudget:  cfg.HalfOpenMax,
	}
}

// Execute runs fn unless the breaker rejects the call. Open breakers
// return [ErrCircuitOpen] without invoking fn; half-open breakers admit
// only the trial budget.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, ok := cb.admit()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()
	cb.settle(err, trial)
	return err
}

// admit decides whether a call may proceed, reporting whether it counts
// against the half-open trial budget.
func (cb *CircuitBreaker) admit() (trial, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false, false
		}
		cb.state = StateHalfOpen
		cb.trials = 0
		cb.trialWins = 0
		slog.Info("resilience: breaker half-open, trialing backend", "backend", cb.name)

	case StateHalfOpen:
		if cb.trials >= cb.trialBudget {
			return false, false
		}
	}

	if cb.state == StateHalfOpen {
		cb.trials++
		return true, true
	}
	return false, true
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(err error, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.openedAt = time.Now()
		if trial {
			// One bad trial is enough evidence the backend is still down.
			cb.state = StateOpen
			cb.failures = cb.maxFailures
			slog.Warn("resilience: breaker re-opened after failed trial", "backend", cb.name)
			return
		}
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			slog.Warn("resilience: breaker opened",
				"backend", cb.name,
				"consecutive_failures", cb.failures)
		}
		return
	}

	if trial {
		cb.trialWins++
		if cb.trialWins >= cb.trialBudget {
			cb.state = StateClosed
			cb.failures = 0
			cb.trials = 0
			cb.trialWins = 0
			slog.Info("resilience: breaker closed, backend recovered", "backend", cb.name)
		}
		return
	}
	cb.failures = 0
}

// State reports the breaker's current state. An open breaker whose reset
// timeout has elapsed reports [StateHalfOpen]; the stored transition
// happens on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.trials = 0
	cb.trialWins = 0
	slog.Info("resilience: breaker reset", "backend", cb.name)
}
