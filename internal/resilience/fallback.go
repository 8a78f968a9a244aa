package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a chain either failed or
// was skipped because its breaker is open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the breaker stamped onto each backend in a
// fallback chain. The breaker Name is overwritten with the backend's name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// chainLink is one backend in a fallback chain together with its breaker.
type chainLink[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup orders interchangeable backends of one provider type:
// the configured primary first, then each fallback in the order it was
// added. Calls go to the first backend whose breaker admits them.
//
// The chain is fixed at wiring time; concurrent calls are safe once no
// more fallbacks are being added.
type FallbackGroup[T any] struct {
	entries []chainLink[T]
	cfg     FallbackConfig
}

// NewFallbackGroup starts a chain with primary as its head.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.add(primaryName, primary)
	return g
}

// AddFallback appends a backend to the end of the chain.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, chainLink[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Execute runs fn against the chain until one backend succeeds. Backends
// with open breakers are skipped without being called. If the whole chain
// fails the last error is wrapped in [ErrAllFailed].
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn against the chain until one backend returns a
// value. A package-level function because Go methods cannot introduce the
// result type parameter.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.entries {
		link := &fg.entries[i]
		var result R
		err := link.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(link.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: backend skipped, breaker open", "backend", link.name)
		} else {
			slog.Warn("resilience: backend failed, advancing chain",
				"backend", link.name, "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
