// Package mock provides an in-memory stt.Recognizer for unit tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/haldreng/lumivox/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Recognizer = (*Recognizer)(nil)

// RecognizeCall records the arguments of one Recognize invocation.
type RecognizeCall struct {
	// PCM is a copy of the sample buffer passed to Recognize.
	PCM []int16
}

// Recognizer is a mock implementation of [stt.Recognizer].
// Set Text / Err to control the result, or RecognizeFunc for full control.
// The InFlight gauge lets tests assert the single-flight invariant.
type Recognizer struct {
	mu sync.Mutex

	// Text is the result returned by Recognize when RecognizeFunc is nil.
	Text string

	// Err is the error returned by Recognize when RecognizeFunc is nil.
	Err error

	// RecognizeFunc, when non-nil, is invoked instead of returning the
	// static results above.
	RecognizeFunc func(ctx context.Context, pcm []int16) (string, error)

	calls []RecognizeCall

	// InFlight counts currently executing Recognize calls. MaxInFlight
	// records the high-water mark.
	InFlight    atomic.Int32
	MaxInFlight atomic.Int32
}

// Recognize implements [stt.Recognizer].
func (r *Recognizer) Recognize(ctx context.Context, pcm []int16) (string, error) {
	n := r.InFlight.Add(1)
	defer r.InFlight.Add(-1)
	for {
		max := r.MaxInFlight.Load()
		if n <= max || r.MaxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	cp := make([]int16, len(pcm))
	copy(cp, pcm)
	r.mu.Lock()
	r.calls = append(r.calls, RecognizeCall{PCM: cp})
	fn := r.RecognizeFunc
	text, err := r.Text, r.Err
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, pcm)
	}
	return text, err
}

// Calls returns a copy of all recorded Recognize invocations in order.
func (r *Recognizer) Calls() []RecognizeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecognizeCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns the number of Recognize invocations so far.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
