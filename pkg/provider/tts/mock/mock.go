// Package mock provides a mock tts.Synthesizer for testing.
package mock

import (
	"context"
	"sync"

	"github.com/haldreng/lumivox/pkg/provider/tts"
)

// Ensure Synthesizer implements the tts.Synthesizer interface.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// SynthesizeCall records a single call to Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.Voice
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu    sync.Mutex
	calls []SynthesizeCall

	// Clip is returned by Synthesize when SynthesizeFunc is nil.
	Clip tts.Clip
	// Err is returned by Synthesize when SynthesizeFunc is nil.
	Err error
	// SynthesizeFunc, when set, overrides the canned Clip/Err behavior.
	SynthesizeFunc func(ctx context.Context, text string, voice tts.Voice) (tts.Clip, error)
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Clip, error) {
	s.mu.Lock()
	s.calls = append(s.calls, SynthesizeCall{Text: text, Voice: voice})
	s.mu.Unlock()

	if s.SynthesizeFunc != nil {
		return s.SynthesizeFunc(ctx, text, voice)
	}
	if s.Err != nil {
		return tts.Clip{}, s.Err
	}
	return s.Clip, nil
}

// Calls returns a copy of all recorded calls.
func (s *Synthesizer) Calls() []SynthesizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynthesizeCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of times Synthesize was called.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
