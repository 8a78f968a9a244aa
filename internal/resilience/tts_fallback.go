package resilience

import (
	"context"

	"github.com/haldreng/lumivox/pkg/provider/tts"
)

// TTSFallback implements [tts.Synthesizer] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesizer as a fallback.
func (f *TTSFallback) AddFallback(name string, synthesizer tts.Synthesizer) {
	f.group.AddFallback(name, synthesizer)
}

// Synthesize converts text to audio with the first healthy backend. The voice
// is passed through as-is; fallback backends may resolve the voice ID
// differently or ignore unsupported tuning fields.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Clip, error) {
	return ExecuteWithResult(f.group, func(s tts.Synthesizer) (tts.Clip, error) {
		return s.Synthesize(ctx, text, voice)
	})
}
