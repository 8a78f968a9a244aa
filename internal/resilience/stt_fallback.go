package resilience

import (
	"context"

	"github.com/haldreng/lumivox/pkg/provider/stt"
)

// STTFallback implements [stt.Recognizer] with automatic failover across
// multiple recognition backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Recognizer]
}

// Compile-time interface assertion.
var _ stt.Recognizer = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Recognizer, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional recognizer as a fallback.
func (f *STTFallback) AddFallback(name string, recognizer stt.Recognizer) {
	f.group.AddFallback(name, recognizer)
}

// Recognize transcribes the utterance with the first healthy backend. If the
// primary fails, subsequent fallbacks receive the same PCM.
func (f *STTFallback) Recognize(ctx context.Context, pcm []int16) (string, error) {
	return ExecuteWithResult(f.group, func(r stt.Recognizer) (string, error) {
		return r.Recognize(ctx, pcm)
	})
}

// Close closes every registered backend that exposes a Close method, returning
// the first error encountered.
func (f *STTFallback) Close() error {
	var firstErr error
	for i := range f.group.entries {
		closer, ok := f.group.entries[i].value.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
