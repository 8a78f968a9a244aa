package resilience

import (
	"context"

	"github.com/haldreng/lumivox/pkg/provider/llm"
)

// LLMFallback implements [llm.Responder] with automatic failover across
// multiple completion backends. Each backend has its own circuit breaker; when
// the primary fails or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Responder]
}

// Compile-time interface assertion.
var _ llm.Responder = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Responder, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional responder as a fallback.
func (f *LLMFallback) AddFallback(name string, responder llm.Responder) {
	f.group.AddFallback(name, responder)
}

// Complete sends the conversation history to the first healthy backend and
// returns its reply. Fallbacks receive the identical history, so a mid-session
// failover keeps the conversation coherent.
func (f *LLMFallback) Complete(ctx context.Context, history []llm.Turn) (string, error) {
	return ExecuteWithResult(f.group, func(r llm.Responder) (string, error) {
		return r.Complete(ctx, history)
	})
}
