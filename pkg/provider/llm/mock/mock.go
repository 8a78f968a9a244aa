// Package mock provides a mock llm.Responder for testing.
package mock

import (
	"context"
	"sync"

	"github.com/haldreng/lumivox/pkg/provider/llm"
)

// Ensure Responder implements the llm.Responder interface.
var _ llm.Responder = (*Responder)(nil)

// Responder is a mock implementation of llm.Responder.
type Responder struct {
	mu    sync.Mutex
	calls [][]llm.Turn

	// Reply is returned by Complete when CompleteFunc is nil.
	Reply string
	// Err is returned by Complete when CompleteFunc is nil.
	Err error
	// CompleteFunc, when set, overrides the canned Reply/Err behavior.
	CompleteFunc func(ctx context.Context, history []llm.Turn) (string, error)
}

// Complete implements llm.Responder.
func (r *Responder) Complete(ctx context.Context, history []llm.Turn) (string, error) {
	cp := make([]llm.Turn, len(history))
	copy(cp, history)

	r.mu.Lock()
	r.calls = append(r.calls, cp)
	r.mu.Unlock()

	if r.CompleteFunc != nil {
		return r.CompleteFunc(ctx, history)
	}
	if r.Err != nil {
		return "", r.Err
	}
	return r.Reply, nil
}

// Calls returns a copy of the history passed to each Complete call.
func (r *Responder) Calls() [][]llm.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]llm.Turn, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns the number of times Complete was called.
func (r *Responder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
