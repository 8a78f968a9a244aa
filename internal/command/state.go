package command

import (
	"sync"
	"time"

	"github.com/haldreng/lumivox/pkg/provider/llm"
)

// ConversationState tracks the router's per-link mode and dialogue history.
// A fresh instance is created for every established voice link; nothing
// survives a reconnect. Safe for concurrent use.
type ConversationState struct {
	mu             sync.Mutex
	asleep         bool
	conversational bool
	history        []llm.Turn
	lastReplyAt    time.Time
}

// NewConversationState returns an awake, non-conversational state with an
// empty history.
func NewConversationState() *ConversationState {
	return &ConversationState{}
}

// Asleep reports whether the bot is ignoring non-wake phrases.
func (s *ConversationState) Asleep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asleep
}

// SetAsleep sets the asleep flag.
func (s *ConversationState) SetAsleep(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asleep = v
}

// Conversational reports whether recognized text is forwarded to the LLM.
func (s *ConversationState) Conversational() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversational
}

// SetConversational sets the conversational flag.
func (s *ConversationState) SetConversational(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversational = v
}

// Append adds a turn to the dialogue history.
func (s *ConversationState) Append(role llm.Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, llm.Turn{Role: role, Text: text})
	if role == llm.RoleAssistant {
		s.lastReplyAt = time.Now()
	}
}

// History returns a copy of the dialogue history.
func (s *ConversationState) History() []llm.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// LastReplyAt returns when the last assistant turn was appended.
func (s *ConversationState) LastReplyAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReplyAt
}

// Reset returns the state to awake, non-conversational, empty history.
func (s *ConversationState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asleep = false
	s.conversational = false
	s.history = nil
	s.lastReplyAt = time.Time{}
}
