// Package llm defines the Responder interface for Large Language Model
// backends.
//
// A Responder wraps a remote or local model API (e.g., OpenAI GPT-4,
// Anthropic Claude, or a local Ollama instance) and produces a single
// conversational reply for a recognized utterance plus the accumulated
// conversation history, without coupling the command router to any
// specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn spoken by the target user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn generated by the bot.
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the conversation history.
type Turn struct {
	Role Role
	Text string
}

// Responder produces a reply for the given conversation history. The last
// turn is the user's current utterance. The returned string is the text to
// be spoken back, which callers append to the history as a RoleAssistant
// turn.
type Responder interface {
	Complete(ctx context.Context, history []Turn) (string, error)
}
