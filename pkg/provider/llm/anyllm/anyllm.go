// Package anyllm provides a universal llm.Responder backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	r, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	r, err := anyllm.NewOllama("llama3.2")
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/haldreng/lumivox/pkg/provider/llm"
)

// defaultSystemPrompt keeps spoken replies short enough to synthesize and
// play back without dominating the voice channel.
const defaultSystemPrompt = "You are a friendly voice companion in a Discord voice channel. " +
	"Your replies are spoken aloud, so keep them short and conversational: " +
	"one or two sentences, no markdown, no lists."

// Ensure Responder implements the llm.Responder interface.
var _ llm.Responder = (*Responder)(nil)

// Option is a functional option for configuring the Responder.
type Option func(*Responder)

// WithSystemPrompt replaces the default voice-companion system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(r *Responder) { r.systemPrompt = prompt }
}

// WithMaxTokens caps the number of tokens generated per reply.
func WithMaxTokens(n int) Option {
	return func(r *Responder) { r.maxTokens = n }
}

// Responder implements llm.Responder by wrapping github.com/mozilla-ai/any-llm-go.
type Responder struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string
	maxTokens    int
}

// New creates a new Responder backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o-mini", "llama3.2").
//
// backendOpts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the backend falls
// back to the relevant environment variable (e.g., OPENAI_API_KEY).
func New(providerName, model string, backendOpts []anyllmlib.Option, opts ...Option) (*Responder, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	r := &Responder{
		backend:      backend,
		model:        model,
		systemPrompt: defaultSystemPrompt,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// NewOpenAI creates a Responder backed by OpenAI.
// Without backend options, it reads the OPENAI_API_KEY environment variable.
func NewOpenAI(model string, backendOpts []anyllmlib.Option, opts ...Option) (*Responder, error) {
	return New("openai", model, backendOpts, opts...)
}

// NewOllama creates a Responder backed by Ollama (local inference).
// Without backend options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...Option) (*Responder, error) {
	return New("ollama", model, nil, opts...)
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Complete implements llm.Responder.
func (r *Responder) Complete(ctx context.Context, history []llm.Turn) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("anyllm: history must not be empty")
	}

	params := r.buildParams(history)

	resp, err := r.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}

	return resp.Choices[0].Message.ContentString(), nil
}

// buildParams converts the conversation history into anyllm CompletionParams.
func (r *Responder) buildParams(history []llm.Turn) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(history)+1)

	if r.systemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: r.systemPrompt,
		})
	}

	for _, t := range history {
		role := anyllmlib.RoleUser
		if t.Role == llm.RoleAssistant {
			role = anyllmlib.RoleAssistant
		}
		messages = append(messages, anyllmlib.Message{
			Role:    role,
			Content: t.Text,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    r.model,
		Messages: messages,
	}
	if r.maxTokens > 0 {
		mt := r.maxTokens
		params.MaxTokens = &mt
	}
	return params
}
