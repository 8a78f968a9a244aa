package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/haldreng/lumivox/pkg/provider/llm"
)

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPromptFirst checks that the system prompt leads the
// message list.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	r := &Responder{model: "gpt-4o-mini", systemPrompt: "Be brief."}
	params := r.buildParams([]llm.Turn{{Role: llm.RoleUser, Text: "Hello"}})

	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("expected first role system, got %q", params.Messages[0].Role)
	}
	if params.Messages[0].ContentString() != "Be brief." {
		t.Errorf("unexpected system content: %q", params.Messages[0].ContentString())
	}
}

// TestBuildParams_NoSystemPrompt checks that an empty system prompt is omitted.
func TestBuildParams_NoSystemPrompt(t *testing.T) {
	r := &Responder{model: "gpt-4o-mini"}
	params := r.buildParams([]llm.Turn{{Role: llm.RoleUser, Text: "Hello"}})

	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleUser {
		t.Errorf("expected role user, got %q", params.Messages[0].Role)
	}
}

// TestBuildParams_RoleMapping checks user/assistant role conversion across a
// multi-turn history.
func TestBuildParams_RoleMapping(t *testing.T) {
	r := &Responder{model: "gpt-4o-mini"}
	params := r.buildParams([]llm.Turn{
		{Role: llm.RoleUser, Text: "What time is it?"},
		{Role: llm.RoleAssistant, Text: "It is noon."},
		{Role: llm.RoleUser, Text: "Thanks"},
	})

	want := []string{anyllmlib.RoleUser, anyllmlib.RoleAssistant, anyllmlib.RoleUser}
	if len(params.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(params.Messages))
	}
	for i, role := range want {
		if params.Messages[i].Role != role {
			t.Errorf("message %d: expected role %q, got %q", i, role, params.Messages[i].Role)
		}
	}
	if params.Messages[1].ContentString() != "It is noon." {
		t.Errorf("unexpected assistant content: %q", params.Messages[1].ContentString())
	}
}

// TestBuildParams_Model checks that the configured model is carried through.
func TestBuildParams_Model(t *testing.T) {
	r := &Responder{model: "llama3.2"}
	params := r.buildParams([]llm.Turn{{Role: llm.RoleUser, Text: "Hi"}})
	if params.Model != "llama3.2" {
		t.Errorf("expected model llama3.2, got %q", params.Model)
	}
}

// TestBuildParams_MaxTokens checks the optional per-reply token cap.
func TestBuildParams_MaxTokens(t *testing.T) {
	r := &Responder{model: "gpt-4o-mini", maxTokens: 150}
	params := r.buildParams([]llm.Turn{{Role: llm.RoleUser, Text: "Hi"}})
	if params.MaxTokens == nil || *params.MaxTokens != 150 {
		t.Errorf("expected MaxTokens 150, got %v", params.MaxTokens)
	}

	r = &Responder{model: "gpt-4o-mini"}
	params = r.buildParams([]llm.Turn{{Role: llm.RoleUser, Text: "Hi"}})
	if params.MaxTokens != nil {
		t.Errorf("expected nil MaxTokens, got %d", *params.MaxTokens)
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o-mini", nil)
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "", nil)
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", []anyllmlib.Option{anyllmlib.WithAPIKey("dummy")})
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_OpenAI_WithAPIKey checks that the OpenAI backend constructs with an API key.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	r, err := New("openai", "gpt-4o-mini", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r == nil {
		t.Fatal("expected non-nil responder")
	}
	if r.model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", r.model)
	}
	if r.systemPrompt == "" {
		t.Error("expected default system prompt to be set")
	}
}

// TestNew_Ollama_NoAPIKey checks that Ollama works without an API key.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	r, err := NewOllama("llama3.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r == nil {
		t.Fatal("expected non-nil responder")
	}
}

// TestNew_Options checks that functional options are applied.
func TestNew_Options(t *testing.T) {
	r, err := NewOllama("llama3.2", WithSystemPrompt("Custom."), WithMaxTokens(99))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.systemPrompt != "Custom." {
		t.Errorf("expected custom system prompt, got %q", r.systemPrompt)
	}
	if r.maxTokens != 99 {
		t.Errorf("expected maxTokens 99, got %d", r.maxTokens)
	}
}
