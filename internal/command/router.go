package command

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/haldreng/lumivox/internal/dispatch"
	"github.com/haldreng/lumivox/internal/observe"
	"github.com/haldreng/lumivox/pkg/provider/llm"
)

// Speaker plays spoken responses and sound effects on the active voice link.
// All audible output the router produces goes through this interface, which
// the playback serializer implements.
type Speaker interface {
	// Say synthesizes text and plays it, blocking until playback finished
	// or was interrupted.
	Say(ctx context.Context, text string) error
	// Chime plays the bundled notification clip.
	Chime(ctx context.Context) error
}

// Responses are the canned lines the router speaks for mode transitions.
type Responses struct {
	Greeting        string
	Farewell        string
	Acknowledgement string
	Unavailable     string
}

// DefaultResponses returns the stock response lines.
func DefaultResponses() Responses {
	return Responses{
		Greeting:        "Good morning! I'm listening again.",
		Farewell:        "Good night. Wake me when you need me.",
		Acknowledgement: "Yes? I'm listening.",
		Unavailable:     "I can't reach my language model right now.",
	}
}

// Phrases holds the trigger phrase lists the router matches against.
// All matching is case-insensitive substring containment, checked in
// declaration order within each list; the first hit wins.
type Phrases struct {
	Wake     []string
	Sleep    []string
	Resume   []string
	Goodbye  []string
	Phonetic bool
}

// Command binds a trigger phrase to an action.
type Command struct {
	Phrase string
	Action func(ctx context.Context) error
}

// Router turns recognized utterance text into spoken responses. It
// implements dispatch.Handler. Phrase checks run in a fixed precedence:
// sleep, resume, goodbye, the asleep gate, wake, conversational forwarding,
// then simple commands.
type Router struct {
	speaker   Speaker
	state     *ConversationState
	responder llm.Responder
	metrics   *observe.Metrics
	logger    *slog.Logger
	responses Responses

	mu       sync.RWMutex
	phrases  Phrases
	commands []Command
}

var _ dispatch.Handler = (*Router)(nil)

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithResponder sets the LLM backend used in conversational mode. Without
// one the router speaks a fixed unavailable line instead.
func WithResponder(r llm.Responder) RouterOption {
	return func(rt *Router) { rt.responder = r }
}

// WithResponses overrides the canned response lines.
func WithResponses(r Responses) RouterOption {
	return func(rt *Router) { rt.responses = r }
}

// WithRouterMetrics attaches metrics instruments.
func WithRouterMetrics(m *observe.Metrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

// WithRouterLogger sets the logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(rt *Router) { rt.logger = l }
}

// WithCommand appends a simple command checked after all mode phrases.
func WithCommand(phrase string, action func(ctx context.Context) error) RouterOption {
	return func(rt *Router) {
		rt.commands = append(rt.commands, Command{Phrase: phrase, Action: action})
	}
}

// NewRouter creates a router speaking through the given speaker and tracking
// mode in state. The default command set contains "play sound", which plays
// the bundled chime.
func NewRouter(speaker Speaker, state *ConversationState, phrases Phrases, opts ...RouterOption) *Router {
	r := &Router{
		speaker:   speaker,
		state:     state,
		responses: DefaultResponses(),
		phrases:   phrases,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if len(r.commands) == 0 {
		r.commands = []Command{{
			Phrase: "play sound",
			Action: speaker.Chime,
		}}
	}
	return r
}

// ReloadPhrases swaps the trigger phrase lists, for config hot reload.
func (r *Router) ReloadPhrases(p Phrases) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phrases = p
}

// HandleRecognized routes one recognized utterance. participant is the
// speaker's platform user ID; text arrives verbatim from the recognizer.
// Phrase matching folds it to lower case, while conversational forwarding
// keeps the original so the language model sees what was actually said.
func (r *Router) HandleRecognized(ctx context.Context, participant, text string) {
	r.mu.RLock()
	p := r.phrases
	commands := r.commands
	r.mu.RUnlock()

	// Recognizers emit capitalized, punctuated transcripts ("Go to sleep.").
	lowered := strings.ToLower(strings.TrimSpace(text))

	switch {
	case r.matchAny(lowered, p.Sleep, p.Phonetic):
		r.state.SetAsleep(true)
		r.state.SetConversational(false)
		r.logger.Info("going to sleep", "participant", participant)
		r.speak(ctx, r.responses.Farewell, "command")
		return

	case r.matchAny(lowered, p.Resume, p.Phonetic):
		r.state.SetAsleep(false)
		r.logger.Info("waking from sleep", "participant", participant)
		r.speak(ctx, r.responses.Greeting, "command")
		return

	case r.matchAny(lowered, p.Goodbye, p.Phonetic):
		r.state.SetAsleep(true)
		r.state.SetConversational(false)
		r.logger.Info("goodbye received", "participant", participant)
		r.speak(ctx, r.responses.Farewell, "command")
		return
	}

	if r.state.Asleep() {
		r.logger.Debug("asleep, ignoring utterance", "participant", participant)
		return
	}

	if r.matchAny(lowered, p.Wake, p.Phonetic) {
		r.state.SetConversational(true)
		r.logger.Info("entering conversational mode", "participant", participant)
		r.speak(ctx, r.responses.Acknowledgement, "command")
		return
	}

	if r.state.Conversational() {
		r.converse(ctx, participant, text)
		return
	}

	for _, cmd := range commands {
		if r.matchPhrase(lowered, cmd.Phrase, p.Phonetic) {
			r.logger.Info("running command", "phrase", cmd.Phrase, "participant", participant)
			if err := cmd.Action(ctx); err != nil {
				r.logger.Warn("command failed", "phrase", cmd.Phrase, "error", err)
				return
			}
			if r.metrics != nil {
				r.metrics.RecordReply(ctx, "command")
			}
			return
		}
	}

	r.logger.Debug("no phrase matched", "participant", participant)
}

// converse forwards the full utterance text to the LLM with the accumulated
// history and speaks the reply. The assistant turn stays in history even if
// synthesis fails, so the dialogue does not fork.
func (r *Router) converse(ctx context.Context, participant, text string) {
	if r.responder == nil {
		r.logger.Warn("conversational mode without responder", "participant", participant)
		r.speak(ctx, r.responses.Unavailable, "conversation")
		return
	}

	r.state.Append(llm.RoleUser, text)

	ctx, span := observe.StartSpan(ctx, "conversation.complete")
	defer span.End()

	start := time.Now()
	reply, err := r.responder.Complete(ctx, r.state.History())
	if r.metrics != nil {
		r.metrics.CompletionDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		r.logger.Warn("completion failed", "participant", participant, "error", err)
		if r.metrics != nil {
			r.metrics.RecordProviderError(ctx, "llm")
		}
		return
	}

	r.state.Append(llm.RoleAssistant, reply)
	r.speak(ctx, reply, "conversation")
}

func (r *Router) speak(ctx context.Context, text, kind string) {
	if err := r.speaker.Say(ctx, text); err != nil {
		r.logger.Warn("speech failed", "error", err)
		if r.metrics != nil {
			r.metrics.RecordProviderError(ctx, "tts")
		}
		return
	}
	if r.metrics != nil {
		r.metrics.RecordReply(ctx, kind)
	}
}

// matchAny reports whether text matches any phrase in the list, checked in
// declaration order.
func (r *Router) matchAny(text string, phrases []string, phonetic bool) bool {
	for _, p := range phrases {
		if r.matchPhrase(text, p, phonetic) {
			return true
		}
	}
	return false
}

// matchPhrase checks substring containment against already-lowercased text,
// with an optional phonetic fallback for misheard wake words.
func (r *Router) matchPhrase(text, phrase string, phonetic bool) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}
	if strings.Contains(text, phrase) {
		return true
	}
	if phonetic {
		return phoneticContains(text, phrase)
	}
	return false
}

// phoneticContains reports whether the phrase's words appear as a contiguous
// run in text when compared by Double Metaphone codes. Catches recognizer
// near-misses like "hey lumen box" for "hey lumivox".
func phoneticContains(text, phrase string) bool {
	phraseWords := strings.Fields(phrase)
	textWords := strings.Fields(text)
	if len(phraseWords) == 0 || len(textWords) < len(phraseWords) {
		return false
	}
	for start := 0; start+len(phraseWords) <= len(textWords); start++ {
		match := true
		for i, pw := range phraseWords {
			if !soundsAlike(textWords[start+i], pw) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func soundsAlike(a, b string) bool {
	if a == b {
		return true
	}
	a1, a2 := matchr.DoubleMetaphone(a)
	b1, b2 := matchr.DoubleMetaphone(b)
	if a1 == "" && b1 == "" {
		return false
	}
	return a1 == b1 || (a2 != "" && a2 == b2) || (a2 != "" && a2 == b1) || (b2 != "" && a1 == b2)
}
