// Package whisper provides an stt.Recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/haldreng/lumivox/pkg/provider/stt"
)

const defaultLanguage = "en"

// Compile-time assertion that Recognizer satisfies stt.Recognizer.
var _ stt.Recognizer = (*Recognizer)(nil)

// Recognizer implements stt.Recognizer using whisper.cpp Go bindings (CGO).
// The model is loaded once at startup; each Recognize call creates a fresh
// whisper context, which is how the bindings support sequential inference on
// a shared model.
type Recognizer struct {
	model    whisperlib.Model
	language string

	// The dispatcher already serializes calls, but a stray concurrent caller
	// must not corrupt the native context pool.
	mu sync.Mutex
}

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g. "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// New creates a Recognizer that loads the whisper.cpp model from the given
// file path. The caller must call Close when the recognizer is no longer
// needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Recognize implements stt.Recognizer. The pcm buffer must be 16 kHz mono
// 16-bit samples. Returns stt.ErrNoMatch when whisper produces no text.
func (r *Recognizer) Recognize(ctx context.Context, pcm []int16) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(pcm) == 0 {
		return "", stt.ErrNoMatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(r.language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", r.language, err)
	}

	if err := wctx.Process(samplesToFloat32(pcm), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return "", stt.ErrNoMatch
	}
	return text, nil
}

// samplesToFloat32 converts int16 PCM to the normalized float32 samples
// whisper.cpp expects.
func samplesToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}
