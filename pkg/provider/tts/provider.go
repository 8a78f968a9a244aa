// Package tts defines the Synthesizer interface for text-to-speech backends.
//
// Two interchangeable engine families ship with Lumivox: a standard HTTP
// engine (openaitts) and a streaming neural engine (elevenlabs). Deployment
// policy picks one at startup — the playback layer never switches engines per
// call. Implementations must be safe for concurrent use, although the
// playback serializer means calls rarely overlap in practice.
package tts

import (
	"context"
	"time"
)

// Voice carries the per-deployment voice parameters handed to Synthesize.
type Voice struct {
	// ID is the provider-specific voice identifier. An empty ID selects the
	// engine's default voice.
	ID string

	// Stability and SimilarityBoost tune neural engines; standard engines
	// ignore them. Zero values mean engine defaults.
	Stability       float64
	SimilarityBoost float64

	// Speed adjusts speaking rate where the engine supports it
	// (0.5–2.0, 0 = engine default).
	Speed float64
}

// Clip is a fully synthesized reply: mono 16-bit PCM at the engine's output
// rate. The playback serializer converts it to the transport format.
type Clip struct {
	PCM        []int16
	SampleRate int
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.PCM)) * time.Second / time.Duration(c.SampleRate)
}

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize converts text into a playable clip. Returns an error if the
	// engine cannot be reached or rejects the request; the caller logs and
	// drops the reply, it never retries.
	Synthesize(ctx context.Context, text string, voice Voice) (Clip, error)
}
