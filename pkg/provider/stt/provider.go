// Package stt defines the Recognizer interface for speech-to-text backends.
//
// A Recognizer wraps a transcription engine (e.g. a local whisper.cpp model)
// behind a single blocking call: the pipeline hands it one completed
// utterance of recognition-format PCM and gets back text or a benign
// "nothing understood" outcome. The recognition dispatcher guarantees at most
// one call is in flight per pipeline, so implementations do not need to
// support concurrent calls on one session — but must tolerate a fresh call
// immediately after the previous one returns.
package stt

import (
	"context"
	"errors"
)

// RecognitionSampleRate is the sample rate (Hz) of PCM handed to Recognize.
const RecognitionSampleRate = 16000

// ErrNoMatch is returned when the engine processed the audio but found no
// intelligible speech. It is expected and benign; callers drop the utterance
// silently. Any other error is a service failure: logged and dropped, never
// retried.
var ErrNoMatch = errors.New("stt: no speech recognized")

// Recognizer is the abstraction over any speech-to-text backend.
type Recognizer interface {
	// Recognize transcribes one completed utterance of 16 kHz mono 16-bit
	// PCM. The dispatcher bounds the call with a deadline on ctx;
	// implementations should honour it. Returns the recognized text,
	// [ErrNoMatch] when no speech was found, or a service error.
	Recognize(ctx context.Context, pcm []int16) (string, error)
}
