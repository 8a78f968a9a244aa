// Package playback owns the outbound audio path: it is the single writer to
// the voice link's output stream, serializes playback so replies never talk
// over each other, and converts synthesized clips to the transport format.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haldreng/lumivox/internal/observe"
	"github.com/haldreng/lumivox/pkg/audio"
	"github.com/haldreng/lumivox/pkg/provider/tts"
)

// ErrNoLink is returned when playback is requested while no voice link is
// active.
var ErrNoLink = errors.New("playback: no active voice link")

const (
	transportRate     = 48000
	transportChannels = 2
	frameDuration     = 20 * time.Millisecond
	// 20 ms of 48 kHz stereo 16-bit PCM.
	frameBytes = 3840
)

// handle identifies one in-flight playback so a newer request can stop it.
type handle struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (h *handle) signalStop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Serializer plays synthesized speech and sound effects on the active voice
// link, one clip at a time. A new request politely stops the active playback,
// waits for it to yield, then starts. It implements the router's Speaker
// interface.
type Serializer struct {
	synth   tts.Synthesizer
	voice   tts.Voice
	chime   tts.Clip
	logger  *slog.Logger
	metrics *observe.Metrics

	// playMu serializes actual playback; mu guards the link and the active
	// handle and is never held across a blocking write.
	playMu sync.Mutex
	mu     sync.Mutex
	link   audio.Connection
	active *handle
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithVoice sets the voice passed to the synthesizer.
func WithVoice(v tts.Voice) Option {
	return func(s *Serializer) { s.voice = v }
}

// WithChime overrides the bundled notification clip.
func WithChime(c tts.Clip) Option {
	return func(s *Serializer) { s.chime = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Serializer) { s.logger = l }
}

// WithMetrics attaches metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Serializer) { s.metrics = m }
}

// NewSerializer creates a serializer synthesizing speech through synth.
func NewSerializer(synth tts.Synthesizer, opts ...Option) *Serializer {
	s := &Serializer{
		synth: synth,
		chime: ChimeClip(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// SetLink attaches the serializer to a freshly established connection. Any
// playback still running against the previous link is stopped.
func (s *Serializer) SetLink(conn audio.Connection) {
	s.mu.Lock()
	if s.active != nil {
		s.active.signalStop()
	}
	s.link = conn
	s.mu.Unlock()
}

// ClearLink detaches the serializer, stopping any in-flight playback.
// Subsequent Play calls return ErrNoLink until SetLink is called again.
func (s *Serializer) ClearLink() {
	s.SetLink(nil)
}

// Stop politely interrupts the current playback, if any.
func (s *Serializer) Stop() {
	s.mu.Lock()
	if s.active != nil {
		s.active.signalStop()
	}
	s.mu.Unlock()
}

// Say synthesizes text with the configured voice and plays it. Implements the
// command router's Speaker interface.
func (s *Serializer) Say(ctx context.Context, text string) error {
	start := time.Now()
	clip, err := s.synth.Synthesize(ctx, text, s.voice)
	if s.metrics != nil {
		s.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderError(ctx, "tts")
		}
		return fmt.Errorf("playback: synthesize: %w", err)
	}
	return s.Play(ctx, clip)
}

// Chime plays the bundled notification clip.
func (s *Serializer) Chime(ctx context.Context) error {
	return s.Play(ctx, s.chime)
}

// Play converts the clip to transport format and writes it to the active
// link, blocking until the clip has finished sounding or the playback was
// interrupted. Interruption by a newer request is not an error.
func (s *Serializer) Play(ctx context.Context, clip tts.Clip) error {
	if len(clip.PCM) == 0 {
		return nil
	}

	// Ask the current playback to yield before queueing behind it.
	s.mu.Lock()
	if s.active != nil {
		s.active.signalStop()
	}
	s.mu.Unlock()

	s.playMu.Lock()
	defer s.playMu.Unlock()

	s.mu.Lock()
	link := s.link
	h := &handle{stop: make(chan struct{})}
	s.active = h
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.active == h {
			s.active = nil
		}
		s.mu.Unlock()
	}()

	if link == nil {
		return ErrNoLink
	}

	data := transportPCM(clip)
	out := link.OutputStream()

	// Writes are paced at one frame per frame interval so Play returns when
	// the clip has actually finished sounding, not when the transport's
	// buffer swallowed it. The dispatcher's cooldown starts from that
	// return.
	pacer := time.NewTicker(frameDuration)
	defer pacer.Stop()

	offset := 0
	for ts := time.Duration(0); offset < len(data); ts += frameDuration {
		end := offset + frameBytes
		if end > len(data) {
			end = len(data)
		}
		frame := audio.Frame{
			Data:       data[offset:end],
			SampleRate: transportRate,
			Channels:   transportChannels,
			Timestamp:  ts,
		}
		select {
		case out <- frame:
			offset = end
		case <-h.stop:
			s.logger.Debug("playback interrupted", "remaining_bytes", len(data)-offset)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
		// Hold until the frame's slot has elapsed; the final wait covers the
		// last frame still sounding on the transport.
		select {
		case <-pacer.C:
		case <-h.stop:
			s.logger.Debug("playback interrupted", "remaining_bytes", len(data)-offset)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// transportPCM converts a mono clip at the engine's rate to 48 kHz stereo
// bytes for the transport.
func transportPCM(clip tts.Clip) []byte {
	mono := audio.SamplesToBytes(clip.PCM)
	if clip.SampleRate != transportRate {
		mono = audio.ResampleMono16(mono, clip.SampleRate, transportRate)
	}
	return audio.MonoToStereo(mono)
}
