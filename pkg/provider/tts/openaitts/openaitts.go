// Package openaitts provides a tts.Synthesizer backed by the OpenAI speech
// API. This is the "standard" engine: one HTTP request per reply, raw PCM
// response, no streaming.
package openaitts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/haldreng/lumivox/pkg/audio"
	"github.com/haldreng/lumivox/pkg/provider/tts"
)

// The OpenAI speech endpoint returns 24 kHz mono 16-bit PCM when the pcm
// response format is requested.
const pcmSampleRate = 24000

// DefaultVoice is used when the configured voice has no ID.
const DefaultVoice = "alloy"

// Ensure Synthesizer implements the tts.Synthesizer interface.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer implements tts.Synthesizer using the OpenAI speech API.
type Synthesizer struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the synthesizer.
type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Synthesizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the speech model (e.g. "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI speech Synthesizer.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openaitts: apiKey must not be empty")
	}

	cfg := &config{model: string(oai.SpeechModelTTS1)}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Synthesizer{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
	}, nil
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Clip, error) {
	if text == "" {
		return tts.Clip{}, fmt.Errorf("openaitts: text must not be empty")
	}

	voiceID := voice.ID
	if voiceID == "" {
		voiceID = DefaultVoice
	}

	params := oai.AudioSpeechNewParams{
		Model:          s.model,
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voiceID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.Speed != 0 {
		params.Speed = param.NewOpt(voice.Speed)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("openaitts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("openaitts: read audio: %w", err)
	}

	return tts.Clip{
		PCM:        audio.BytesToSamples(data),
		SampleRate: pcmSampleRate,
	}, nil
}
