// Package elevenlabs provides a tts.Synthesizer backed by the ElevenLabs
// streaming WebSocket API. This is the "streaming neural" engine: audio
// chunks arrive while synthesis is still running and are assembled into one
// clip for the playback serializer.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/haldreng/lumivox/pkg/audio"
	"github.com/haldreng/lumivox/pkg/provider/tts"
)

const (
	wsEndpointFmt    = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.75
)

// Ensure Synthesizer implements the tts.Synthesizer interface.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Option is a functional option for configuring the Synthesizer.
type Option func(*Synthesizer)

// WithModel sets the ElevenLabs model ID (e.g. "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(s *Synthesizer) { s.model = model }
}

// WithOutputFormat sets the audio output format (e.g. "pcm_16000",
// "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(s *Synthesizer) { s.outputFormat = format }
}

// Synthesizer implements tts.Synthesizer backed by the ElevenLabs streaming
// API.
type Synthesizer struct {
	apiKey       string
	model        string
	outputFormat string
}

// New creates an ElevenLabs Synthesizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	s := &Synthesizer{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ---- WebSocket message types ----

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// boiMessage is the initial "begin of input" handshake payload.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// textMessage is the JSON payload for a text fragment. An empty Text flushes
// the stream.
type textMessage struct {
	Text string `json:"text"`
}

// audioResponse is the JSON message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize implements tts.Synthesizer. It opens a WebSocket, sends the
// handshake and the text, then drains audio chunks until the server signals
// the final one.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Clip, error) {
	if text == "" {
		return tts.Clip{}, errors.New("elevenlabs: text must not be empty")
	}
	if voice.ID == "" {
		return tts.Clip{}, errors.New("elevenlabs: voice.ID must not be empty")
	}

	vs := &voiceSettings{
		Stability:       defaultStability,
		SimilarityBoost: defaultSimilarityBoost,
	}
	if voice.Stability != 0 {
		vs.Stability = voice.Stability
	}
	if voice.SimilarityBoost != 0 {
		vs.SimilarityBoost = voice.SimilarityBoost
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, voice.ID, s.model)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// ElevenLabs requires a non-empty first text value.
	boi := boiMessage{
		Text:          " ",
		VoiceSettings: vs,
		XiAPIKey:      s.apiKey,
		OutputFormat:  s.outputFormat,
	}
	if err := writeJSON(ctx, conn, boi); err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: send handshake: %w", err)
	}

	if err := writeJSON(ctx, conn, textMessage{Text: text + " "}); err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: send text: %w", err)
	}
	// Empty text flushes the stream and ends the generation.
	if err := writeJSON(ctx, conn, textMessage{Text: ""}); err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: flush: %w", err)
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			// A normal close after audio has arrived ends the stream.
			if len(pcm) > 0 && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return tts.Clip{}, fmt.Errorf("elevenlabs: read: %w", err)
		}

		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Message != "" && resp.Audio == "" && !resp.IsFinal {
			return tts.Clip{}, fmt.Errorf("elevenlabs: server error: %s", resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err == nil {
				pcm = append(pcm, chunk...)
			}
		}
		if resp.IsFinal {
			break
		}
	}

	return tts.Clip{
		PCM:        audio.BytesToSamples(pcm),
		SampleRate: outputFormatRate(s.outputFormat),
	}, nil
}

// writeJSON marshals v and writes it as a single text message.
func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// outputFormatRate parses the sample rate out of an ElevenLabs PCM format
// string such as "pcm_16000". Unknown formats fall back to 16 kHz.
func outputFormatRate(format string) int {
	if rest, ok := strings.CutPrefix(format, "pcm_"); ok {
		if rate, err := strconv.Atoi(rest); err == nil && rate > 0 {
			return rate
		}
	}
	return 16000
}
