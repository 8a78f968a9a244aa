package app_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/haldreng/lumivox/internal/app"
	"github.com/haldreng/lumivox/internal/config"
	"github.com/haldreng/lumivox/internal/observe"
	"github.com/haldreng/lumivox/pkg/audio"
	audiomock "github.com/haldreng/lumivox/pkg/audio/mock"
	sttmock "github.com/haldreng/lumivox/pkg/provider/stt/mock"
	ttsmock "github.com/haldreng/lumivox/pkg/provider/tts/mock"
)

const targetID = "target-user"

// testConfig returns a config tuned for fast tests: tiny debounce, no
// cooldown, short utterances.
func testConfig() *config.Config {
	return &config.Config{
		LogLevel: config.LogInfo,
		Discord: config.DiscordConfig{
			Token:        "token",
			GuildID:      "guild",
			TargetUserID: targetID,
		},
		Audio: config.AudioConfig{
			EnergyThreshold: 500,
			MinUtteranceMs:  20,
		},
		Dispatch: config.DispatchConfig{
			DebounceMs:          10,
			CooldownMs:          0,
			RecognitionTimeoutS: 30,
		},
		Commands: config.CommandsConfig{
			WakePhrases:  []string{"hey nova"},
			SleepPhrases: []string{"go to sleep"},
		},
		Connection: config.ConnectionConfig{
			SettleDelayMs:   0,
			ConnectTimeoutS: 5,
		},
	}
}

func testProviders(conn audio.Connection) (*app.Providers, *audiomock.Platform, *sttmock.Recognizer) {
	platform := &audiomock.Platform{ConnectResult: conn}
	// Capitalized and punctuated, the way real recognizers emit transcripts.
	rec := &sttmock.Recognizer{Text: "Play sound."}
	return &app.Providers{
		Recognizer:  rec,
		Synthesizer: &ttsmock.Synthesizer{},
		Platform:    platform,
	}, platform, rec
}

// loudFrame builds 20 ms of 48 kHz stereo PCM at the given amplitude.
func loudFrame(participant string, amplitude int16) audio.Frame {
	samples := make([]int16, 960*2)
	for i := range samples {
		samples[i] = amplitude
	}
	return audio.Frame{
		Participant: participant,
		Data:        audio.SamplesToBytes(samples),
		SampleRate:  48000,
		Channels:    2,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	if _, err := app.New(testConfig(), nil); err == nil {
		t.Fatal("expected error for nil providers")
	}
	providers, _, _ := testProviders(&audiomock.Connection{})
	providers.Synthesizer = nil
	if _, err := app.New(testConfig(), providers); err == nil {
		t.Fatal("expected error for missing synthesizer")
	}
}

func TestApp_PlaySoundEndToEnd(t *testing.T) {
	t.Parallel()

	frames := make(chan audio.Frame, 64)
	out := make(chan audio.Frame, 256)
	conn := &audiomock.Connection{FramesResult: frames, OutputResult: out, Channel: "den"}
	providers, platform, rec := testProviders(conn)

	a, err := app.New(testConfig(), providers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Shutdown(context.Background())

	platform.EmitVoiceState(audio.PresenceEvent{UserID: targetID, ChannelID: "den"})
	waitFor(t, a.Linked, "app never established a link")

	// Target speaks two loud frames, then goes quiet: one utterance.
	frames <- loudFrame(targetID, 2000)
	frames <- loudFrame(targetID, 2000)
	frames <- loudFrame(targetID, 0)

	waitFor(t, func() bool { return rec.CallCount() == 1 }, "utterance never reached recognition")
	waitFor(t, func() bool { return len(out) > 0 }, "chime never reached the output stream")
}

func TestApp_IgnoresOtherUsersPresence(t *testing.T) {
	t.Parallel()

	conn := &audiomock.Connection{}
	providers, platform, _ := testProviders(conn)
	a, err := app.New(testConfig(), providers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Shutdown(context.Background())

	platform.EmitVoiceState(audio.PresenceEvent{UserID: "bystander", ChannelID: "den"})
	time.Sleep(50 * time.Millisecond)
	if a.Linked() {
		t.Fatal("app must only follow the configured target")
	}
}

func TestApp_ApplyConfigSetsLogLevel(t *testing.T) {
	t.Parallel()

	providers, _, _ := testProviders(&audiomock.Connection{})
	level := new(slog.LevelVar)
	a, err := app.New(testConfig(), providers, app.WithLogLevelVar(level))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Shutdown(context.Background())

	old := testConfig()
	updated := testConfig()
	updated.LogLevel = config.LogDebug
	a.ApplyConfig(old, updated)

	if level.Level() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", level.Level())
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	providers, _, _ := testProviders(&audiomock.Connection{})
	a, err := app.New(testConfig(), providers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestApp_ShutdownIdempotent(t *testing.T) {
	t.Parallel()

	providers, _, _ := testProviders(&audiomock.Connection{})
	a, err := app.New(testConfig(), providers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown failed: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown failed: %v", err)
	}
}

func TestApp_ReconnectDoesNotDedupAcrossLinks(t *testing.T) {
	t.Parallel()

	links := make(chan *audiomock.Connection, 2)
	platform := &audiomock.Platform{}
	platform.ConnectFunc = func(_ context.Context, channelID string) (audio.Connection, error) {
		c := &audiomock.Connection{
			FramesResult: make(chan audio.Frame, 64),
			OutputResult: make(chan audio.Frame, 256),
			Channel:      channelID,
		}
		links <- c
		return c, nil
	}
	rec := &sttmock.Recognizer{Text: "Play sound."}
	providers := &app.Providers{
		Recognizer:  rec,
		Synthesizer: &ttsmock.Synthesizer{},
		Platform:    platform,
	}

	a, err := app.New(testConfig(), providers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Shutdown(context.Background())

	platform.EmitVoiceState(audio.PresenceEvent{UserID: targetID, ChannelID: "den"})
	waitFor(t, a.Linked, "first link never established")
	first := <-links

	first.FramesResult <- loudFrame(targetID, 2000)
	first.FramesResult <- loudFrame(targetID, 2000)
	first.FramesResult <- loudFrame(targetID, 0)
	waitFor(t, func() bool { return rec.CallCount() == 1 }, "first utterance never recognized")
	waitFor(t, func() bool { return len(first.OutputResult) > 0 }, "first chime missing")

	// Target leaves; the link tears down.
	close(first.FramesResult)
	platform.EmitVoiceState(audio.PresenceEvent{UserID: targetID, ChannelID: ""})
	waitFor(t, func() bool { return !a.Linked() }, "link never torn down")

	platform.EmitVoiceState(audio.PresenceEvent{UserID: targetID, ChannelID: "den"})
	waitFor(t, a.Linked, "second link never established")
	second := <-links

	// The identical transcript on the new link must not be treated as a
	// duplicate of the one from before the reconnect.
	second.FramesResult <- loudFrame(targetID, 2000)
	second.FramesResult <- loudFrame(targetID, 2000)
	second.FramesResult <- loudFrame(targetID, 0)
	waitFor(t, func() bool { return rec.CallCount() == 2 }, "second utterance never recognized")
	waitFor(t, func() bool { return len(second.OutputResult) > 0 }, "second chime missing")
}

// activeSpeakerCount reads the speaker gauge from a manual reader.
func activeSpeakerCount(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "lumivox.active_speakers" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				return 0
			}
			return sum.DataPoints[0].Value
		}
	}
	return 0
}

func TestApp_SpeakerActivityGauge(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	frames := make(chan audio.Frame, 64)
	conn := &audiomock.Connection{FramesResult: frames, OutputResult: make(chan audio.Frame, 256), Channel: "den"}
	providers, platform, rec := testProviders(conn)

	a, err := app.New(testConfig(), providers, app.WithMetrics(metrics))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Shutdown(context.Background())

	platform.EmitVoiceState(audio.PresenceEvent{UserID: targetID, ChannelID: "den"})
	waitFor(t, a.Linked, "app never established a link")

	frames <- loudFrame(targetID, 2000)
	frames <- loudFrame(targetID, 2000)
	waitFor(t, func() bool { return activeSpeakerCount(t, reader) == 1 },
		"gauge never rose while the target was speaking")

	frames <- loudFrame(targetID, 0)
	waitFor(t, func() bool { return rec.CallCount() == 1 }, "utterance never recognized")
	waitFor(t, func() bool { return activeSpeakerCount(t, reader) == 0 },
		"gauge never fell after the utterance ended")
}
