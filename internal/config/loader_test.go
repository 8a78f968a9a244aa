package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/haldreng/lumivox/internal/config"
)

const minimalYAML = `
discord:
  token: "token"
  guild_id: "1"
  target_user_id: "2"
providers:
  stt:
    name: whisper
    model: /models/ggml-base.en.bin
  tts:
    name: elevenlabs
    api_key: "xi-test"
    voice: "voice-id"
`

func TestLoadFromReader_Minimal(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != config.LogInfo {
		t.Errorf("log_level default: got %q, want %q", cfg.LogLevel, config.LogInfo)
	}
	if cfg.Audio.EnergyThreshold != config.DefaultEnergyThreshold {
		t.Errorf("energy_threshold default: got %d, want %d", cfg.Audio.EnergyThreshold, config.DefaultEnergyThreshold)
	}
	if got := cfg.Dispatch.Debounce(); got != 500*time.Millisecond {
		t.Errorf("debounce default: got %v, want 500ms", got)
	}
	if got := cfg.Dispatch.Cooldown(); got != 2*time.Second {
		t.Errorf("cooldown default: got %v, want 2s", got)
	}
	if got := cfg.Dispatch.RecognitionTimeout(); got != 30*time.Second {
		t.Errorf("recognition timeout default: got %v, want 30s", got)
	}
	if got := cfg.Connection.SettleDelay(); got != time.Second {
		t.Errorf("settle delay default: got %v, want 1s", got)
	}
	if got := cfg.Connection.ConnectTimeout(); got != 10*time.Second {
		t.Errorf("connect timeout default: got %v, want 10s", got)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
typo_section:
  value: 1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_MissingDiscordIdentity(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: whisper
    model: /models/ggml-base.en.bin
  tts:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing discord identity, got nil")
	}
	for _, want := range []string{"discord.token", "discord.guild_id", "discord.target_user_id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
log_level: bananas
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_EnergyThresholdRange(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
audio:
  energy_threshold: 40000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range energy threshold, got nil")
	}
	if !strings.Contains(err.Error(), "energy_threshold") {
		t.Errorf("error should mention energy_threshold, got: %v", err)
	}
}

func TestValidate_WhisperRequiresModelPath(t *testing.T) {
	t.Parallel()
	yaml := `
discord:
  token: "token"
  guild_id: "1"
  target_user_id: "2"
providers:
  stt:
    name: whisper
  tts:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for whisper without model path, got nil")
	}
	if !strings.Contains(err.Error(), "providers.stt.model") {
		t.Errorf("error should mention providers.stt.model, got: %v", err)
	}
}

func TestValidate_UnknownColorKey(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
indicator:
  enabled: true
  colors:
    disco_mode: {r: 255, g: 0, b: 255}
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown color key, got nil")
	}
	if !strings.Contains(err.Error(), "disco_mode") {
		t.Errorf("error should mention the bad key, got: %v", err)
	}
}

func TestValidate_AnnouncementRanges(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
announcement:
  enabled: true
  weekday: 9
  hour: 25
  minute: 61
  text: "it is time"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range announcement schedule, got nil")
	}
	for _, want := range []string{"weekday", "hour", "minute"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_AnnouncementRequiresText(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
announcement:
  enabled: true
  weekday: 5
  hour: 19
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for announcement without text, got nil")
	}
	if !strings.Contains(err.Error(), "announcement.text") {
		t.Errorf("error should mention announcement.text, got: %v", err)
	}
}

func TestApplyDefaults_AnnouncementDefaultSlot(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Announcement.Enabled = true
	config.ApplyDefaults(cfg)

	if cfg.Announcement.Weekday != int(time.Friday) {
		t.Errorf("weekday: got %d, want %d", cfg.Announcement.Weekday, int(time.Friday))
	}
	if cfg.Announcement.Hour != 19 {
		t.Errorf("hour: got %d, want 19", cfg.Announcement.Hour)
	}
}

func TestValidate_CommandPhrasesParsed(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
commands:
  wake_phrases: ["hey lumi", "lumi"]
  sleep_phrases: ["go to sleep", "good night"]
  resume_phrases: ["wake up", "good morning"]
  goodbye_phrases: ["goodbye", "see you later"]
  phonetic_matching: true
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Commands.WakePhrases) != 2 {
		t.Errorf("wake_phrases: got %d entries, want 2", len(cfg.Commands.WakePhrases))
	}
	if !cfg.Commands.PhoneticMatching {
		t.Error("phonetic_matching should be true")
	}
}
