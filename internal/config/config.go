// Package config provides the configuration schema, loader, and file watcher
// for the Lumivox voice companion.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps the level onto its slog equivalent. Unrecognised values map to
// info, matching the loader's default.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for Lumivox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel     LogLevel           `yaml:"log_level"`
	Discord      DiscordConfig      `yaml:"discord"`
	Audio        AudioConfig        `yaml:"audio"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Commands     CommandsConfig     `yaml:"commands"`
	Connection   ConnectionConfig   `yaml:"connection"`
	Indicator    IndicatorConfig    `yaml:"indicator"`
	Announcement AnnouncementConfig `yaml:"announcement"`
	Providers    ProvidersConfig    `yaml:"providers"`
}

// DiscordConfig identifies the bot account, the guild it serves, and the
// user it follows between voice channels.
type DiscordConfig struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// GuildID is the single guild the companion operates in.
	GuildID string `yaml:"guild_id"`

	// TargetUserID is the user whose voice-channel presence the bot follows.
	TargetUserID string `yaml:"target_user_id"`
}

// AudioConfig tunes speech boundary detection on the inbound audio stream.
type AudioConfig struct {
	// EnergyThreshold is the peak absolute 16-bit sample value above which a
	// frame counts as speech, independent of the transport speaking signal.
	EnergyThreshold int `yaml:"energy_threshold"`

	// MinUtteranceMs is the minimum accumulated speech duration (at the
	// recognition sample rate) required for an utterance to be dispatched.
	// Shorter bursts are discarded as noise.
	MinUtteranceMs int `yaml:"min_utterance_ms"`
}

// DispatchConfig tunes the recognition dispatcher.
type DispatchConfig struct {
	// DebounceMs is how long a dequeued utterance waits before recognition;
	// a newer utterance arriving during the wait supersedes it.
	DebounceMs int `yaml:"debounce_ms"`

	// CooldownMs is the window after a completed response during which new
	// utterances are dropped, so the bot does not respond to itself.
	CooldownMs int `yaml:"cooldown_ms"`

	// RecognitionTimeoutS bounds a single speech-to-text call, in seconds.
	RecognitionTimeoutS int `yaml:"recognition_timeout_s"`
}

// CommandsConfig holds the spoken phrase sets the command router matches.
// Matching is case-insensitive substring containment.
type CommandsConfig struct {
	// WakePhrases put the bot into conversational mode (e.g., "hey lumi").
	WakePhrases []string `yaml:"wake_phrases"`

	// SleepPhrases put the bot to sleep and exit conversational mode.
	SleepPhrases []string `yaml:"sleep_phrases"`

	// ResumePhrases wake the bot from sleep.
	ResumePhrases []string `yaml:"resume_phrases"`

	// GoodbyePhrases end conversational mode politely and sleep.
	GoodbyePhrases []string `yaml:"goodbye_phrases"`

	// PhoneticMatching enables a Metaphone comparison as a fallback when the
	// substring match for a wake phrase fails. Off by default.
	PhoneticMatching bool `yaml:"phonetic_matching"`
}

// ConnectionConfig tunes the voice connection state machine.
type ConnectionConfig struct {
	// SettleDelayMs is the pause between leaving one voice channel and
	// joining the next.
	SettleDelayMs int `yaml:"settle_delay_ms"`

	// ConnectTimeoutS bounds a single voice join attempt, in seconds.
	ConnectTimeoutS int `yaml:"connect_timeout_s"`
}

// IndicatorConfig configures the LED indicator.
type IndicatorConfig struct {
	// Enabled turns the indicator on. When false a logging no-op driver is
	// used.
	Enabled bool `yaml:"enabled"`

	// Colors maps indicator states to RGB values. Recognised keys:
	// "target_speaking", "other_speaking", "processing", "notification".
	// Missing keys fall back to built-in defaults.
	Colors map[string]RGB `yaml:"colors"`
}

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R uint8 `yaml:"r"`
	G uint8 `yaml:"g"`
	B uint8 `yaml:"b"`
}

// AnnouncementConfig configures the weekly scheduled announcement.
type AnnouncementConfig struct {
	// Enabled turns the scheduler on.
	Enabled bool `yaml:"enabled"`

	// Weekday is the day the announcement fires (0 = Sunday … 6 = Saturday).
	Weekday int `yaml:"weekday"`

	// Hour and Minute are the local wall-clock time the announcement fires.
	Hour   int `yaml:"hour"`
	Minute int `yaml:"minute"`

	// Text is synthesized and played when the announcement fires.
	Text string `yaml:"text"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "whisper", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "eleven_flash_v2_5", or a whisper model file path).
	Model string `yaml:"model"`

	// Voice is the provider-specific voice identifier for TTS providers.
	Voice string `yaml:"voice"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`

	// Fallback declares a secondary provider to fail over to when this one
	// errors repeatedly. Fallback entries may nest to chain more than one
	// backup.
	Fallback *ProviderEntry `yaml:"fallback"`
}

// Defaults applied by Validate when fields are zero.
const (
	DefaultEnergyThreshold     = 500
	DefaultMinUtteranceMs      = 400
	DefaultDebounceMs          = 500
	DefaultCooldownMs          = 2000
	DefaultRecognitionTimeoutS = 30
	DefaultSettleDelayMs       = 1000
	DefaultConnectTimeoutS     = 10
)

// MinUtterance returns the minimum utterance duration as a time.Duration.
func (a AudioConfig) MinUtterance() time.Duration {
	return time.Duration(a.MinUtteranceMs) * time.Millisecond
}

// Debounce returns the debounce window as a time.Duration.
func (d DispatchConfig) Debounce() time.Duration {
	return time.Duration(d.DebounceMs) * time.Millisecond
}

// Cooldown returns the cooldown window as a time.Duration.
func (d DispatchConfig) Cooldown() time.Duration {
	return time.Duration(d.CooldownMs) * time.Millisecond
}

// RecognitionTimeout returns the recognition timeout as a time.Duration.
func (d DispatchConfig) RecognitionTimeout() time.Duration {
	return time.Duration(d.RecognitionTimeoutS) * time.Second
}

// SettleDelay returns the channel-move settle delay as a time.Duration.
func (c ConnectionConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// ConnectTimeout returns the voice join timeout as a time.Duration.
func (c ConnectionConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutS) * time.Second
}
