package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper"},
	"tts": {"openai", "elevenlabs"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// validColorKeys lists the indicator states a color can be assigned to.
var validColorKeys = []string{"target_speaking", "other_speaking", "processing", "notification"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued tuning fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Audio.EnergyThreshold == 0 {
		cfg.Audio.EnergyThreshold = DefaultEnergyThreshold
	}
	if cfg.Audio.MinUtteranceMs == 0 {
		cfg.Audio.MinUtteranceMs = DefaultMinUtteranceMs
	}
	if cfg.Dispatch.DebounceMs == 0 {
		cfg.Dispatch.DebounceMs = DefaultDebounceMs
	}
	if cfg.Dispatch.CooldownMs == 0 {
		cfg.Dispatch.CooldownMs = DefaultCooldownMs
	}
	if cfg.Dispatch.RecognitionTimeoutS == 0 {
		cfg.Dispatch.RecognitionTimeoutS = DefaultRecognitionTimeoutS
	}
	if cfg.Connection.SettleDelayMs == 0 {
		cfg.Connection.SettleDelayMs = DefaultSettleDelayMs
	}
	if cfg.Connection.ConnectTimeoutS == 0 {
		cfg.Connection.ConnectTimeoutS = DefaultConnectTimeoutS
	}
	if cfg.Announcement.Enabled && cfg.Announcement.Hour == 0 && cfg.Announcement.Minute == 0 && cfg.Announcement.Weekday == 0 {
		// Enabled with everything unset means "the usual slot".
		cfg.Announcement.Weekday = int(time.Friday)
		cfg.Announcement.Hour = 19
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Discord identity is mandatory.
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if cfg.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guild_id is required"))
	}
	if cfg.Discord.TargetUserID == "" {
		errs = append(errs, errors.New("discord.target_user_id is required"))
	}

	if cfg.Audio.EnergyThreshold < 0 || cfg.Audio.EnergyThreshold > 32767 {
		errs = append(errs, fmt.Errorf("audio.energy_threshold %d is out of range [0, 32767]", cfg.Audio.EnergyThreshold))
	}
	if cfg.Audio.MinUtteranceMs < 0 {
		errs = append(errs, fmt.Errorf("audio.min_utterance_ms %d must not be negative", cfg.Audio.MinUtteranceMs))
	}
	if cfg.Dispatch.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("dispatch.debounce_ms %d must not be negative", cfg.Dispatch.DebounceMs))
	}
	if cfg.Dispatch.CooldownMs < 0 {
		errs = append(errs, fmt.Errorf("dispatch.cooldown_ms %d must not be negative", cfg.Dispatch.CooldownMs))
	}
	if cfg.Dispatch.RecognitionTimeoutS < 0 {
		errs = append(errs, fmt.Errorf("dispatch.recognition_timeout_s %d must not be negative", cfg.Dispatch.RecognitionTimeoutS))
	}
	if cfg.Connection.SettleDelayMs < 0 {
		errs = append(errs, fmt.Errorf("connection.settle_delay_ms %d must not be negative", cfg.Connection.SettleDelayMs))
	}
	if cfg.Connection.ConnectTimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("connection.connect_timeout_s %d must be positive", cfg.Connection.ConnectTimeoutS))
	}

	if cfg.Commands.PhoneticMatching && len(cfg.Commands.WakePhrases) == 0 {
		slog.Warn("commands.phonetic_matching is enabled but no wake phrases are configured")
	}

	for key := range cfg.Indicator.Colors {
		if !slices.Contains(validColorKeys, key) {
			errs = append(errs, fmt.Errorf("indicator.colors key %q is unknown; valid keys: %v", key, validColorKeys))
		}
	}

	if cfg.Announcement.Enabled {
		if cfg.Announcement.Weekday < 0 || cfg.Announcement.Weekday > 6 {
			errs = append(errs, fmt.Errorf("announcement.weekday %d is out of range [0, 6]", cfg.Announcement.Weekday))
		}
		if cfg.Announcement.Hour < 0 || cfg.Announcement.Hour > 23 {
			errs = append(errs, fmt.Errorf("announcement.hour %d is out of range [0, 23]", cfg.Announcement.Hour))
		}
		if cfg.Announcement.Minute < 0 || cfg.Announcement.Minute > 59 {
			errs = append(errs, fmt.Errorf("announcement.minute %d is out of range [0, 59]", cfg.Announcement.Minute))
		}
		if cfg.Announcement.Text == "" {
			errs = append(errs, errors.New("announcement.text is required when announcement.enabled is true"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.STT.Name == "whisper" && cfg.Providers.STT.Model == "" {
		errs = append(errs, errors.New("providers.stt.model (whisper model file path) is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; conversational mode will answer with canned replies")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
