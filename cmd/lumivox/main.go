// Command lumivox is the Discord voice companion daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haldreng/lumivox/internal/app"
	"github.com/haldreng/lumivox/internal/config"
	"github.com/haldreng/lumivox/internal/health"
	"github.com/haldreng/lumivox/internal/observe"
	"github.com/haldreng/lumivox/internal/resilience"
	discordaudio "github.com/haldreng/lumivox/pkg/audio/discord"
	"github.com/haldreng/lumivox/pkg/provider/llm"
	"github.com/haldreng/lumivox/pkg/provider/llm/anyllm"
	"github.com/haldreng/lumivox/pkg/provider/stt"
	"github.com/haldreng/lumivox/pkg/provider/stt/whisper"
	"github.com/haldreng/lumivox/pkg/provider/tts"
	"github.com/haldreng/lumivox/pkg/provider/tts/elevenlabs"
	"github.com/haldreng/lumivox/pkg/provider/tts/openaitts"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	opsAddr := flag.String("ops-addr", "127.0.0.1:9090", "listen address for /metrics and health endpoints (empty to disable)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lumivox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lumivox: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(cfg.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("lumivox starting",
		"version", version,
		"config", *configPath,
		"guild", cfg.Discord.GuildID,
		"target", cfg.Discord.TargetUserID,
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "lumivox",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, closers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}()

	// ── Discord session ───────────────────────────────────────────────────────
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		slog.Error("failed to create Discord session", "err", err)
		return 1
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	if err := session.Open(); err != nil {
		slog.Error("failed to open Discord gateway", "err", err)
		return 1
	}
	defer session.Close()
	slog.Info("discord gateway connected", "guild", cfg.Discord.GuildID)

	providers.Platform = discordaudio.New(session, cfg.Discord.GuildID)

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, providers,
		app.WithLogger(logger),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithLogLevelVar(level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Ops endpoints ─────────────────────────────────────────────────────────
	if *opsAddr != "" {
		opsServer := newOpsServer(*opsAddr, session, application)
		go func() {
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops server error", "err", err)
			}
		}()
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = opsServer.Shutdown(shCtx)
		}()
		slog.Info("ops endpoints listening", "addr", *opsAddr)
	}

	slog.Info("companion ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []openaitts.Option
		if entry.Model != "" {
			opts = append(opts, openaitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openaitts.WithBaseURL(entry.BaseURL))
		}
		return openaitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Responder, error) {
			var backendOpts []anyllmlib.Option
			if entry.APIKey != "" {
				backendOpts = append(backendOpts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, backendOpts, llmOptions(entry)...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Responder, error) {
		var backendOpts []anyllmlib.Option
		if entry.BaseURL != "" {
			backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, backendOpts, llmOptions(entry)...)
	})
}

// llmOptions extracts responder tuning from a provider entry's options map.
func llmOptions(entry config.ProviderEntry) []anyllm.Option {
	var opts []anyllm.Option
	if prompt := optString(entry.Options, "system_prompt"); prompt != "" {
		opts = append(opts, anyllm.WithSystemPrompt(prompt))
	}
	if n, ok := entry.Options["max_tokens"].(int); ok && n > 0 {
		opts = append(opts, anyllm.WithMaxTokens(n))
	}
	return opts
}

// buildProviders instantiates the providers named in cfg. Recognition and
// synthesis are required; a missing LLM leaves conversational mode canned.
// Entries with a fallback block are wrapped in circuit-breaker failover.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, []func() error, error) {
	ps := &app.Providers{}
	var closers []func() error

	rec, err := buildSTT(cfg.Providers.STT, reg)
	if err != nil {
		return nil, nil, err
	}
	ps.Recognizer = rec
	if c, ok := rec.(interface{ Close() error }); ok {
		closers = append(closers, c.Close)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	synth, err := buildTTS(cfg.Providers.TTS, reg)
	if err != nil {
		return nil, nil, err
	}
	ps.Synthesizer = synth
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	if name := cfg.Providers.LLM.Name; name != "" {
		responder, err := buildLLM(cfg.Providers.LLM, reg)
		if err != nil {
			return nil, nil, err
		}
		ps.Responder = responder
		slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
	} else {
		slog.Warn("no llm provider configured — conversational replies disabled")
	}

	return ps, closers, nil
}

// fallbackConfig is shared by every provider failover group.
var fallbackConfig = resilience.FallbackConfig{
	CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  3,
		ResetTimeout: time.Minute,
	},
}

func buildSTT(entry config.ProviderEntry, reg *config.Registry) (stt.Recognizer, error) {
	primary, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	if entry.Fallback == nil {
		return primary, nil
	}
	fb := resilience.NewSTTFallback(primary, entry.Name, fallbackConfig)
	for next := entry.Fallback; next != nil; next = next.Fallback {
		backup, err := reg.CreateSTT(*next)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", next.Name, err)
		}
		fb.AddFallback(next.Name, backup)
		slog.Info("fallback registered", "kind", "stt", "name", next.Name)
	}
	return fb, nil
}

func buildTTS(entry config.ProviderEntry, reg *config.Registry) (tts.Synthesizer, error) {
	primary, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	if entry.Fallback == nil {
		return primary, nil
	}
	fb := resilience.NewTTSFallback(primary, entry.Name, fallbackConfig)
	for next := entry.Fallback; next != nil; next = next.Fallback {
		backup, err := reg.CreateTTS(*next)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", next.Name, err)
		}
		fb.AddFallback(next.Name, backup)
		slog.Info("fallback registered", "kind", "tts", "name", next.Name)
	}
	return fb, nil
}

func buildLLM(entry config.ProviderEntry, reg *config.Registry) (llm.Responder, error) {
	primary, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	if entry.Fallback == nil {
		return primary, nil
	}
	fb := resilience.NewLLMFallback(primary, entry.Name, fallbackConfig)
	for next := entry.Fallback; next != nil; next = next.Fallback {
		backup, err := reg.CreateLLM(*next)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", next.Name, err)
		}
		fb.AddFallback(next.Name, backup)
		slog.Info("fallback registered", "kind", "llm", "name", next.Name)
	}
	return fb, nil
}

// ── Ops endpoints ─────────────────────────────────────────────────────────────

// newOpsServer serves Prometheus metrics plus the liveness and readiness endpoints.
func newOpsServer(addr string, session *discordgo.Session, application *app.App) *http.Server {
	checker := health.New(
		health.Checker{
			Name: "discord_gateway",
			Check: func(context.Context) error {
				if session.HeartbeatLatency() > time.Minute {
					return fmt.Errorf("gateway heartbeat stalled")
				}
				return nil
			},
		},
		health.Checker{
			Name: "voice_link",
			Check: func(context.Context) error {
				// Informational only: not being in a channel is a valid state.
				_ = application.Linked()
				return nil
			},
		},
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	checker.Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
