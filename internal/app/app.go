// Package app wires all Lumivox subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run blocks until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject mock providers via the Providers struct and test
// doubles via functional options. When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/haldreng/lumivox/internal/command"
	"github.com/haldreng/lumivox/internal/config"
	"github.com/haldreng/lumivox/internal/conn"
	"github.com/haldreng/lumivox/internal/dispatch"
	"github.com/haldreng/lumivox/internal/indicator"
	"github.com/haldreng/lumivox/internal/observe"
	"github.com/haldreng/lumivox/internal/pipeline"
	"github.com/haldreng/lumivox/internal/playback"
	"github.com/haldreng/lumivox/pkg/audio"
	"github.com/haldreng/lumivox/pkg/provider/llm"
	"github.com/haldreng/lumivox/pkg/provider/stt"
	"github.com/haldreng/lumivox/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Recognizer,
// Synthesizer and Platform are required; a nil Responder leaves the bot
// without conversational replies. Populated by main.go via the config
// registry.
type Providers struct {
	Recognizer  stt.Recognizer
	Synthesizer tts.Synthesizer
	Responder   llm.Responder
	Platform    audio.Platform
}

// App owns all subsystem lifetimes and orchestrates the voice companion
// pipeline: presence-driven connection management, per-link speech detection,
// recognition dispatch, command routing, and serialized playback.
type App struct {
	providers *Providers
	logger    *slog.Logger
	metrics   *observe.Metrics
	levelVar  *slog.LevelVar

	arbiter    *indicator.Arbiter
	serializer *playback.Serializer
	state      *command.ConversationState
	router     *command.Router
	dispatcher *dispatch.Dispatcher
	manager    *conn.Manager
	announcer  *playback.Announcer

	driver indicator.Driver

	// cfgMu guards cfg, which hot reload replaces. The pipeline factory reads
	// the latest audio tuning here so new links pick up reloaded thresholds.
	cfgMu sync.RWMutex
	cfg   *config.Config

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithIndicatorDriver injects the LED driver. Defaults to the log driver.
func WithIndicatorDriver(d indicator.Driver) Option {
	return func(a *App) { a.driver = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics attaches metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar hands the app the level var backing the process logger so
// config hot reload can adjust verbosity.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go, populated via the config registry.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Recognizer == nil || providers.Synthesizer == nil || providers.Platform == nil {
		return nil, fmt.Errorf("app: recognizer, synthesizer and platform providers are required")
	}

	a := &App{
		providers: providers,
		cfg:       cfg,
	}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.initIndicator()
	a.initPlayback()
	a.initRouting()
	a.initConnection()

	return a, nil
}

// initIndicator builds the LED arbiter when the indicator is enabled.
func (a *App) initIndicator() {
	if !a.cfg.Indicator.Enabled {
		return
	}
	if a.driver == nil {
		a.driver = &indicator.LogDriver{Logger: a.logger}
	}
	a.arbiter = indicator.NewArbiter(a.driver, indicator.WithColors(colorMap(a.cfg.Indicator.Colors)))
	a.closers = append(a.closers, func() error {
		a.arbiter.Close()
		return nil
	})
}

// initPlayback builds the serializer and the weekly announcer.
func (a *App) initPlayback() {
	a.serializer = playback.NewSerializer(a.providers.Synthesizer,
		playback.WithVoice(voiceFromEntry(a.cfg.Providers.TTS)),
		playback.WithLogger(a.logger),
		playback.WithMetrics(a.metrics),
	)
}

// initRouting builds the conversation state, command router and dispatcher.
func (a *App) initRouting() {
	a.state = command.NewConversationState()

	routerOpts := []command.RouterOption{
		command.WithRouterLogger(a.logger),
		command.WithRouterMetrics(a.metrics),
	}
	if a.providers.Responder != nil {
		routerOpts = append(routerOpts, command.WithResponder(a.providers.Responder))
	}
	a.router = command.NewRouter(a.serializer, a.state, phrasesFromConfig(a.cfg.Commands), routerOpts...)

	dispatchOpts := []dispatch.Option{
		dispatch.WithDebounce(a.cfg.Dispatch.Debounce()),
		dispatch.WithCooldown(a.cfg.Dispatch.Cooldown()),
		dispatch.WithRecognitionTimeout(a.cfg.Dispatch.RecognitionTimeout()),
		dispatch.WithMetrics(a.metrics),
	}
	if a.arbiter != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithBusyCallback(a.arbiter.Processing))
	}
	a.dispatcher = dispatch.New(a.providers.Recognizer, a.router, dispatchOpts...)
	a.closers = append(a.closers, func() error {
		a.dispatcher.Close()
		return nil
	})
}

// initConnection builds the connection manager and the announcer riding on
// its link state.
func (a *App) initConnection() {
	a.manager = conn.New(a.providers.Platform, a.cfg.Discord.TargetUserID, a.buildPipeline,
		conn.WithSettleDelay(a.cfg.Connection.SettleDelay()),
		conn.WithConnectTimeout(a.cfg.Connection.ConnectTimeout()),
		conn.WithLogger(a.logger),
		conn.WithMetrics(a.metrics),
		conn.OnLinkUp(func(c audio.Connection) {
			a.serializer.SetLink(c)
		}),
		conn.OnLinkDown(func() {
			a.serializer.ClearLink()
			if a.arbiter != nil {
				a.arbiter.Clear()
			}
		}),
	)
	a.closers = append(a.closers, func() error {
		a.manager.Close()
		return nil
	})

	announcerOpts := []playback.AnnouncerOption{
		playback.WithAnnouncerLogger(a.logger),
		playback.WithAnnouncerMetrics(a.metrics),
	}
	if a.arbiter != nil {
		announcerOpts = append(announcerOpts, playback.WithNotifier(a.arbiter))
	}
	a.announcer = playback.NewAnnouncer(a.serializer, a.manager, a.cfg.Announcement, announcerOpts...)
}

// buildPipeline is the factory handed to the connection manager: one fresh
// detector per link, with the conversation state and dispatcher wiped so
// nothing carries over from the previous channel.
func (a *App) buildPipeline() conn.Pipeline {
	a.state.Reset()
	a.dispatcher.Reset()

	a.cfgMu.RLock()
	audioCfg := a.cfg.Audio
	targetID := a.cfg.Discord.TargetUserID
	a.cfgMu.RUnlock()

	opts := []pipeline.DetectorOption{
		pipeline.WithEnergyThreshold(audioCfg.EnergyThreshold),
		pipeline.WithMinUtterance(audioCfg.MinUtterance()),
	}
	opts = append(opts, pipeline.WithActivityCallback(func(participant string, active bool) {
		delta := int64(-1)
		if active {
			delta = 1
		}
		a.metrics.ActiveSpeakers.Add(context.Background(), delta)
		if a.arbiter != nil {
			a.arbiter.SpeakerActive(participant, participant == targetID, active)
		}
	}))
	return pipeline.NewDetector(a.dispatcher, opts...)
}

// Run blocks until ctx is cancelled, driving the announcer scheduler. The
// presence-driven connection machinery runs on its own goroutines from New.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("lumivox running", "target", a.cfg.Discord.TargetUserID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.announcer.Run(ctx)
	})
	return g.Wait()
}

// ApplyConfig is the config watcher callback. It applies the hot-reloadable
// parts of the diff and stores the new config for the next link's pipeline.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Any() {
		return
	}
	a.logger.Info("applying config change",
		"log_level", d.LogLevelChanged,
		"phrases", d.PhrasesChanged,
		"audio", d.AudioChanged,
		"colors", d.ColorsChanged,
		"announcement", d.AnnouncementChanged,
	)

	a.cfgMu.Lock()
	a.cfg = new
	a.cfgMu.Unlock()

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Slog())
	}
	if d.PhrasesChanged {
		a.router.ReloadPhrases(phrasesFromConfig(new.Commands))
	}
	if d.ColorsChanged && a.arbiter != nil {
		a.arbiter.ReloadColors(colorMap(new.Indicator.Colors))
	}
	if d.AnnouncementChanged {
		a.announcer.Reload(new.Announcement)
	}
}

// Linked reports whether a voice link is currently established.
func (a *App) Linked() bool {
	return a.manager.Linked()
}

// Disconnect asks the connection manager to drop the active link.
func (a *App) Disconnect() {
	a.manager.Disconnect()
}

// Shutdown tears down all subsystems in reverse wiring order. It respects
// the context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.logger.Warn("closer error", "index", i, "error", err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// colorMap converts configured color overrides to arbiter colors, keyed by
// the indicator state they belong to.
func colorMap(colors map[string]config.RGB) map[indicator.State]indicator.Color {
	out := make(map[indicator.State]indicator.Color)
	states := []indicator.State{
		indicator.StateOtherSpeaking,
		indicator.StateTargetSpeaking,
		indicator.StateProcessing,
		indicator.StateNotification,
	}
	for _, s := range states {
		if rgb, ok := colors[s.String()]; ok {
			out[s] = indicator.Color{R: rgb.R, G: rgb.G, B: rgb.B}
		}
	}
	return out
}

// phrasesFromConfig converts the config phrase lists into router phrases.
func phrasesFromConfig(c config.CommandsConfig) command.Phrases {
	return command.Phrases{
		Wake:     c.WakePhrases,
		Sleep:    c.SleepPhrases,
		Resume:   c.ResumePhrases,
		Goodbye:  c.GoodbyePhrases,
		Phonetic: c.PhoneticMatching,
	}
}

// voiceFromEntry builds the synthesis voice from the TTS provider entry.
func voiceFromEntry(entry config.ProviderEntry) tts.Voice {
	v := tts.Voice{ID: entry.Voice}
	if f, ok := entry.Options["stability"].(float64); ok {
		v.Stability = f
	}
	if f, ok := entry.Options["similarity_boost"].(float64); ok {
		v.SimilarityBoost = f
	}
	if f, ok := entry.Options["speed"].(float64); ok {
		v.Speed = f
	}
	return v
}
