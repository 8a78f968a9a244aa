package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haldreng/lumivox/internal/config"
	"github.com/haldreng/lumivox/internal/observe"
)

// Notifier is the indicator hook the announcer drives while an announcement
// plays. The LED arbiter satisfies it.
type Notifier interface {
	Notification(active bool)
}

// LinkChecker reports whether a voice link is currently up. Announcements
// only fire into an active link; a missed slot is skipped, not queued.
type LinkChecker interface {
	Linked() bool
}

// Announcer plays a configured announcement once a week at a fixed local
// wall-clock slot. It checks the clock once a minute rather than arming a
// long timer, so host sleep and clock adjustments cannot strand it.
type Announcer struct {
	serializer *Serializer
	link       LinkChecker
	notifier   Notifier
	logger     *slog.Logger
	metrics    *observe.Metrics
	now        func() time.Time
	interval   time.Duration

	mu  sync.Mutex
	cfg config.AnnouncementConfig
	// lastFired guards against double-firing within the same minute slot.
	lastFired time.Time
}

// AnnouncerOption configures an Announcer.
type AnnouncerOption func(*Announcer)

// WithAnnouncerLogger sets the logger.
func WithAnnouncerLogger(l *slog.Logger) AnnouncerOption {
	return func(a *Announcer) { a.logger = l }
}

// WithAnnouncerMetrics attaches metrics instruments.
func WithAnnouncerMetrics(m *observe.Metrics) AnnouncerOption {
	return func(a *Announcer) { a.metrics = m }
}

// WithNotifier sets the indicator hook driven during playback.
func WithNotifier(n Notifier) AnnouncerOption {
	return func(a *Announcer) { a.notifier = n }
}

// withClock overrides the wall clock and tick interval, for tests.
func withClock(now func() time.Time, interval time.Duration) AnnouncerOption {
	return func(a *Announcer) {
		a.now = now
		a.interval = interval
	}
}

// NewAnnouncer creates an announcer speaking through the serializer whenever
// cfg's weekly slot comes up and link reports an active connection.
func NewAnnouncer(serializer *Serializer, link LinkChecker, cfg config.AnnouncementConfig, opts ...AnnouncerOption) *Announcer {
	a := &Announcer{
		serializer: serializer,
		link:       link,
		cfg:        cfg,
		now:        time.Now,
		interval:   time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Reload swaps the announcement settings, for config hot reload.
func (a *Announcer) Reload(cfg config.AnnouncementConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
}

// Run polls the clock until ctx is cancelled. Intended to run under the
// app's errgroup; always returns ctx.Err().
func (a *Announcer) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Announcer) tick(ctx context.Context) {
	a.mu.Lock()
	cfg := a.cfg
	last := a.lastFired
	a.mu.Unlock()

	if !cfg.Enabled || cfg.Text == "" {
		return
	}
	now := a.now()
	if int(now.Weekday()) != cfg.Weekday || now.Hour() != cfg.Hour || now.Minute() != cfg.Minute {
		return
	}
	slot := now.Truncate(time.Minute)
	if slot.Equal(last) {
		return
	}
	if !a.link.Linked() {
		a.logger.Info("announcement slot reached without active link, skipping")
		return
	}

	a.mu.Lock()
	a.lastFired = slot
	a.mu.Unlock()

	a.logger.Info("playing weekly announcement")
	if a.notifier != nil {
		a.notifier.Notification(true)
		defer a.notifier.Notification(false)
	}
	if err := a.serializer.Chime(ctx); err != nil {
		a.logger.Warn("announcement chime failed", "error", err)
	}
	if err := a.serializer.Say(ctx, cfg.Text); err != nil {
		a.logger.Warn("announcement failed", "error", err)
		return
	}
	if a.metrics != nil {
		a.metrics.RecordReply(ctx, "announcement")
	}
}
