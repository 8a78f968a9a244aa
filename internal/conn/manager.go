// Package conn manages the bot's single voice link: it follows the target
// participant between channels, owns the connect/disconnect state machine,
// and attaches a fresh audio pipeline to every established link.
package conn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haldreng/lumivox/internal/observe"
	"github.com/haldreng/lumivox/pkg/audio"
)

// State is the connection lifecycle phase.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Pipeline receives the captured audio of one link. A fresh pipeline is
// built for every link so no detection state leaks across reconnects.
// *pipeline.Detector satisfies it.
type Pipeline interface {
	Ingest(f audio.Frame)
	SetTransportSpeaking(participant string, speaking bool)
	FlushAll()
}

// PipelineFactory builds the pipeline for a newly established link.
type PipelineFactory func() Pipeline

const (
	defaultSettleDelay    = time.Second
	defaultConnectTimeout = 10 * time.Second
)

type requestKind int

const (
	reqFollow requestKind = iota
	reqDisconnect
	reqDrop
)

// request is one unit of work on the manager's queue. Follow requests
// coalesce: only the latest target channel matters, intermediate hops are
// stale by the time the worker gets to them.
type request struct {
	kind      requestKind
	channelID string
	conn      audio.Connection // reqDrop: the link that reported the drop
	err       error            // reqDrop: the transport's reason
}

// link bundles everything belonging to one established connection.
type link struct {
	conn     audio.Connection
	pipeline Pipeline
	pumpDone chan struct{}
}

// Manager owns the single voice link. All connects and disconnects happen on
// one worker goroutine; other goroutines only enqueue requests, so the state
// machine never races.
type Manager struct {
	platform audio.Platform
	targetID string
	factory  PipelineFactory
	logger   *slog.Logger
	metrics  *observe.Metrics

	settleDelay    time.Duration
	connectTimeout time.Duration

	onLinkUp   []func(conn audio.Connection)
	onLinkDown []func()

	mu          sync.Mutex
	state       State
	queue       []request
	current     *link
	lastChannel string

	notify    chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithSettleDelay sets the pause between tearing down the old link and
// dialing the new one. The transport needs a moment to register the
// disconnect or the new join can fail.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Manager) { m.settleDelay = d }
}

// WithConnectTimeout bounds each connection attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) { m.connectTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics attaches metrics instruments.
func WithMetrics(mx *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// OnLinkUp registers a hook run after a link is established, in registration
// order. The playback serializer attaches itself here.
func OnLinkUp(fn func(conn audio.Connection)) Option {
	return func(m *Manager) { m.onLinkUp = append(m.onLinkUp, fn) }
}

// OnLinkDown registers a hook run after a link is torn down, in registration
// order.
func OnLinkDown(fn func()) Option {
	return func(m *Manager) { m.onLinkDown = append(m.onLinkDown, fn) }
}

// New creates a manager following targetUserID on the platform and starts
// its worker. It registers itself for the platform's presence events.
func New(platform audio.Platform, targetUserID string, factory PipelineFactory, opts ...Option) *Manager {
	m := &Manager{
		platform:       platform,
		targetID:       targetUserID,
		factory:        factory,
		settleDelay:    defaultSettleDelay,
		connectTimeout: defaultConnectTimeout,
		notify:         make(chan struct{}, 1),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	platform.OnVoiceState(m.HandlePresence)
	go m.worker()
	return m
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Linked reports whether a link is currently established.
func (m *Manager) Linked() bool {
	return m.State() == Connected
}

// ChannelID returns the channel of the active link, or empty.
func (m *Manager) ChannelID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.conn.ChannelID()
}

// HandlePresence is the ingestion boundary for platform presence events.
// Events for other users, and malformed events without a user ID, are
// dropped here.
func (m *Manager) HandlePresence(ev audio.PresenceEvent) {
	if ev.UserID == "" {
		m.logger.Debug("dropping presence event without user id")
		return
	}
	if ev.UserID != m.targetID {
		return
	}
	if ev.ChannelID == "" {
		m.logger.Info("target left voice", "user", ev.UserID)
	} else {
		m.logger.Info("target presence change", "user", ev.UserID, "channel", ev.ChannelID)
	}
	m.enqueue(request{kind: reqFollow, channelID: ev.ChannelID})
}

// Disconnect asks the worker to tear down the active link.
func (m *Manager) Disconnect() {
	m.enqueue(request{kind: reqDisconnect})
}

// Reconnect tears down and re-dials the last known channel. No-op when the
// target was never seen in a channel.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	channel := m.lastChannel
	m.mu.Unlock()
	if channel == "" {
		return
	}
	m.enqueue(request{kind: reqDisconnect})
	m.enqueue(request{kind: reqFollow, channelID: channel})
}

// Close stops the worker and tears down any active link. Idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	<-m.stopped
}

// enqueue adds a request, coalescing follow requests so only the newest
// target channel survives.
func (m *Manager) enqueue(req request) {
	m.mu.Lock()
	if req.kind == reqFollow {
		kept := m.queue[:0]
		for _, q := range m.queue {
			if q.kind != reqFollow {
				kept = append(kept, q)
			}
		}
		m.queue = kept
	}
	m.queue = append(m.queue, req)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Manager) pop() (request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return request{}, false
	}
	req := m.queue[0]
	m.queue = m.queue[1:]
	return req, true
}

// worker is the single consumer of the request queue.
func (m *Manager) worker() {
	defer close(m.stopped)
	for {
		select {
		case <-m.done:
			m.teardown("shutdown")
			return
		case <-m.notify:
			for {
				req, ok := m.pop()
				if !ok {
					break
				}
				if !m.handle(req) {
					m.teardown("shutdown")
					return
				}
			}
		}
	}
}

// handle processes one request. Returns false when the manager is closing.
func (m *Manager) handle(req request) bool {
	switch req.kind {
	case reqFollow:
		if req.channelID == "" {
			m.teardown("target left")
			return true
		}
		return m.follow(req.channelID)
	case reqDisconnect:
		m.teardown("requested")
	case reqDrop:
		m.mu.Lock()
		match := m.current != nil && m.current.conn == req.conn
		m.mu.Unlock()
		if match {
			m.logger.Warn("transport dropped the link", "error", req.err)
			m.teardown("transport drop")
		}
	}
	return true
}

// follow moves the link to channelID. Returns false when interrupted by
// shutdown.
func (m *Manager) follow(channelID string) bool {
	m.mu.Lock()
	sameChannel := m.current != nil && m.current.conn.ChannelID() == channelID
	hadLink := m.current != nil
	m.mu.Unlock()

	if sameChannel {
		m.logger.Debug("already in channel", "channel", channelID)
		return true
	}

	if hadLink {
		m.teardown("moving")
		// Give the transport a moment to register the disconnect before
		// dialing the next channel.
		select {
		case <-time.After(m.settleDelay):
		case <-m.done:
			return false
		}
	}

	m.setState(Connecting)
	m.logger.Info("connecting", "channel", channelID)

	ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout)
	ctx, span := observe.StartSpan(ctx, "voice.connect",
		trace.WithAttributes(attribute.String("channel", channelID)))
	conn, err := m.platform.Connect(ctx, channelID)
	span.End()
	cancel()
	if err != nil {
		m.logger.Error("connect failed", "channel", channelID, "error", err)
		if m.metrics != nil {
			m.metrics.RecordConnectionAttempt(context.Background(), "error")
		}
		m.setState(Disconnected)
		return true
	}

	pl := m.factory()
	l := &link{conn: conn, pipeline: pl, pumpDone: make(chan struct{})}
	conn.OnSpeaking(func(ev audio.SpeakingEvent) {
		pl.SetTransportSpeaking(ev.UserID, ev.Speaking)
	})
	conn.OnDrop(func(dropErr error) {
		m.enqueue(request{kind: reqDrop, conn: conn, err: dropErr})
	})
	go pump(l)

	m.mu.Lock()
	m.current = l
	m.lastChannel = channelID
	m.state = Connected
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordConnectionAttempt(context.Background(), "success")
		m.metrics.ActiveLink.Add(context.Background(), 1)
	}
	m.logger.Info("connected", "channel", channelID)
	for _, fn := range m.onLinkUp {
		fn(conn)
	}
	return true
}

// pump feeds captured frames into the link's pipeline until the stream
// closes, then flushes whatever utterances were still open.
func pump(l *link) {
	defer close(l.pumpDone)
	for f := range l.conn.Frames() {
		l.pipeline.Ingest(f)
	}
	l.pipeline.FlushAll()
}

// teardown disconnects the active link, detaches its pipeline, and runs the
// link-down hooks. No-op when no link is up.
func (m *Manager) teardown(reason string) {
	m.mu.Lock()
	l := m.current
	m.current = nil
	m.state = Disconnected
	m.mu.Unlock()

	if l == nil {
		return
	}

	m.logger.Info("tearing down link", "channel", l.conn.ChannelID(), "reason", reason)
	if err := l.conn.Disconnect(); err != nil {
		m.logger.Warn("disconnect failed", "error", err)
	}
	// The transport closes the frame stream on disconnect; wait for the pump
	// to flush the pipeline, but do not hang on a misbehaving transport.
	select {
	case <-l.pumpDone:
	case <-time.After(2 * time.Second):
		m.logger.Warn("frame pump did not drain, flushing anyway")
		l.pipeline.FlushAll()
	}

	if m.metrics != nil {
		m.metrics.ActiveLink.Add(context.Background(), -1)
	}
	for _, fn := range m.onLinkDown {
		fn()
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
