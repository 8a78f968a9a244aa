// Package dispatch serializes utterance recognition. A single worker drains
// a FIFO of utterances, debounces rapid bursts so only the freshest one is
// transcribed, enforces a cooldown after each completed response, and
// deduplicates consecutive identical transcripts.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haldreng/lumivox/internal/observe"
	"github.com/haldreng/lumivox/internal/pipeline"
	"github.com/haldreng/lumivox/pkg/provider/stt"
)

// Handler receives recognized text for a participant's utterance.
type Handler interface {
	HandleRecognized(ctx context.Context, participant, text string)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, participant, text string)

// HandleRecognized implements Handler.
func (f HandlerFunc) HandleRecognized(ctx context.Context, participant, text string) {
	f(ctx, participant, text)
}

// Dispatcher owns the recognition queue. At most one Recognize call is in
// flight at any time. Safe for concurrent use.
type Dispatcher struct {
	recognizer stt.Recognizer
	handler    Handler
	metrics    *observe.Metrics

	debounce time.Duration
	cooldown time.Duration
	timeout  time.Duration
	onBusy   func(busy bool)

	mu           sync.Mutex
	queue        []pipeline.Utterance
	lastText     string
	lastResponse time.Time

	notify    chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDebounce sets how long a dequeued utterance waits before recognition.
func WithDebounce(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.debounce = d }
}

// WithCooldown sets the drop window after a completed response.
func WithCooldown(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.cooldown = d }
}

// WithRecognitionTimeout bounds a single Recognize call.
func WithRecognitionTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.timeout = d }
}

// WithBusyCallback registers a callback fired when recognition starts and
// finishes. Used to drive the processing indicator state.
func WithBusyCallback(cb func(busy bool)) Option {
	return func(dp *Dispatcher) { dp.onBusy = cb }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(dp *Dispatcher) { dp.metrics = m }
}

// New creates a Dispatcher and starts its worker goroutine.
func New(recognizer stt.Recognizer, handler Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		recognizer: recognizer,
		handler:    handler,
		debounce:   500 * time.Millisecond,
		cooldown:   2 * time.Second,
		timeout:    30 * time.Second,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	go d.worker()
	return d
}

// Enqueue implements [pipeline.Sink]. Utterances arriving inside the
// cooldown window are dropped.
func (d *Dispatcher) Enqueue(u pipeline.Utterance) {
	d.mu.Lock()
	if !d.lastResponse.IsZero() && time.Since(d.lastResponse) < d.cooldown {
		d.mu.Unlock()
		d.metrics.RecordUtterance(context.Background(), "cooldown")
		slog.Debug("dispatch: utterance dropped inside cooldown", "participant", u.Participant)
		return
	}
	d.queue = append(d.queue, u)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Reset discards queued utterances and clears the dedup and cooldown state.
// Called when a new voice link attaches so nothing from the previous link
// carries over: stale utterances are not recognized against the new link and
// the first transcript after a reconnect is never treated as a duplicate.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	dropped := len(d.queue)
	d.queue = nil
	d.lastText = ""
	d.lastResponse = time.Time{}
	d.mu.Unlock()
	if dropped > 0 {
		slog.Debug("dispatch: reset dropped queued utterances", "count", dropped)
	}
}

// Close stops the worker. In-flight recognition finishes first.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	<-d.stopped
}

// worker is the single consumer of the queue.
func (d *Dispatcher) worker() {
	defer close(d.stopped)
	for {
		select {
		case <-d.done:
			return
		case <-d.notify:
		}

		for {
			u, ok := d.pop()
			if !ok {
				break
			}
			u, ok = d.debounceWait(u)
			if !ok {
				return // closed during debounce
			}
			d.process(u)
		}
	}
}

// pop removes the oldest queued utterance.
func (d *Dispatcher) pop() (pipeline.Utterance, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return pipeline.Utterance{}, false
	}
	u := d.queue[0]
	d.queue = d.queue[1:]
	return u, true
}

// debounceWait holds u for the debounce window. If newer utterances arrive
// during the wait, u is discarded, the newest queued utterance takes its
// place, and the window restarts. Returns false only when the dispatcher is
// closed mid-wait.
func (d *Dispatcher) debounceWait(u pipeline.Utterance) (pipeline.Utterance, bool) {
	if d.debounce <= 0 {
		return u, true
	}
	timer := time.NewTimer(d.debounce)
	defer timer.Stop()

	for {
		select {
		case <-d.done:
			return pipeline.Utterance{}, false
		case <-timer.C:
			return u, true
		case <-d.notify:
			d.mu.Lock()
			if n := len(d.queue); n > 0 {
				d.metrics.RecordUtterance(context.Background(), "superseded")
				u = d.queue[n-1]
				d.queue = nil
			}
			d.mu.Unlock()
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(d.debounce)
		}
	}
}

// process runs recognition for one utterance and forwards novel text to the
// handler.
func (d *Dispatcher) process(u pipeline.Utterance) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "utterance.recognize",
		trace.WithAttributes(attribute.String("participant", u.Participant)))
	defer span.End()

	if d.onBusy != nil {
		d.onBusy(true)
		defer d.onBusy(false)
	}

	start := time.Now()
	text, err := d.recognizer.Recognize(ctx, u.Samples)
	d.metrics.RecognitionDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, stt.ErrNoMatch) {
			d.metrics.RecordUtterance(ctx, "no_match")
			observe.Logger(ctx).Debug("dispatch: no speech recognized", "participant", u.Participant)
			return
		}
		d.metrics.RecordUtterance(ctx, "error")
		d.metrics.RecordProviderError(ctx, "stt")
		observe.Logger(ctx).Warn("dispatch: recognition failed",
			"participant", u.Participant,
			"duration", u.Duration(),
			"err", err,
		)
		return
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		d.metrics.RecordUtterance(ctx, "no_match")
		return
	}

	d.mu.Lock()
	if normalized == d.lastText {
		d.mu.Unlock()
		d.metrics.RecordUtterance(ctx, "duplicate")
		slog.Debug("dispatch: duplicate transcript dropped", "text", normalized)
		return
	}
	d.lastText = normalized
	d.mu.Unlock()

	d.metrics.RecordUtterance(ctx, "dispatched")
	// The handler gets the verbatim transcript; only dedup uses the
	// normalized form.
	d.handler.HandleRecognized(ctx, u.Participant, text)

	// The cooldown epoch is the completion of the accepted response.
	d.mu.Lock()
	d.lastResponse = time.Now()
	d.mu.Unlock()
}
