package indicator

import (
	"log/slog"
	"sync"
	"time"
)

// State identifies what the indicator is currently showing. Higher values
// take precedence when several conditions hold at once.
type State int

const (
	StateOff State = iota
	StateOtherSpeaking
	StateTargetSpeaking
	StateProcessing
	StateNotification
)

// String returns the config key for the state.
func (s State) String() string {
	switch s {
	case StateOtherSpeaking:
		return "other_speaking"
	case StateTargetSpeaking:
		return "target_speaking"
	case StateProcessing:
		return "processing"
	case StateNotification:
		return "notification"
	default:
		return "off"
	}
}

// DefaultColors are used for states without a configured color.
var DefaultColors = map[State]Color{
	StateTargetSpeaking: {G: 255},
	StateOtherSpeaking:  {R: 255, G: 160},
	StateProcessing:     {B: 255},
	StateNotification:   {R: 255, B: 255},
}

// event is a single condition change submitted to the arbiter loop.
type event struct {
	kind        eventKind
	participant string
	target      bool
	active      bool
}

type eventKind int

const (
	evSpeaker eventKind = iota
	evProcessing
	evNotification
	evClear
	evReloadColors
)

// Arbiter is the single owner of the indicator driver. Writers submit
// condition changes through its methods; one goroutine consumes them,
// derives the highest-priority state, and applies it.
type Arbiter struct {
	driver Driver

	mu     sync.Mutex
	colors map[State]Color

	events    chan event
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithColors overrides the default state colors. Missing states keep their
// defaults.
func WithColors(colors map[State]Color) Option {
	return func(a *Arbiter) {
		for s, c := range colors {
			a.colors[s] = c
		}
	}
}

// NewArbiter creates an Arbiter, runs the power-on sweep, and starts the
// consumer goroutine.
func NewArbiter(driver Driver, opts ...Option) *Arbiter {
	a := &Arbiter{
		driver: driver,
		colors: make(map[State]Color, len(DefaultColors)),
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
	for s, c := range DefaultColors {
		a.colors[s] = c
	}
	for _, o := range opts {
		o(a)
	}

	a.sweep()
	go a.loop()
	return a
}

// sweep flashes each state color briefly on startup so a miswired or dead
// indicator is obvious immediately.
func (a *Arbiter) sweep() {
	for _, s := range []State{StateTargetSpeaking, StateOtherSpeaking, StateProcessing, StateNotification} {
		if err := a.driver.SetAll(a.color(s)); err != nil {
			slog.Warn("indicator: sweep failed", "state", s.String(), "err", err)
			return
		}
		time.Sleep(80 * time.Millisecond)
	}
	if err := a.driver.Off(); err != nil {
		slog.Warn("indicator: sweep off failed", "err", err)
	}
}

// SpeakerActive reports a participant entering or leaving the speaking state.
func (a *Arbiter) SpeakerActive(participant string, target, active bool) {
	a.submit(event{kind: evSpeaker, participant: participant, target: target, active: active})
}

// Processing reports whether an utterance is currently being recognized or
// answered.
func (a *Arbiter) Processing(active bool) {
	a.submit(event{kind: evProcessing, active: active})
}

// Notification reports whether a notification (e.g. scheduled announcement)
// is being played.
func (a *Arbiter) Notification(active bool) {
	a.submit(event{kind: evNotification, active: active})
}

// Clear drops all conditions and turns the indicator off. Called on link
// teardown.
func (a *Arbiter) Clear() {
	a.submit(event{kind: evClear})
}

// ReloadColors swaps the state color table, re-applying the current state.
func (a *Arbiter) ReloadColors(colors map[State]Color) {
	a.mu.Lock()
	a.colors = make(map[State]Color, len(DefaultColors))
	for s, c := range DefaultColors {
		a.colors[s] = c
	}
	for s, c := range colors {
		a.colors[s] = c
	}
	a.mu.Unlock()
	a.submit(event{kind: evReloadColors})
}

// Close stops the consumer goroutine and turns the indicator off.
func (a *Arbiter) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
	})
}

func (a *Arbiter) submit(ev event) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

func (a *Arbiter) color(s State) Color {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.colors[s]
}

// loop is the single consumer of condition events. It owns the driver.
func (a *Arbiter) loop() {
	speakers := make(map[string]bool) // participant -> is target
	processing := false
	notification := false
	current := StateOff

	derive := func() State {
		switch {
		case notification:
			return StateNotification
		case processing:
			return StateProcessing
		default:
			targetSpeaking, otherSpeaking := false, false
			for _, isTarget := range speakers {
				if isTarget {
					targetSpeaking = true
				} else {
					otherSpeaking = true
				}
			}
			if targetSpeaking {
				return StateTargetSpeaking
			}
			if otherSpeaking {
				return StateOtherSpeaking
			}
			return StateOff
		}
	}

	apply := func(s State, force bool) {
		if s == current && !force {
			return
		}
		current = s
		var err error
		if s == StateOff {
			err = a.driver.Off()
		} else {
			err = a.driver.SetAll(a.color(s))
		}
		if err != nil {
			slog.Warn("indicator: driver update failed", "state", s.String(), "err", err)
		}
	}

	for {
		select {
		case <-a.done:
			if err := a.driver.Off(); err != nil {
				slog.Warn("indicator: off on close failed", "err", err)
			}
			return
		case ev := <-a.events:
			switch ev.kind {
			case evSpeaker:
				if ev.active {
					speakers[ev.participant] = ev.target
				} else {
					delete(speakers, ev.participant)
				}
				apply(derive(), false)
			case evProcessing:
				processing = ev.active
				apply(derive(), false)
			case evNotification:
				notification = ev.active
				apply(derive(), false)
			case evClear:
				clear(speakers)
				processing = false
				notification = false
				apply(StateOff, true)
			case evReloadColors:
				apply(current, true)
			}
		}
	}
}
