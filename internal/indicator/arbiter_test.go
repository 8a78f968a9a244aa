package indicator

import (
	"sync"
	"testing"
	"time"
)

// recordDriver records every driver call for inspection.
type recordDriver struct {
	mu    sync.Mutex
	calls []Color
	offs  int
}

func (d *recordDriver) SetAll(c Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
	return nil
}

func (d *recordDriver) Off() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offs++
	return nil
}

func (d *recordDriver) last() (Color, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return Color{}, false
	}
	return d.calls[len(d.calls)-1], true
}

func (d *recordDriver) offCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offs
}

// waitFor polls cond until it returns true or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestArbiter_PowerOnSweep(t *testing.T) {
	t.Parallel()
	d := &recordDriver{}
	a := NewArbiter(d)
	defer a.Close()

	// The sweep runs synchronously in NewArbiter: four colors then off.
	d.mu.Lock()
	sweepCalls := len(d.calls)
	d.mu.Unlock()
	if sweepCalls != 4 {
		t.Errorf("sweep colors: got %d, want 4", sweepCalls)
	}
	if d.offCount() != 1 {
		t.Errorf("sweep off count: got %d, want 1", d.offCount())
	}
}

func TestArbiter_TargetSpeaking(t *testing.T) {
	t.Parallel()
	d := &recordDriver{}
	a := NewArbiter(d)
	defer a.Close()

	a.SpeakerActive("alice", true, true)
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == DefaultColors[StateTargetSpeaking]
	}, "target speaking color was not applied")
}

func TestArbiter_TargetOutranksOther(t *testing.T) {
	t.Parallel()
	d := &recordDriver{}
	a := NewArbiter(d)
	defer a.Close()

	a.SpeakerActive("bob", false, true)
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == DefaultColors[StateOtherSpeaking]
	}, "other speaking color was not applied")

	a.SpeakerActive("alice", true, true)
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == DefaultColors[StateTargetSpeaking]
	}, "target speaking should outrank other speaking")

	// Target stops: falls back to other speaking, not off.
	a.SpeakerActive("alice", true, false)
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == DefaultColors[StateOtherSpeaking]
	}, "should fall back to other speaking")
}

func TestArbiter_ProcessingOutranksSpeaking(t *testing.T) {
	t.Parallel()
	d := &recordDriver{}
	a := NewArbiter(d)
	defer a.Close()

	a.SpeakerActive("alice", true, true)
	a.Processing(true)
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == DefaultColors[StateProcessing]
	}, "processing should outrank speaking")

	a.Processing(false)
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == DefaultColors[StateTargetSpeaking]
	}, "should fall back to target speaking after processing")
}

func TestArbiter_NotificationOutranksAll(t *testing.T) {
	t.Parallel()
	d := &recordDriver{}
	a := NewArbiter(d)
	defer a.Close()

	a.SpeakerActive("alice", true, true)
	a.Processing(true)
	a.Notification(true)
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == DefaultColors[StateNotification]
	}, "notification should outrank everything")
}

func TestArbiter_ClearTurnsOff(t *testing.T) {
	t.Parallel()
	d := &recordDriver{}
	a := NewArbiter(d)
	defer a.Close()

	a.SpeakerActive("alice", true, true)
	waitFor(t, func() bool {
		_, ok := d.last()
		return ok
	}, "speaking color was not applied")

	before := d.offCount()
	a.Clear()
	waitFor(t, func() bool { return d.offCount() > before }, "Clear did not turn the indicator off")

	// Conditions were dropped: a new speaker starts from a clean slate.
	a.SpeakerActive("bob", false, true)
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == DefaultColors[StateOtherSpeaking]
	}, "post-clear state was not derived from scratch")
}

func TestArbiter_ReloadColors(t *testing.T) {
	t.Parallel()
	d := &recordDriver{}
	a := NewArbiter(d)
	defer a.Close()

	a.SpeakerActive("alice", true, true)
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == DefaultColors[StateTargetSpeaking]
	}, "initial color was not applied")

	custom := Color{R: 1, G: 2, B: 3}
	a.ReloadColors(map[State]Color{StateTargetSpeaking: custom})
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == custom
	}, "reloaded color was not re-applied")
}

func TestArbiter_CloseTurnsOff(t *testing.T) {
	t.Parallel()
	d := &recordDriver{}
	a := NewArbiter(d)

	before := d.offCount()
	a.Close()
	waitFor(t, func() bool { return d.offCount() > before }, "Close did not turn the indicator off")

	// Close is idempotent and submissions after Close do not block.
	a.Close()
	a.SpeakerActive("alice", true, true)
}

func TestArbiter_WithColorsOption(t *testing.T) {
	t.Parallel()
	d := &recordDriver{}
	custom := Color{R: 9}
	a := NewArbiter(d, WithColors(map[State]Color{StateProcessing: custom}))
	defer a.Close()

	a.Processing(true)
	waitFor(t, func() bool {
		c, ok := d.last()
		return ok && c == custom
	}, "custom processing color was not applied")
}
