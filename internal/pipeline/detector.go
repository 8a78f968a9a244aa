package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/haldreng/lumivox/pkg/audio"
	"github.com/haldreng/lumivox/pkg/provider/stt"
)

// Sink receives completed utterances from the detector.
type Sink interface {
	Enqueue(u Utterance)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(u Utterance)

// Enqueue implements Sink.
func (f SinkFunc) Enqueue(u Utterance) { f(u) }

// Detector runs a per-participant speech boundary state machine over the
// inbound frame stream. A participant is considered speaking while the
// transport reports them speaking or frame energy exceeds the threshold;
// when both signals drop, the accumulated audio is flushed as an Utterance
// if it meets the minimum duration, and discarded otherwise.
type Detector struct {
	buffer     *FrameBuffer
	sink       Sink
	threshold  int
	minSamples int
	onActivity func(participant string, active bool)

	mu        sync.Mutex
	speaking  map[string]bool
	transport map[string]bool
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithEnergyThreshold sets the peak absolute sample value above which a
// frame counts as speech regardless of the transport signal.
func WithEnergyThreshold(v int) DetectorOption {
	return func(d *Detector) { d.threshold = v }
}

// WithMinUtterance sets the minimum accumulated duration for an utterance to
// be dispatched. Exactly at the threshold passes.
func WithMinUtterance(dur time.Duration) DetectorOption {
	return func(d *Detector) {
		d.minSamples = int(dur * stt.RecognitionSampleRate / time.Second)
	}
}

// WithActivityCallback registers the callback fired on every speaking-state
// transition. It is the only hook for indicator updates.
func WithActivityCallback(cb func(participant string, active bool)) DetectorOption {
	return func(d *Detector) { d.onActivity = cb }
}

// NewDetector creates a Detector feeding completed utterances into sink.
func NewDetector(sink Sink, opts ...DetectorOption) *Detector {
	d := &Detector{
		buffer:     NewFrameBuffer(),
		sink:       sink,
		threshold:  500,
		minSamples: stt.RecognitionSampleRate * 400 / 1000,
		speaking:   make(map[string]bool),
		transport:  make(map[string]bool),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetTransportSpeaking records the transport-level speaking signal for a
// participant. The state machine itself only advances on [Detector.Ingest];
// Discord keeps delivering a few silent frames after speech stops, which
// drive the closing transition.
func (d *Detector) SetTransportSpeaking(participant string, speaking bool) {
	d.mu.Lock()
	if speaking {
		d.transport[participant] = true
	} else {
		delete(d.transport, participant)
	}
	d.mu.Unlock()
}

// Ingest processes one inbound frame, advancing the participant's state
// machine and accumulating converted audio while they are speaking.
func (d *Detector) Ingest(f audio.Frame) {
	samples := convertFrame(f)
	if len(samples) == 0 {
		return
	}
	p := f.Participant

	d.mu.Lock()
	active := d.transport[p] || peak(samples) > d.threshold
	wasSpeaking := d.speaking[p]

	switch {
	case !wasSpeaking && active:
		d.speaking[p] = true
		d.mu.Unlock()

		// Stale audio from before the boundary opened must not leak in.
		d.buffer.Clear(p)
		d.buffer.Append(p, samples)
		d.notify(p, true)

	case wasSpeaking && active:
		d.mu.Unlock()
		d.buffer.Append(p, samples)

	case wasSpeaking && !active:
		delete(d.speaking, p)
		d.mu.Unlock()

		d.closeBoundary(p)
		d.notify(p, false)

	default:
		d.mu.Unlock()
	}
}

// Flush forces the participant's boundary closed, dispatching accumulated
// audio if it qualifies. Used on link teardown.
func (d *Detector) Flush(participant string) {
	d.mu.Lock()
	wasSpeaking := d.speaking[participant]
	delete(d.speaking, participant)
	d.mu.Unlock()

	if !wasSpeaking {
		d.buffer.Clear(participant)
		return
	}
	d.closeBoundary(participant)
	d.notify(participant, false)
}

// FlushAll closes every open boundary. Used on link teardown.
func (d *Detector) FlushAll() {
	d.mu.Lock()
	open := make([]string, 0, len(d.speaking))
	for p := range d.speaking {
		open = append(open, p)
	}
	d.mu.Unlock()

	for _, p := range open {
		d.Flush(p)
	}
	for _, p := range d.buffer.Participants() {
		d.buffer.Clear(p)
	}
}

// closeBoundary packages the accumulated audio as an Utterance when it meets
// the minimum duration, and discards it otherwise.
func (d *Detector) closeBoundary(participant string) {
	samples := d.buffer.Take(participant)
	if len(samples) < d.minSamples {
		slog.Debug("pipeline: utterance below minimum duration, discarded",
			"participant", participant,
			"samples", len(samples),
			"min_samples", d.minSamples,
		)
		return
	}
	d.sink.Enqueue(Utterance{
		Participant: participant,
		Samples:     samples,
		CapturedAt:  time.Now(),
	})
}

func (d *Detector) notify(participant string, active bool) {
	if d.onActivity != nil {
		d.onActivity(participant, active)
	}
}
