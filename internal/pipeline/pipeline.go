// Package pipeline turns raw voice frames into recognizable utterances.
//
// Frames arrive at the transport rate (48 kHz stereo from Discord), are
// downmixed and decimated to the recognition rate, and accumulated per
// participant. A per-participant boundary detector decides when speech
// starts and ends and hands completed utterances to a sink.
package pipeline

import (
	"time"

	"github.com/haldreng/lumivox/pkg/audio"
	"github.com/haldreng/lumivox/pkg/provider/stt"
)

// Utterance is one contiguous stretch of speech from a single participant,
// ready for recognition.
type Utterance struct {
	// Participant identifies the speaker.
	Participant string

	// Samples is mono 16-bit PCM at [stt.RecognitionSampleRate].
	Samples []int16

	// CapturedAt is when the utterance boundary closed.
	CapturedAt time.Time
}

// Duration returns the utterance length at the recognition sample rate.
func (u Utterance) Duration() time.Duration {
	return time.Duration(len(u.Samples)) * time.Second / stt.RecognitionSampleRate
}

// convertFrame reduces a transport frame to recognition-rate mono samples:
// stereo is downmixed by channel averaging, then decimated by nearest-sample
// selection. The decimation deliberately trades fidelity for simplicity;
// whisper tolerates it well.
func convertFrame(f audio.Frame) []int16 {
	samples := f.Samples()
	if f.Channels == 2 {
		samples = audio.DownmixAverage(samples)
	}
	if f.SampleRate != stt.RecognitionSampleRate {
		samples = audio.DecimateNearest(samples, f.SampleRate, stt.RecognitionSampleRate)
	}
	return samples
}

// peak returns the largest absolute sample value in the frame.
func peak(samples []int16) int {
	max := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > max {
			max = v
		}
	}
	return max
}
