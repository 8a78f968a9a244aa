package playback

import (
	"math"

	"github.com/haldreng/lumivox/pkg/provider/tts"
)

// ChimeClip builds the bundled notification sound: a short two-tone chime,
// generated rather than shipped as an asset so the binary stays
// self-contained. Mono 16-bit PCM at 24 kHz.
func ChimeClip() tts.Clip {
	const (
		rate     = 24000
		toneMs   = 180
		gapMs    = 40
		loTone   = 660.0 // E5
		hiTone   = 880.0 // A5
		peakAmp  = 9000.0
		rampFrac = 0.15
	)
	toneN := rate * toneMs / 1000
	gapN := rate * gapMs / 1000
	pcm := make([]int16, 0, 2*toneN+gapN)
	pcm = appendTone(pcm, rate, loTone, toneN, peakAmp, rampFrac)
	pcm = append(pcm, make([]int16, gapN)...)
	pcm = appendTone(pcm, rate, hiTone, toneN, peakAmp, rampFrac)
	return tts.Clip{PCM: pcm, SampleRate: rate}
}

// appendTone writes n samples of a sine at freq with linear attack and
// release ramps so the tone does not click.
func appendTone(pcm []int16, rate int, freq float64, n int, amp, rampFrac float64) []int16 {
	ramp := int(float64(n) * rampFrac)
	for i := 0; i < n; i++ {
		v := amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		switch {
		case i < ramp:
			v *= float64(i) / float64(ramp)
		case i > n-ramp:
			v *= float64(n-i) / float64(ramp)
		}
		pcm = append(pcm, int16(v))
	}
	return pcm
}
