package audio

import "time"

// Frame is a single chunk of voice-call audio flowing through the pipeline.
// Frames are the atomic transport unit — captured per speaking participant,
// gated by the boundary detector, and accumulated into utterances.
type Frame struct {
	// Participant is the platform user ID of the speaker this frame belongs to.
	Participant string

	// Data is interleaved little-endian 16-bit PCM.
	Data []byte

	// SampleRate in Hz (48000 for the Discord capture path, 16000 after
	// conversion for recognition).
	SampleRate int

	// Channels: 2 for transport-native stereo, 1 for recognition mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples decodes the frame's PCM bytes into int16 samples.
func (f Frame) Samples() []int16 {
	return BytesToSamples(f.Data)
}

// SamplesToBytes converts int16 PCM samples to little-endian bytes.
func SamplesToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToSamples converts little-endian PCM bytes to int16 samples.
// A trailing odd byte is ignored.
func BytesToSamples(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
