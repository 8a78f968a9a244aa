package pipeline

import (
	"testing"

	"github.com/haldreng/lumivox/pkg/audio"
)

func TestFrameBuffer_AppendTake(t *testing.T) {
	t.Parallel()
	b := NewFrameBuffer()

	b.Append("alice", []int16{1, 2})
	b.Append("alice", []int16{3})
	if got := b.Len("alice"); got != 3 {
		t.Errorf("len: got %d, want 3", got)
	}

	samples := b.Take("alice")
	if len(samples) != 3 || samples[0] != 1 || samples[2] != 3 {
		t.Errorf("take: got %v", samples)
	}
	if got := b.Len("alice"); got != 0 {
		t.Errorf("len after take: got %d, want 0", got)
	}
}

func TestFrameBuffer_Isolation(t *testing.T) {
	t.Parallel()
	b := NewFrameBuffer()

	b.Append("alice", []int16{1})
	b.Append("bob", []int16{2, 2})

	if got := b.Len("alice"); got != 1 {
		t.Errorf("alice len: got %d, want 1", got)
	}
	if got := b.Len("bob"); got != 2 {
		t.Errorf("bob len: got %d, want 2", got)
	}

	b.Clear("alice")
	if got := b.Len("alice"); got != 0 {
		t.Errorf("alice len after clear: got %d, want 0", got)
	}
	if got := b.Len("bob"); got != 2 {
		t.Errorf("bob len after alice clear: got %d, want 2", got)
	}
}

func TestConvertFrame_StereoDownmixAndDecimate(t *testing.T) {
	t.Parallel()
	// 20 ms at 48 kHz stereo.
	samples := make([]int16, 960*2)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = 100   // left
		samples[i+1] = 300 // right
	}
	f := audio.Frame{Data: audio.SamplesToBytes(samples), SampleRate: 48000, Channels: 2}

	out := convertFrame(f)
	if len(out) != 320 {
		t.Fatalf("converted length: got %d, want 320", len(out))
	}
	for i, s := range out {
		if s != 200 {
			t.Fatalf("sample %d: got %d, want 200 (channel average)", i, s)
		}
	}
}

func TestConvertFrame_MonoAtRecognitionRatePassesThrough(t *testing.T) {
	t.Parallel()
	samples := []int16{1, 2, 3, 4}
	f := audio.Frame{Data: audio.SamplesToBytes(samples), SampleRate: 16000, Channels: 1}

	out := convertFrame(f)
	if len(out) != 4 {
		t.Fatalf("length: got %d, want 4", len(out))
	}
	for i := range samples {
		if out[i] != samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], samples[i])
		}
	}
}

func TestPeak(t *testing.T) {
	t.Parallel()
	if got := peak([]int16{0, -500, 200}); got != 500 {
		t.Errorf("peak: got %d, want 500", got)
	}
	if got := peak(nil); got != 0 {
		t.Errorf("peak of empty: got %d, want 0", got)
	}
}
