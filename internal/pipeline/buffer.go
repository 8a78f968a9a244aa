package pipeline

import "sync"

// FrameBuffer accumulates recognition-rate samples per participant.
// Each participant's buffer holds only that participant's audio; there is no
// mixing. Safe for concurrent use.
type FrameBuffer struct {
	mu      sync.Mutex
	buffers map[string][]int16
}

// NewFrameBuffer returns an empty FrameBuffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{buffers: make(map[string][]int16)}
}

// Append adds samples to the participant's buffer.
func (b *FrameBuffer) Append(participant string, samples []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers[participant] = append(b.buffers[participant], samples...)
}

// Len returns the number of accumulated samples for the participant.
func (b *FrameBuffer) Len(participant string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffers[participant])
}

// Take removes and returns the participant's accumulated samples.
func (b *FrameBuffer) Take(participant string) []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	samples := b.buffers[participant]
	delete(b.buffers, participant)
	return samples
}

// Clear discards the participant's accumulated samples.
func (b *FrameBuffer) Clear(participant string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, participant)
}

// Participants returns the participants with non-empty buffers.
func (b *FrameBuffer) Participants() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.buffers))
	for p := range b.buffers {
		out = append(out, p)
	}
	return out
}
