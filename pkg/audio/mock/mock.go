// Package mock provides in-memory mock implementations of the
// [audio.Platform] and [audio.Connection] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	frames := make(chan audio.Frame, 16)
//	conn := &mock.Connection{FramesResult: frames, Channel: "channel-42"}
//	platform := &mock.Platform{ConnectResult: conn}
//	got, err := platform.Connect(ctx, "channel-42")
package mock

import (
	"context"
	"sync"

	"github.com/haldreng/lumivox/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Connection = (*Connection)(nil)
	_ audio.Platform   = (*Platform)(nil)
)

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection].
// Set the exported Result fields before use; inspect the Call* fields after.
type Connection struct {
	mu sync.Mutex

	// FramesResult is returned by [Connection.Frames]. Tests feed frames into
	// it and close it to simulate the stream ending.
	FramesResult chan audio.Frame

	// OutputResult is returned by [Connection.OutputStream]. Defaults to a
	// discarding buffered channel if left nil.
	OutputResult chan audio.Frame

	// Channel is returned by [Connection.ChannelID].
	Channel string

	// DisconnectError is returned by [Connection.Disconnect].
	DisconnectError error

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	speakingCb func(audio.SpeakingEvent)
	dropCb     func(error)
}

// Frames implements [audio.Connection].
func (c *Connection) Frames() <-chan audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FramesResult == nil {
		c.FramesResult = make(chan audio.Frame)
	}
	return c.FramesResult
}

// OutputStream implements [audio.Connection].
func (c *Connection) OutputStream() chan<- audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OutputResult == nil {
		c.OutputResult = make(chan audio.Frame, 64)
	}
	return c.OutputResult
}

// OnSpeaking implements [audio.Connection]. To simulate transport speaking
// events in tests, call [Connection.EmitSpeaking].
func (c *Connection) OnSpeaking(cb func(audio.SpeakingEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speakingCb = cb
}

// OnDrop implements [audio.Connection]. To simulate an involuntary drop in
// tests, call [Connection.EmitDrop].
func (c *Connection) OnDrop(cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropCb = cb
}

// ChannelID implements [audio.Connection].
func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Channel
}

// Disconnect implements [audio.Connection]. Returns DisconnectError.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	return c.DisconnectError
}

// EmitSpeaking delivers a transport speaking event to the registered callback.
func (c *Connection) EmitSpeaking(ev audio.SpeakingEvent) {
	c.mu.Lock()
	cb := c.speakingCb
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// EmitDrop delivers an involuntary-disconnect notification to the registered
// callback.
func (c *Connection) EmitDrop(err error) {
	c.mu.Lock()
	cb := c.dropCb
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	// ChannelID is the channelID argument passed to Connect.
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is the [audio.Connection] returned by Connect. When
	// ConnectFunc is set it takes precedence.
	ConnectResult audio.Connection

	// ConnectError is the error returned by Connect.
	ConnectError error

	// ConnectFunc, when non-nil, is invoked instead of returning the static
	// results above. Lets tests hand out a fresh Connection per call or block
	// to simulate a slow transport.
	ConnectFunc func(ctx context.Context, channelID string) (audio.Connection, error)

	// ConnectCalls records all Connect invocations. Use [Platform.Calls] when
	// reading while the subject under test may still be connecting.
	ConnectCalls []ConnectCall

	voiceStateCb func(audio.PresenceEvent)
}

// Calls returns a copy of all recorded Connect invocations.
func (p *Platform) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Connect implements [audio.Platform].
func (p *Platform) Connect(ctx context.Context, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{ChannelID: channelID})
	fn := p.ConnectFunc
	res, err := p.ConnectResult, p.ConnectError
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, channelID)
	}
	return res, err
}

// OnVoiceState implements [audio.Platform]. To simulate presence events in
// tests, call [Platform.EmitVoiceState].
func (p *Platform) OnVoiceState(cb func(audio.PresenceEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voiceStateCb = cb
}

// EmitVoiceState delivers a presence event to the registered callback.
func (p *Platform) EmitVoiceState(ev audio.PresenceEvent) {
	p.mu.Lock()
	cb := p.voiceStateCb
	p.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}
