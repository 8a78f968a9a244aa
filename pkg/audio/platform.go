// Package audio defines the interfaces and types for voice-platform
// connectivity and stream management within Lumivox.
//
// The two primary abstractions are:
//
//   - [Platform] — joins a voice channel and returns a [Connection], and
//     surfaces guild-wide voice presence events.
//   - [Connection] — represents the single active link on a channel, giving
//     callers one participant-tagged frame stream, an outbound playback
//     stream, and lifecycle signals.
//
// Implementations are provided by platform-specific adapter packages
// (e.g. audio/discord). The interfaces are intentionally narrow to keep the
// connection manager and pipeline decoupled from provider details.
package audio

import (
	"context"
)

// PresenceEvent describes a change in a participant's voice-channel
// membership. BeforeChannelID and ChannelID may be empty when the participant
// was not, or is no longer, in any voice channel. Implementations must
// tolerate partial events from the transport (missing user or channel IDs)
// and deliver them as-is; consumers validate at the ingestion boundary.
type PresenceEvent struct {
	// UserID is the platform-specific participant identifier.
	UserID string

	// Username is the participant's display name, when the transport knows it.
	Username string

	// BeforeChannelID is the channel the participant was in before the change.
	BeforeChannelID string

	// ChannelID is the channel the participant is in after the change.
	ChannelID string
}

// SpeakingEvent reports the transport's own notion of whether a participant is
// transmitting voice. This signal is advisory: some transports report it
// reliably, some not at all, so the boundary detector combines it with
// energy-based detection.
type SpeakingEvent struct {
	UserID   string
	Speaking bool
}

// Connection represents the single active link on a voice channel.
//
// A Connection is obtained by calling [Platform.Connect] and remains valid
// until [Connection.Disconnect] is called or the transport drops it.
// Implementations must be safe for concurrent use.
type Connection interface {
	// Frames returns the participant-tagged stream of captured audio. All
	// participants' frames arrive on this one channel; the pipeline demuxes
	// by [Frame.Participant]. The channel is closed when the connection
	// terminates.
	Frames() <-chan Frame

	// OutputStream returns the write-only channel for outbound playback.
	// Frames written here are converted to the transport's native format and
	// sent to the channel. The channel is owned by the caller; the platform
	// does not close it on Disconnect. Writes after Disconnect drop frames,
	// they do not panic.
	OutputStream() chan<- Frame

	// OnSpeaking registers cb for transport speaking-state changes. Only one
	// callback may be registered at a time; subsequent calls replace the
	// previous registration. The callback runs on an internal goroutine and
	// must not block.
	OnSpeaking(cb func(SpeakingEvent))

	// OnDrop registers cb to be invoked once if the transport drops the link
	// involuntarily (network failure, forced move by the server). Not invoked
	// for an explicit Disconnect.
	OnDrop(cb func(err error))

	// ChannelID returns the channel this connection is joined to.
	ChannelID() string

	// Disconnect tears down the connection and closes the frame stream.
	// Safe to call more than once; subsequent calls are no-ops returning nil.
	Disconnect() error
}

// Platform is the entry point for a voice-chat provider.
//
// Implementations wrap provider-specific SDKs and expose a uniform
// [Connection] abstraction. They must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel identified by channelID and returns an
	// active [Connection]. The supplied ctx bounds the connection attempt
	// only; once connected, the Connection lives until Disconnect.
	Connect(ctx context.Context, channelID string) (Connection, error)

	// OnVoiceState registers cb for guild-wide voice presence changes. This
	// is how the connection manager follows the target participant between
	// channels, independent of whether a link is currently up. Only one
	// callback may be registered at a time.
	OnVoiceState(cb func(PresenceEvent))
}
