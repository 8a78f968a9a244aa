// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It bridges
// Discord's Opus-based voice transport with Lumivox's PCM [audio.Frame]
// pipeline and surfaces guild-wide voice presence events so the connection
// manager can follow the target participant between channels.
//
// The platform requires an active *discordgo.Session (owned by the entry
// point) and a guild ID. Each call to [Platform.Connect] joins the specified
// voice channel and returns a [Connection] delivering participant-tagged
// capture frames and accepting outbound playback frames.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/haldreng/lumivox/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] using discordgo voice connections.
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
	guildID string

	cbMu         sync.Mutex
	voiceStateCb func(audio.PresenceEvent)

	removeHandler func()
}

// New creates a Discord Platform for the given session and guild and starts
// listening for voice state updates.
func New(session *discordgo.Session, guildID string) *Platform {
	p := &Platform{
		session: session,
		guildID: guildID,
	}
	p.removeHandler = session.AddHandler(p.handleVoiceStateUpdate)
	return p
}

// Connect joins the voice channel identified by channelID and returns an
// active [audio.Connection]. The supplied ctx bounds the join attempt; the
// connection manager passes one with its connect timeout. Once the Connection
// is returned it lives until [Connection.Disconnect] is called.
func (p *Platform) Connect(ctx context.Context, channelID string) (audio.Connection, error) {
	type joinResult struct {
		vc  *discordgo.VoiceConnection
		err error
	}

	// ChannelVoiceJoin blocks on the voice handshake with its own internal
	// timeout; run it aside so the caller's deadline wins.
	resCh := make(chan joinResult, 1)
	go func() {
		// mute=false (we send audio), deaf=false (we receive audio).
		vc, err := p.session.ChannelVoiceJoin(p.guildID, channelID, false, false)
		resCh <- joinResult{vc: vc, err: err}
	}()

	select {
	case <-ctx.Done():
		// The join may still complete later; tear it down when it does.
		go func() {
			if res := <-resCh; res.vc != nil {
				_ = res.vc.Disconnect()
			}
		}()
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, ctx.Err())
	case res := <-resCh:
		if res.err != nil {
			return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, res.err)
		}
		return newConnection(res.vc, channelID), nil
	}
}

// OnVoiceState registers cb for guild-wide voice presence changes. Only one
// callback may be registered; subsequent calls replace the previous one.
func (p *Platform) OnVoiceState(cb func(audio.PresenceEvent)) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.voiceStateCb = cb
}

// Close removes the session handler. The session itself is owned by the
// caller and is not closed here.
func (p *Platform) Close() error {
	if p.removeHandler != nil {
		p.removeHandler()
		p.removeHandler = nil
	}
	return nil
}

// handleVoiceStateUpdate translates discordgo voice state updates into
// [audio.PresenceEvent] values. Events from other guilds are ignored; partial
// events (missing member data, empty channel IDs) are forwarded as-is and
// validated by the consumer.
func (p *Platform) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu == nil || vsu.GuildID != p.guildID {
		return
	}

	ev := audio.PresenceEvent{
		UserID:    vsu.UserID,
		ChannelID: vsu.ChannelID,
	}
	if vsu.BeforeUpdate != nil {
		ev.BeforeChannelID = vsu.BeforeUpdate.ChannelID
	}
	if vsu.Member != nil && vsu.Member.User != nil {
		ev.Username = vsu.Member.User.Username
	}

	p.cbMu.Lock()
	cb := p.voiceStateCb
	p.cbMu.Unlock()
	if cb != nil {
		go cb(ev)
	}
}
