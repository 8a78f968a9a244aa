package discord

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/haldreng/lumivox/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

const (
	frameChannelBuffer  = 256
	outputChannelBuffer = 64
)

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. Incoming Opus packets are decoded per SSRC
// and delivered as participant-tagged PCM frames on a single stream; outgoing
// PCM frames are encoded to Opus for transmission. SSRCs are resolved to user
// IDs via the voice connection's speaking updates, which also feed the
// transport speaking signal consumed by the boundary detector.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc        *discordgo.VoiceConnection
	channelID string

	frames chan audio.Frame
	output chan audio.Frame

	// ssrcUser maps the RTP source identifier to the Discord user ID,
	// populated from VoiceSpeakingUpdate events. Packets arriving before the
	// first speaking update for their SSRC are tagged with the SSRC itself.
	ssrcMu   sync.RWMutex
	ssrcUser map[uint32]string

	cbMu       sync.Mutex
	speakingCb func(audio.SpeakingEvent)
	dropCb     func(error)

	done      chan struct{}
	closeOnce sync.Once

	// disconnectVC tears down the voice connection during Disconnect.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel
// and starts the receive and send goroutines.
func newConnection(vc *discordgo.VoiceConnection, channelID string) *Connection {
	c := &Connection{
		vc:           vc,
		channelID:    channelID,
		frames:       make(chan audio.Frame, frameChannelBuffer),
		output:       make(chan audio.Frame, outputChannelBuffer),
		ssrcUser:     make(map[uint32]string),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	vc.AddHandler(c.handleSpeakingUpdate)

	go c.recvLoop()
	go c.sendLoop()

	return c
}

// Frames returns the participant-tagged capture stream.
func (c *Connection) Frames() <-chan audio.Frame {
	return c.frames
}

// OutputStream returns the write-only channel for outbound playback audio.
// Frames written here are encoded to Opus and sent to Discord.
func (c *Connection) OutputStream() chan<- audio.Frame {
	return c.output
}

// OnSpeaking registers cb for transport speaking-state changes. Only one
// callback may be registered; subsequent calls replace the previous one.
func (c *Connection) OnSpeaking(cb func(audio.SpeakingEvent)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.speakingCb = cb
}

// OnDrop registers cb to be invoked if the transport drops the link.
func (c *Connection) OnDrop(cb func(error)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.dropCb = cb
}

// ChannelID returns the voice channel this connection is joined to.
func (c *Connection) ChannelID() string {
	return c.channelID
}

// Disconnect cleanly tears down the voice connection and stops the background
// goroutines. Safe to call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
		close(c.frames)
	})
	return err
}

// recvLoop reads Opus packets from the Discord voice connection, decodes them
// with a per-SSRC decoder, and delivers participant-tagged frames.
func (c *Connection) recvLoop() {
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				c.emitDrop(errors.New("discord: voice receive stream closed"))
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "error", err)
				continue
			}

			frame := audio.Frame{
				Participant: c.participantForSSRC(pkt.SSRC),
				Data:        audio.SamplesToBytes(pcm),
				SampleRate:  opusSampleRate,
				Channels:    opusChannels,
				Timestamp:   time.Duration(pkt.Timestamp) * time.Second / time.Duration(opusSampleRate),
			}

			select {
			case c.frames <- frame:
			default:
				// Stream full — drop the frame rather than block the transport.
			}
		}
	}
}

// sendLoop reads PCM frames from the output channel, converts them to
// Discord's native format (48 kHz stereo), chunks them into exact Opus frame
// sizes, and sends the encoded packets.
func (c *Connection) sendLoop() {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: create opus encoder", "error", err)
		return
	}

	conv := audio.FormatConverter{Target: audio.Format{SampleRate: opusSampleRate, Channels: opusChannels}}

	speakingSet := false

	// opusFrameBytes is the exact PCM input size for one Opus frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample = 3840 bytes.
	const opusFrameBytes = opusFrameSize * opusChannels * 2

	var buf []byte

	for {
		select {
		case <-c.done:
			if speakingSet {
				c.setSpeaking(false)
			}
			return
		case frame, ok := <-c.output:
			if !ok {
				return
			}

			if !speakingSet {
				c.setSpeaking(true)
				speakingSet = true
			}

			frame = conv.Convert(frame)
			buf = append(buf, frame.Data...)

			for len(buf) >= opusFrameBytes {
				opus, eErr := enc.encode(audio.BytesToSamples(buf[:opusFrameBytes]))
				if eErr != nil {
					slog.Warn("discord: opus encode error", "error", eErr)
					buf = buf[opusFrameBytes:]
					continue
				}
				buf = buf[opusFrameBytes:]

				select {
				case c.vc.OpusSend <- opus:
				case <-c.done:
					return
				}
			}
		}
	}
}

// handleSpeakingUpdate records the SSRC→user mapping and forwards the
// transport's speaking signal.
func (c *Connection) handleSpeakingUpdate(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	if vs == nil || vs.UserID == "" {
		return
	}

	c.ssrcMu.Lock()
	c.ssrcUser[uint32(vs.SSRC)] = vs.UserID
	c.ssrcMu.Unlock()

	c.cbMu.Lock()
	cb := c.speakingCb
	c.cbMu.Unlock()
	if cb != nil {
		go cb(audio.SpeakingEvent{UserID: vs.UserID, Speaking: vs.Speaking})
	}
}

// participantForSSRC resolves an SSRC to a user ID. Falls back to the decimal
// SSRC string until the first speaking update arrives for that source.
func (c *Connection) participantForSSRC(ssrc uint32) string {
	c.ssrcMu.RLock()
	defer c.ssrcMu.RUnlock()
	if userID, ok := c.ssrcUser[ssrc]; ok {
		return userID
	}
	return strconv.FormatUint(uint64(ssrc), 10)
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}

// emitDrop invokes the registered drop callback once.
func (c *Connection) emitDrop(err error) {
	select {
	case <-c.done:
		// Explicit disconnect already in progress — not an involuntary drop.
		return
	default:
	}
	c.cbMu.Lock()
	cb := c.dropCb
	c.dropCb = nil
	c.cbMu.Unlock()
	if cb != nil {
		go cb(err)
	}
}
