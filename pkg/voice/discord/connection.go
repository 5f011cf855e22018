package discord

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/slipspeak/slipspeak/pkg/voice"
)

// Compile-time interface assertion.
var _ voice.Connection = (*Connection)(nil)

// frameChannelBuffer bounds the merged frame stream. When the consumer
// falls behind, frames are dropped rather than blocking the receive loop.
const frameChannelBuffer = 256

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [voice.Connection] interface. Incoming Opus packets are decoded to PCM per
// SSRC and delivered on one merged stream, attributed to the speaking user
// via Discord's speaking updates.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string

	frames chan voice.SpeakerFrame

	userMu   sync.RWMutex
	ssrcUser map[uint32]string // SSRC -> user ID, from speaking updates

	changeMu sync.Mutex
	changeCb func(voice.Event)

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// disconnectVC tears down the voice connection during Disconnect.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel
// and starts the receive loop.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID string) *Connection {
	c := &Connection{
		vc:           vc,
		session:      session,
		guildID:      guildID,
		frames:       make(chan voice.SpeakerFrame, frameChannelBuffer),
		ssrcUser:     make(map[uint32]string),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	// Speaking updates carry the SSRC -> user ID binding Discord never puts
	// in the RTP stream itself.
	vc.AddHandler(c.handleSpeakingUpdate)

	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)

	go c.recvLoop()

	return c
}

// Frames returns the merged per-speaker PCM stream.
func (c *Connection) Frames() <-chan voice.SpeakerFrame {
	return c.frames
}

// OnParticipantChange registers cb as the callback for participant join and
// leave events. Only one callback may be registered; later calls replace it.
func (c *Connection) OnParticipantChange(cb func(voice.Event)) {
	c.changeMu.Lock()
	defer c.changeMu.Unlock()
	c.changeCb = cb
}

// Disconnect tears down the voice connection, stops the receive loop, and
// closes the frame channel. Safe to call more than once.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// recvLoop reads Opus packets from Discord, decodes them per SSRC, and
// delivers attributed PCM frames. It owns the frame channel and closes it on
// exit so consumers always see end-of-stream.
func (c *Connection) recvLoop() {
	defer close(c.frames)

	// Each SSRC keeps its own decoder to preserve codec state across frames.
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
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
					slog.Error("discord: create opus decoder", "ssrc", pkt.SSRC, "err", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "err", err)
				continue
			}

			sf := voice.SpeakerFrame{
				SpeakerID: c.speakerID(pkt.SSRC),
				Frame: voice.Frame{
					Data:       pcm,
					SampleRate: opusSampleRate,
					Channels:   opusChannels,
					Timestamp:  time.Duration(pkt.Timestamp) * time.Second / time.Duration(opusSampleRate),
				},
			}

			select {
			case c.frames <- sf:
			default:
				// Consumer is behind; drop rather than stall the receive loop.
			}
		}
	}
}

// speakerID resolves an SSRC to a Discord user ID when a speaking update has
// bound it, falling back to the raw SSRC.
func (c *Connection) speakerID(ssrc uint32) string {
	c.userMu.RLock()
	defer c.userMu.RUnlock()
	if id, ok := c.ssrcUser[ssrc]; ok {
		return id
	}
	return strconv.FormatUint(uint64(ssrc), 10)
}

// handleSpeakingUpdate records the SSRC -> user ID binding from Discord
// speaking notifications.
func (c *Connection) handleSpeakingUpdate(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	if su == nil || su.UserID == "" {
		return
	}
	c.userMu.Lock()
	c.ssrcUser[uint32(su.SSRC)] = su.UserID
	c.userMu.Unlock()
}

// handleVoiceStateUpdate turns Discord VoiceStateUpdate events into
// participant join/leave events for the channel this connection is on.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != c.guildID {
		return
	}

	channelID := c.vc.ChannelID

	username := ""
	if vsu.Member != nil && vsu.Member.User != nil {
		username = vsu.Member.User.Username
	}

	// Participant left our channel.
	if vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == channelID && vsu.ChannelID != channelID {
		c.emitEvent(voice.Event{Type: voice.EventLeave, UserID: vsu.UserID, Username: username})
		return
	}

	// Participant joined our channel.
	if vsu.ChannelID == channelID && (vsu.BeforeUpdate == nil || vsu.BeforeUpdate.ChannelID != channelID) {
		c.emitEvent(voice.Event{Type: voice.EventJoin, UserID: vsu.UserID, Username: username})
	}
}

// emitEvent safely invokes the registered participant change callback.
func (c *Connection) emitEvent(ev voice.Event) {
	c.changeMu.Lock()
	cb := c.changeCb
	c.changeMu.Unlock()
	if cb != nil {
		go cb(ev)
	}
}
