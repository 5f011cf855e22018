// Package discord provides a [voice.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It decodes
// Discord's per-speaker Opus packets into the PCM [voice.SpeakerFrame]
// stream the game core consumes.
//
// The platform requires an active *discordgo.Session (owned by the bot
// layer) and a guild ID.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/slipspeak/slipspeak/pkg/voice"
)

// Compile-time interface assertion.
var _ voice.Platform = (*Platform)(nil)

// Platform implements [voice.Platform] using discordgo voice connections.
// It is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
	guildID string
}

// New creates a Discord Platform for the given session and guild.
func New(session *discordgo.Session, guildID string) *Platform {
	return &Platform{
		session: session,
		guildID: guildID,
	}
}

// Connect joins the voice channel identified by channelID and returns an
// active [voice.Connection]. The bot joins unmuted but the connection is
// receive-only; twister prompts and results go out as text.
func (p *Platform) Connect(ctx context.Context, channelID string) (voice.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discord: connect: %w", err)
	}

	vc, err := p.session.ChannelVoiceJoin(p.guildID, channelID, true, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	return newConnection(vc, p.session, p.guildID), nil
}
