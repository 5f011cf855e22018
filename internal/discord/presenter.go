package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/slipspeak/slipspeak/internal/game/duel"
	"github.com/slipspeak/slipspeak/internal/game/session"
	"github.com/slipspeak/slipspeak/internal/game/twisters"
	"github.com/slipspeak/slipspeak/internal/store"
)

// EmbedSender is the slice of the discordgo API the presenter uses, split
// out so tests can record sent embeds without a gateway connection.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ EmbedSender = (*discordgo.Session)(nil)

// Presenter posts game events into Discord text channels. Session events go
// to the chat of the voice channel the session lives in; duel events go to
// the channel the challenge was issued from (see [Presenter.BindDuel]).
//
// Presenter implements [session.Presenter] and [duel.Notifier].
type Presenter struct {
	sender EmbedSender

	mu           sync.Mutex
	duelChannels map[string]string // duel ID → announce channel ID
}

var (
	_ session.Presenter = (*Presenter)(nil)
	_ duel.Notifier     = (*Presenter)(nil)
)

// NewPresenter creates a Presenter posting through sender.
func NewPresenter(sender EmbedSender) *Presenter {
	return &Presenter{
		sender:       sender,
		duelChannels: make(map[string]string),
	}
}

// PresentTwister announces the prompt in the session's channel.
func (p *Presenter) PresentTwister(s *session.Session, tw twisters.Twister, round, total int) {
	p.send(s.ChannelID, TwisterEmbed(tw, round, total))
}

// PresentResult reports a scored attempt in the session's channel.
func (p *Presenter) PresentResult(s *session.Session, tw twisters.Twister, a store.Attempt) {
	p.send(s.ChannelID, ResultEmbed(tw, a))
}

// BindDuel routes notifications for the duel to the given text channel.
// Call it when the challenge is issued; the binding is dropped when the
// duel finishes or expires.
func (p *Presenter) BindDuel(duelID, channelID string) {
	p.mu.Lock()
	p.duelChannels[duelID] = channelID
	p.mu.Unlock()
}

// DuelExpired announces an unanswered challenge.
func (p *Presenter) DuelExpired(d *duel.Duel) {
	ch := p.unbindDuel(d.ID)
	if ch == "" {
		return
	}
	p.send(ch, &discordgo.MessageEmbed{
		Title:       "Duel expired",
		Description: fmt.Sprintf("<@%s> did not answer <@%s>'s challenge in time.", d.OpponentID, d.ChallengerID),
		Color:       embedColorNeutral,
	})
}

// RoundFinished announces a completed duel round.
func (p *Presenter) RoundFinished(d *duel.Duel, r duel.RoundResult) {
	p.mu.Lock()
	ch := p.duelChannels[d.ID]
	p.mu.Unlock()
	if ch == "" {
		return
	}
	p.send(ch, DuelRoundEmbed(d, r))
}

// DuelFinished announces the duel outcome.
func (p *Presenter) DuelFinished(d *duel.Duel) {
	ch := p.unbindDuel(d.ID)
	if ch == "" {
		return
	}
	p.send(ch, DuelResultEmbed(d))
}

func (p *Presenter) unbindDuel(duelID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := p.duelChannels[duelID]
	delete(p.duelChannels, duelID)
	return ch
}

func (p *Presenter) send(channelID string, embed *discordgo.MessageEmbed) {
	if channelID == "" {
		return
	}
	if _, err := p.sender.ChannelMessageSendEmbed(channelID, embed); err != nil {
		slog.Warn("discord: failed to post game event", "channel_id", channelID, "err", err)
	}
}
