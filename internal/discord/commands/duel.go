package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/slipspeak/slipspeak/internal/discord"
	"github.com/slipspeak/slipspeak/internal/game/duel"
)

// duelTimeout bounds a full best-of series.
const duelTimeout = 20 * time.Minute

// Component custom_id prefixes for the accept/decline buttons.
const (
	duelAcceptPrefix  = "duel_accept:"
	duelDeclinePrefix = "duel_decline:"
)

// DuelCommands holds the dependencies for /duel slash commands.
type DuelCommands struct {
	duels     *duel.Coordinator
	presenter *discord.Presenter
	guildID   string
}

// NewDuelCommands creates a DuelCommands and registers its handlers with
// the bot's router.
func NewDuelCommands(bot *discord.Bot, duels *duel.Coordinator, presenter *discord.Presenter) *DuelCommands {
	dc := &DuelCommands{
		duels:     duels,
		presenter: presenter,
		guildID:   bot.GuildID(),
	}
	dc.Register(bot.Router())
	return dc
}

// Register registers the /duel command group with the router.
func (dc *DuelCommands) Register(router *discord.CommandRouter) {
	def := dc.Definition()
	router.RegisterCommand("duel", def, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand, e.g. `/duel challenge`.")
	})
	router.RegisterHandler("duel/challenge", dc.handleChallenge)
	router.RegisterHandler("duel/accept", dc.handleAccept)
	router.RegisterHandler("duel/decline", dc.handleDecline)
	router.RegisterHandler("duel/forfeit", dc.handleForfeit)
	router.RegisterComponentPrefix(duelAcceptPrefix, dc.handleAcceptButton)
	router.RegisterComponentPrefix(duelDeclinePrefix, dc.handleDeclineButton)
}

// Definition returns the ApplicationCommand definition for Discord.
func (dc *DuelCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "duel",
		Description: "Head-to-head tongue twister duels",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "challenge",
				Description: "Challenge another player to a duel",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "opponent",
						Description: "Who to challenge",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "best_of",
						Description: "Match length (odd, default 3)",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "accept",
				Description: "Accept a pending challenge",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "decline",
				Description: "Decline a pending challenge",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "forfeit",
				Description: "Forfeit your running duel",
			},
		},
	}
}

// handleChallenge handles /duel challenge.
func (dc *DuelCommands) handleChallenge(s *discordgo.Session, i *discordgo.InteractionCreate) {
	challengerID := interactionUserID(i)
	opponentID := subOptionUserID(i)
	if opponentID == "" {
		discord.RespondEphemeral(s, i, "Pick an opponent.")
		return
	}

	d, err := dc.duels.Challenge(dc.guildID, challengerID, opponentID, subOptionInt(i, "best_of"))
	if err != nil {
		switch {
		case errors.Is(err, duel.ErrSelfChallenge):
			discord.RespondEphemeral(s, i, "You cannot duel yourself.")
		case errors.Is(err, duel.ErrDuelPending):
			discord.RespondEphemeral(s, i, "That player already has a pending challenge.")
		default:
			discord.RespondError(s, i, err)
		}
		return
	}

	dc.presenter.BindDuel(d.ID, i.ChannelID)

	discord.RespondPublic(s, i,
		fmt.Sprintf("⚔️ <@%s> challenges <@%s> to a best-of-%d duel! Accept below or with `/duel accept`.",
			challengerID, opponentID, d.BestOf),
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Accept",
					Style:    discordgo.SuccessButton,
					CustomID: duelAcceptPrefix + d.ID,
				},
				discordgo.Button{
					Label:    "Decline",
					Style:    discordgo.DangerButton,
					CustomID: duelDeclinePrefix + d.ID,
				},
			},
		},
	)
}

// handleAccept handles /duel accept.
func (dc *DuelCommands) handleAccept(s *discordgo.Session, i *discordgo.InteractionCreate) {
	dc.accept(s, i, interactionUserID(i))
}

// handleAcceptButton handles the Accept button. The custom_id carries the
// duel ID; only the challenged player may press it.
func (dc *DuelCommands) handleAcceptButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	duelID := strings.TrimPrefix(i.MessageComponentData().CustomID, duelAcceptPrefix)
	d, err := dc.duels.Get(duelID)
	if err != nil {
		discord.RespondEphemeral(s, i, "This challenge is no longer around.")
		return
	}
	if interactionUserID(i) != d.OpponentID {
		discord.RespondEphemeral(s, i, "Only the challenged player can accept.")
		return
	}
	dc.accept(s, i, d.OpponentID)
}

func (dc *DuelCommands) accept(s *discordgo.Session, i *discordgo.InteractionCreate, opponentID string) {
	d, err := dc.duels.Accept(dc.guildID, opponentID)
	if err != nil {
		if errors.Is(err, duel.ErrNoPendingDuel) {
			discord.RespondEphemeral(s, i, "No challenge is waiting for you.")
			return
		}
		discord.RespondError(s, i, err)
		return
	}

	discord.RespondPublic(s, i, fmt.Sprintf("🎙️ Duel on! <@%s> vs <@%s> — best of %d. Challenger goes first.",
		d.ChallengerID, d.OpponentID, d.BestOf))

	// The series runs in the background; the presenter announces every
	// round and the final result.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), duelTimeout)
		defer cancel()
		if _, err := dc.duels.Run(ctx, d.ID); err != nil {
			slog.Warn("duel run ended with error", "duel_id", d.ID, "err", err)
		}
	}()
}

// handleDecline handles /duel decline.
func (dc *DuelCommands) handleDecline(s *discordgo.Session, i *discordgo.InteractionCreate) {
	dc.decline(s, i, interactionUserID(i))
}

// handleDeclineButton handles the Decline button.
func (dc *DuelCommands) handleDeclineButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	duelID := strings.TrimPrefix(i.MessageComponentData().CustomID, duelDeclinePrefix)
	d, err := dc.duels.Get(duelID)
	if err != nil {
		discord.RespondEphemeral(s, i, "This challenge is no longer around.")
		return
	}
	if interactionUserID(i) != d.OpponentID {
		discord.RespondEphemeral(s, i, "Only the challenged player can decline.")
		return
	}
	dc.decline(s, i, d.OpponentID)
}

func (dc *DuelCommands) decline(s *discordgo.Session, i *discordgo.InteractionCreate, opponentID string) {
	if err := dc.duels.Decline(dc.guildID, opponentID); err != nil {
		if errors.Is(err, duel.ErrNoPendingDuel) {
			discord.RespondEphemeral(s, i, "No challenge is waiting for you.")
			return
		}
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondPublic(s, i, fmt.Sprintf("<@%s> declined the duel.", opponentID))
}

// handleForfeit handles /duel forfeit.
func (dc *DuelCommands) handleForfeit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	playerID := interactionUserID(i)

	d, err := dc.duels.ActiveFor(dc.guildID, playerID)
	if err != nil {
		discord.RespondEphemeral(s, i, "You have no duel in progress.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := dc.duels.Forfeit(ctx, d.ID, playerID); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondPublic(s, i, fmt.Sprintf("<@%s> forfeits. <@%s> wins the duel!", playerID, d.WinnerID()))
}
