package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/slipspeak/slipspeak/internal/discord"
	"github.com/slipspeak/slipspeak/internal/game/bracket"
	"github.com/slipspeak/slipspeak/internal/game/duel"
	"github.com/slipspeak/slipspeak/internal/game/twisters"
	"github.com/slipspeak/slipspeak/internal/observe"
	"github.com/slipspeak/slipspeak/internal/store"
)

// tournamentTimeout bounds a full bracket run.
const tournamentTimeout = 2 * time.Hour

// TournamentCommands holds the dependencies and registration state for
// /tournament slash commands. One tournament may run per guild at a time.
type TournamentCommands struct {
	duels   *duel.Coordinator
	results store.Store
	sender  discord.EmbedSender
	perms   *discord.PermissionChecker
	guildID string

	mu        sync.Mutex
	open      bool
	signups   []string
	channelID string
	bracket   *bracket.Bracket
	cancel    context.CancelFunc
}

// NewTournamentCommands creates a TournamentCommands and registers its
// handlers with the bot's router.
func NewTournamentCommands(bot *discord.Bot, duels *duel.Coordinator, results store.Store) *TournamentCommands {
	tc := &TournamentCommands{
		duels:   duels,
		results: results,
		sender:  bot.Session(),
		perms:   bot.Permissions(),
		guildID: bot.GuildID(),
	}
	tc.Register(bot.Router())
	return tc
}

// Register registers the /tournament command group with the router.
func (tc *TournamentCommands) Register(router *discord.CommandRouter) {
	def := tc.Definition()
	router.RegisterCommand("tournament", def, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand, e.g. `/tournament open`.")
	})
	router.RegisterHandler("tournament/open", tc.handleOpen)
	router.RegisterHandler("tournament/join", tc.handleJoin)
	router.RegisterHandler("tournament/begin", tc.handleBegin)
	router.RegisterHandler("tournament/status", tc.handleStatus)
	router.RegisterHandler("tournament/withdraw", tc.handleWithdraw)
}

// Definition returns the ApplicationCommand definition for Discord.
func (tc *TournamentCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "tournament",
		Description: "Bracket tournaments of tongue twister duels",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "open",
				Description: "Open registration for a tournament (organizer only)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "join",
				Description: "Sign up for the open tournament",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "begin",
				Description: "Close registration and play the bracket (organizer only)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show the bracket",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "withdraw",
				Description: "Withdraw from the running tournament",
			},
		},
	}
}

// handleOpen handles /tournament open.
func (tc *TournamentCommands) handleOpen(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !tc.perms.IsOrganizer(i) {
		discord.RespondEphemeral(s, i, "You need the organizer role to open a tournament.")
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.open {
		discord.RespondEphemeral(s, i, "Registration is already open.")
		return
	}
	if tc.bracket != nil && !tc.bracket.Complete() {
		discord.RespondEphemeral(s, i, "A tournament is already running.")
		return
	}

	tc.open = true
	tc.signups = nil
	tc.bracket = nil
	discord.RespondPublic(s, i, "🏟️ Tournament registration is open! `/tournament join` to sign up.")
}

// handleJoin handles /tournament join.
func (tc *TournamentCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)

	tc.mu.Lock()
	defer tc.mu.Unlock()

	if !tc.open {
		discord.RespondEphemeral(s, i, "No tournament registration is open.")
		return
	}
	for _, id := range tc.signups {
		if id == userID {
			discord.RespondEphemeral(s, i, "You are already signed up.")
			return
		}
	}
	tc.signups = append(tc.signups, userID)
	discord.RespondPublic(s, i, fmt.Sprintf("<@%s> joins the tournament (%d signed up).", userID, len(tc.signups)))
}

// handleBegin handles /tournament begin. Seeding favours the guild
// leaderboard when a store is available, so top players meet late.
func (tc *TournamentCommands) handleBegin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !tc.perms.IsOrganizer(i) {
		discord.RespondEphemeral(s, i, "You need the organizer role to start a tournament.")
		return
	}

	tc.mu.Lock()
	if !tc.open {
		tc.mu.Unlock()
		discord.RespondEphemeral(s, i, "No tournament registration is open.")
		return
	}
	seeds := tc.seedOrder(tc.signups)

	br, err := bracket.New(tc.guildID, seeds)
	if err != nil {
		tc.mu.Unlock()
		if errors.Is(err, bracket.ErrTooFewPlayers) {
			discord.RespondEphemeral(s, i, "A tournament needs at least two players.")
			return
		}
		discord.RespondError(s, i, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), tournamentTimeout)
	tc.open = false
	tc.bracket = br
	tc.channelID = i.ChannelID
	tc.cancel = cancel
	tc.mu.Unlock()

	discord.RespondPublic(s, i, fmt.Sprintf("The bracket is set — %d players. First match starting!", len(seeds)))
	tc.postBracket(br)

	go tc.run(ctx, br)
}

// run plays the bracket to completion, announcing after every match.
func (tc *TournamentCommands) run(ctx context.Context, br *bracket.Bracket) {
	metrics := observe.DefaultMetrics()
	metrics.ActiveBrackets.Add(ctx, 1)
	defer metrics.ActiveBrackets.Add(ctx, -1)
	defer func() {
		tc.mu.Lock()
		if tc.cancel != nil {
			tc.cancel()
			tc.cancel = nil
		}
		tc.mu.Unlock()
	}()

	champion, err := br.Play(ctx, matchAnnouncer{
		runner: tc.duels,
		before: tc.announceMatch,
	})
	if err != nil {
		slog.Warn("tournament ended with error", "guild_id", tc.guildID, "err", err)
		return
	}

	tc.postBracket(br)
	slog.Info("tournament complete", "guild_id", tc.guildID, "champion", champion)
}

// handleStatus handles /tournament status.
func (tc *TournamentCommands) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	tc.mu.Lock()
	br := tc.bracket
	open := tc.open
	count := len(tc.signups)
	tc.mu.Unlock()

	if br == nil {
		if open {
			discord.RespondEphemeral(s, i, fmt.Sprintf("Registration is open with %d signed up.", count))
			return
		}
		discord.RespondEphemeral(s, i, "No tournament is running.")
		return
	}
	discord.RespondEmbed(s, i, discord.BracketEmbed(br))
}

// handleWithdraw handles /tournament withdraw.
func (tc *TournamentCommands) handleWithdraw(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)

	tc.mu.Lock()
	br := tc.bracket
	if br == nil && tc.open {
		// Still in registration: just drop the signup.
		for n, id := range tc.signups {
			if id == userID {
				tc.signups = append(tc.signups[:n], tc.signups[n+1:]...)
				tc.mu.Unlock()
				discord.RespondPublic(s, i, fmt.Sprintf("<@%s> withdrew from the tournament.", userID))
				return
			}
		}
		tc.mu.Unlock()
		discord.RespondEphemeral(s, i, "You are not signed up.")
		return
	}
	tc.mu.Unlock()

	if br == nil {
		discord.RespondEphemeral(s, i, "No tournament is running.")
		return
	}

	if err := br.Forfeit(userID); err != nil {
		if errors.Is(err, bracket.ErrPlayerNotPending) {
			discord.RespondEphemeral(s, i, "You have no pending match to withdraw from.")
			return
		}
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondPublic(s, i, fmt.Sprintf("<@%s> withdraws; their next match is a walkover.", userID))
	tc.postBracket(br)
}

// seedOrder ranks signups by lifetime points when a store is available.
// Unranked players keep their signup order after the ranked ones.
func (tc *TournamentCommands) seedOrder(signups []string) []string {
	if tc.results == nil || len(signups) < 2 {
		return append([]string(nil), signups...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := tc.results.Leaderboard(ctx, store.LeaderboardQuery{
		GuildID: tc.guildID,
		Limit:   len(signups) * 4,
	})
	if err != nil {
		slog.Warn("tournament seeding fell back to signup order", "err", err)
		return append([]string(nil), signups...)
	}

	signedUp := make(map[string]bool, len(signups))
	for _, id := range signups {
		signedUp[id] = true
	}

	var seeds []string
	for _, e := range entries {
		if signedUp[e.PlayerID] {
			seeds = append(seeds, e.PlayerID)
			signedUp[e.PlayerID] = false
		}
	}
	for _, id := range signups {
		if signedUp[id] {
			seeds = append(seeds, id)
		}
	}
	return seeds
}

func (tc *TournamentCommands) postBracket(br *bracket.Bracket) {
	tc.mu.Lock()
	ch := tc.channelID
	tc.mu.Unlock()
	if ch == "" {
		return
	}
	if _, err := tc.sender.ChannelMessageSendEmbed(ch, discord.BracketEmbed(br)); err != nil {
		slog.Warn("discord: failed to post bracket", "err", err)
	}
}

// announceMatch posts the upcoming pairing to the tournament channel.
func (tc *TournamentCommands) announceMatch(playerA, playerB string) {
	tc.mu.Lock()
	ch := tc.channelID
	tc.mu.Unlock()
	if ch == "" {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Next match",
		Description: fmt.Sprintf("🎤 <@%s> vs <@%s> — head to the voice channel!", playerA, playerB),
	}
	if _, err := tc.sender.ChannelMessageSendEmbed(ch, embed); err != nil {
		slog.Warn("discord: failed to post match announcement", "err", err)
	}
}

// matchAnnouncer runs matches through the duel coordinator, announcing
// each pairing before it starts.
type matchAnnouncer struct {
	runner bracket.MatchRunner
	before func(playerA, playerB string)
}

func (m matchAnnouncer) RunMatch(ctx context.Context, guildID, playerA, playerB string, tiers []twisters.Difficulty) (string, error) {
	if m.before != nil {
		m.before(playerA, playerB)
	}
	return m.runner.RunMatch(ctx, guildID, playerA, playerB, tiers)
}
