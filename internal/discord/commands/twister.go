// Package commands implements Discord slash command handlers for Slipspeak.
package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/slipspeak/slipspeak/internal/discord"
	"github.com/slipspeak/slipspeak/internal/game/session"
	"github.com/slipspeak/slipspeak/internal/game/turn"
	"github.com/slipspeak/slipspeak/internal/game/twisters"
	"github.com/slipspeak/slipspeak/internal/store"
)

// turnTimeout bounds a single /twister start turn including connection,
// recording, and transcription.
const turnTimeout = 2 * time.Minute

// challengeTimeout bounds a full challenge run.
const challengeTimeout = 15 * time.Minute

// difficultyOption is the shared difficulty choice list for subcommands.
func difficultyOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "difficulty",
		Description: "Twister difficulty tier",
		Required:    required,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "easy", Value: "easy"},
			{Name: "medium", Value: "medium"},
			{Name: "hard", Value: "hard"},
			{Name: "insane", Value: "insane"},
		},
	}
}

// TwisterCommands holds the dependencies for /twister slash commands.
type TwisterCommands struct {
	sessions *session.Manager
	results  store.Store
	library  *twisters.Library
	guildID  string
}

// NewTwisterCommands creates a TwisterCommands and registers its handlers
// with the bot's router.
func NewTwisterCommands(bot *discord.Bot, sessions *session.Manager, results store.Store, library *twisters.Library) *TwisterCommands {
	tc := &TwisterCommands{
		sessions: sessions,
		results:  results,
		library:  library,
		guildID:  bot.GuildID(),
	}
	tc.Register(bot.Router())
	return tc
}

// Register registers the /twister command group with the router.
func (tc *TwisterCommands) Register(router *discord.CommandRouter) {
	def := tc.Definition()
	router.RegisterCommand("twister", def, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand, e.g. `/twister join` or `/twister start`.")
	})
	router.RegisterHandler("twister/join", tc.handleJoin)
	router.RegisterHandler("twister/leave", tc.handleLeave)
	router.RegisterHandler("twister/start", tc.handleStart)
	router.RegisterHandler("twister/challenge", tc.handleChallenge)
	router.RegisterHandler("twister/stats", tc.handleStats)
	router.RegisterHandler("twister/leaderboard", tc.handleLeaderboard)
	router.RegisterHandler("twister/list", tc.handleList)
}

// Definition returns the ApplicationCommand definition for Discord.
func (tc *TwisterCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "twister",
		Description: "Tongue twister party game",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "join",
				Description: "Join the game from your current voice channel",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "practice",
						Description: "Practice mode: nothing is recorded on the leaderboard",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "leave",
				Description: "Leave the game and show your session recap",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Play one twister",
				Options:     []*discordgo.ApplicationCommandOption{difficultyOption(false)},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "challenge",
				Description: "Play a ten-round challenge across all difficulties",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stats",
				Description: "Show lifetime stats",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "player",
						Description: "Whose stats to show (default: yours)",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "leaderboard",
				Description: "Show the guild leaderboard",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "top",
						Description: "Number of entries to show (default 10)",
					},
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "global",
						Description: "Rank players across all servers",
					},
					difficultyOption(false),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "List the twisters in a difficulty tier",
				Options:     []*discordgo.ApplicationCommandOption{difficultyOption(true)},
			},
		},
	}
}

// handleJoin handles /twister join.
func (tc *TwisterCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)
	userName := interactionUserName(i)

	vs, err := s.State.VoiceState(tc.guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		discord.RespondEphemeral(s, i, "You must be in a voice channel to join the game.")
		return
	}

	mode := store.ModeSolo
	if subOptionBool(i, "practice") {
		mode = store.ModePractice
	}

	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := tc.sessions.Join(ctx, tc.guildID, vs.ChannelID, userID, userName, mode); err != nil {
		if errors.Is(err, session.ErrAlreadyInSession) {
			discord.FollowUp(s, i, "You are already in a session. `/twister leave` first.")
			return
		}
		discord.FollowUp(s, i, fmt.Sprintf("Failed to join: %v", err))
		return
	}

	msg := fmt.Sprintf("You're in! Playing in <#%s> — `/twister start` when ready.", vs.ChannelID)
	if mode == store.ModePractice {
		msg += " (practice mode: results stay off the record)"
	}
	discord.FollowUp(s, i, msg)
}

// handleLeave handles /twister leave.
func (tc *TwisterCommands) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sum, err := tc.sessions.EndSession(ctx, tc.guildID, userID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			discord.RespondEphemeral(s, i, "You are not in a session.")
			return
		}
		if errors.Is(err, session.ErrTurnInProgress) {
			discord.RespondEphemeral(s, i, "Finish your current turn first.")
			return
		}
		discord.RespondError(s, i, err)
		return
	}

	discord.RespondEmbed(s, i, discord.SummaryEmbed(interactionUserName(i), sum))
}

// handleStart handles /twister start. The turn itself (recording and
// transcription) runs synchronously; the interaction is deferred so Discord
// does not time the token out.
func (tc *TwisterCommands) handleStart(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)

	var difficulties []twisters.Difficulty
	if raw := subOptionString(i, "difficulty"); raw != "" {
		d, err := twisters.ParseDifficulty(raw)
		if err != nil {
			discord.RespondError(s, i, err)
			return
		}
		difficulties = append(difficulties, d)
	}

	discord.DeferPublic(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	a, err := tc.sessions.StartTurn(ctx, tc.guildID, userID, difficulties...)
	if err != nil {
		discord.FollowUp(s, i, turnErrorMessage(err))
		return
	}

	tw, _ := tc.library.Get(a.TwisterID)
	discord.FollowUpEmbed(s, i, discord.ResultEmbed(tw, a))
}

// handleChallenge handles /twister challenge.
func (tc *TwisterCommands) handleChallenge(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)

	discord.DeferPublic(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), challengeTimeout)
	defer cancel()

	sum, err := tc.sessions.RunChallenge(ctx, tc.guildID, userID)
	if err != nil && sum.Turns == 0 {
		discord.FollowUp(s, i, turnErrorMessage(err))
		return
	}
	// A partial run still gets its recap.
	discord.FollowUpEmbed(s, i, discord.SummaryEmbed(interactionUserName(i), sum))
}

// handleStats handles /twister stats.
func (tc *TwisterCommands) handleStats(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if tc.results == nil {
		discord.RespondEphemeral(s, i, "Stats are not available: no store is configured.")
		return
	}

	playerID := subOptionUserID(i)
	if playerID == "" {
		playerID = interactionUserID(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := tc.results.PlayerStats(ctx, tc.guildID, playerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			discord.RespondEphemeral(s, i, "No recorded attempts for that player yet.")
			return
		}
		discord.RespondError(s, i, err)
		return
	}

	discord.RespondEmbed(s, i, discord.StatsEmbed(st))
}

// handleLeaderboard handles /twister leaderboard.
func (tc *TwisterCommands) handleLeaderboard(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if tc.results == nil {
		discord.RespondEphemeral(s, i, "The leaderboard is not available: no store is configured.")
		return
	}

	var difficulty twisters.Difficulty
	if raw := subOptionString(i, "difficulty"); raw != "" {
		var err error
		difficulty, err = twisters.ParseDifficulty(raw)
		if err != nil {
			discord.RespondError(s, i, err)
			return
		}
	}
	q := store.LeaderboardQuery{
		GuildID:    tc.guildID,
		Difficulty: difficulty,
		Limit:      subOptionInt(i, "top"),
	}
	if subOptionBool(i, "global") {
		q.GuildID = ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := tc.results.Leaderboard(ctx, q)
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	discord.RespondEmbed(s, i, discord.LeaderboardEmbed(entries))
}

// handleList handles /twister list.
func (tc *TwisterCommands) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	d, err := twisters.ParseDifficulty(subOptionString(i, "difficulty"))
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEmbed(s, i, discord.TwisterListEmbed(d, tc.library.List(d)))
}

// turnErrorMessage maps turn pipeline errors to player-facing text.
func turnErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return "You are not in a session. `/twister join` first."
	case errors.Is(err, session.ErrTurnInProgress):
		return "You already have a turn running."
	case errors.Is(err, turn.ErrChannelBusy):
		return "Someone else is mid-attempt in this channel. Wait for them to finish."
	case errors.Is(err, session.ErrPlayerLeft):
		return "You left the voice channel, so the turn was called off."
	case errors.Is(err, context.DeadlineExceeded):
		return "The turn timed out. Try again."
	case errors.Is(err, context.Canceled):
		return "The turn was cancelled."
	default:
		return fmt.Sprintf("The turn failed: %v", err)
	}
}

// interactionUserID extracts the user ID from an interaction, handling
// both guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// interactionUserName extracts a display name from an interaction.
func interactionUserName(i *discordgo.InteractionCreate) string {
	if i.Member != nil {
		if i.Member.Nick != "" {
			return i.Member.Nick
		}
		if i.Member.User != nil {
			return i.Member.User.Username
		}
	}
	if i.User != nil {
		return i.User.Username
	}
	return ""
}

// subOptions returns the option list of the invoked subcommand.
func subOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	data := i.ApplicationCommandData()
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Options[0].Options
	}
	return data.Options
}

func subOptionString(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range subOptions(i) {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func subOptionBool(i *discordgo.InteractionCreate, name string) bool {
	for _, opt := range subOptions(i) {
		if opt.Name == name {
			return opt.BoolValue()
		}
	}
	return false
}

func subOptionInt(i *discordgo.InteractionCreate, name string) int {
	for _, opt := range subOptions(i) {
		if opt.Name == name {
			return int(opt.IntValue())
		}
	}
	return 0
}

// subOptionUserID returns the raw user ID of a user option without needing
// session state resolution.
func subOptionUserID(i *discordgo.InteractionCreate) string {
	for _, opt := range subOptions(i) {
		if opt.Type == discordgo.ApplicationCommandOptionUser {
			if v, ok := opt.Value.(string); ok {
				return v
			}
		}
	}
	return ""
}
