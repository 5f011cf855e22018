package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/slipspeak/slipspeak/internal/game/session"
	"github.com/slipspeak/slipspeak/internal/game/turn"
)

// subInteraction builds an ApplicationCommand interaction invoking a
// subcommand with the given options.
func subInteraction(command, sub string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name: command,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name:    sub,
						Type:    discordgo.ApplicationCommandOptionSubCommand,
						Options: opts,
					},
				},
			},
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "user-1", Username: "alice"},
			},
		},
	}
}

func TestTwisterDefinition(t *testing.T) {
	t.Parallel()

	def := (&TwisterCommands{}).Definition()
	if def.Name != "twister" {
		t.Fatalf("command name = %q, want twister", def.Name)
	}

	want := []string{"join", "leave", "start", "challenge", "stats", "leaderboard", "list"}
	if len(def.Options) != len(want) {
		t.Fatalf("subcommand count = %d, want %d", len(def.Options), len(want))
	}
	byName := make(map[string]*discordgo.ApplicationCommandOption)
	for i, opt := range def.Options {
		if opt.Type != discordgo.ApplicationCommandOptionSubCommand {
			t.Errorf("option %q is not a subcommand", opt.Name)
		}
		if opt.Name != want[i] {
			t.Errorf("subcommand %d = %q, want %q", i, opt.Name, want[i])
		}
		byName[opt.Name] = opt
	}

	// list requires a difficulty, start does not.
	listOpts := byName["list"].Options
	if len(listOpts) != 1 || listOpts[0].Name != "difficulty" || !listOpts[0].Required {
		t.Error("list should take a required difficulty option")
	}
	startOpts := byName["start"].Options
	if len(startOpts) != 1 || startOpts[0].Required {
		t.Error("start should take an optional difficulty option")
	}
	if len(startOpts) == 1 && len(startOpts[0].Choices) == 0 {
		t.Error("difficulty option should enumerate its choices")
	}
}

func TestTurnErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not in session", session.ErrSessionNotFound, "You are not in a session. `/twister join` first."},
		{"turn running", session.ErrTurnInProgress, "You already have a turn running."},
		{"channel busy", turn.ErrChannelBusy, "Someone else is mid-attempt in this channel. Wait for them to finish."},
		{"player left", session.ErrPlayerLeft, "You left the voice channel, so the turn was called off."},
		{"timeout", context.DeadlineExceeded, "The turn timed out. Try again."},
		{"cancelled", context.Canceled, "The turn was cancelled."},
		{"wrapped", errors.New("stt: connection refused"), "The turn failed: stt: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := turnErrorMessage(tt.err); got != tt.want {
				t.Errorf("turnErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestInteractionUserID(t *testing.T) {
	t.Parallel()

	guild := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{User: &discordgo.User{ID: "m-1"}},
		},
	}
	if got := interactionUserID(guild); got != "m-1" {
		t.Errorf("guild interaction user = %q, want m-1", got)
	}

	dm := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "u-2"}},
	}
	if got := interactionUserID(dm); got != "u-2" {
		t.Errorf("DM interaction user = %q, want u-2", got)
	}

	empty := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	if got := interactionUserID(empty); got != "" {
		t.Errorf("empty interaction user = %q, want empty", got)
	}
}

func TestInteractionUserName(t *testing.T) {
	t.Parallel()

	nick := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{
				Nick: "Nickname",
				User: &discordgo.User{Username: "username"},
			},
		},
	}
	if got := interactionUserName(nick); got != "Nickname" {
		t.Errorf("name = %q, want nick to win", got)
	}

	noNick := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{User: &discordgo.User{Username: "username"}},
		},
	}
	if got := interactionUserName(noNick); got != "username" {
		t.Errorf("name = %q, want username", got)
	}
}

func TestSubOptionHelpers(t *testing.T) {
	t.Parallel()

	i := subInteraction("twister", "join",
		&discordgo.ApplicationCommandInteractionDataOption{
			Name:  "difficulty",
			Type:  discordgo.ApplicationCommandOptionString,
			Value: "hard",
		},
		&discordgo.ApplicationCommandInteractionDataOption{
			Name:  "practice",
			Type:  discordgo.ApplicationCommandOptionBoolean,
			Value: true,
		},
		&discordgo.ApplicationCommandInteractionDataOption{
			Name:  "top",
			Type:  discordgo.ApplicationCommandOptionInteger,
			Value: float64(25),
		},
		&discordgo.ApplicationCommandInteractionDataOption{
			Name:  "player",
			Type:  discordgo.ApplicationCommandOptionUser,
			Value: "target-user-9",
		},
	)

	if got := subOptionString(i, "difficulty"); got != "hard" {
		t.Errorf("subOptionString = %q, want hard", got)
	}
	if got := subOptionString(i, "missing"); got != "" {
		t.Errorf("subOptionString(missing) = %q, want empty", got)
	}
	if !subOptionBool(i, "practice") {
		t.Error("subOptionBool(practice) = false, want true")
	}
	if got := subOptionInt(i, "top"); got != 25 {
		t.Errorf("subOptionInt = %d, want 25", got)
	}
	if got := subOptionInt(i, "missing"); got != 0 {
		t.Errorf("subOptionInt(missing) = %d, want 0", got)
	}
	if got := subOptionUserID(i); got != "target-user-9" {
		t.Errorf("subOptionUserID = %q, want target-user-9", got)
	}
}

func TestSubOptions_NoSubcommand(t *testing.T) {
	t.Parallel()

	// A top-level command without subcommands returns its own options.
	i := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "twister",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name:  "difficulty",
						Type:  discordgo.ApplicationCommandOptionString,
						Value: "easy",
					},
				},
			},
		},
	}
	if got := subOptionString(i, "difficulty"); got != "easy" {
		t.Errorf("subOptionString = %q, want easy", got)
	}
}
