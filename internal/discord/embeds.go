package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/slipspeak/slipspeak/internal/game/bracket"
	"github.com/slipspeak/slipspeak/internal/game/duel"
	"github.com/slipspeak/slipspeak/internal/game/scoring"
	"github.com/slipspeak/slipspeak/internal/game/session"
	"github.com/slipspeak/slipspeak/internal/game/twisters"
	"github.com/slipspeak/slipspeak/internal/store"
)

// Embed sidebar colors per difficulty tier.
const (
	embedColorEasy   = 0x2ECC71
	embedColorMedium = 0xF1C40F
	embedColorHard   = 0xE67E22
	embedColorInsane = 0xE74C3C

	embedColorNeutral = 0x5865F2
)

// difficultyColor returns the embed color for a difficulty tier.
func difficultyColor(d twisters.Difficulty) int {
	switch d {
	case twisters.Easy:
		return embedColorEasy
	case twisters.Medium:
		return embedColorMedium
	case twisters.Hard:
		return embedColorHard
	case twisters.Insane:
		return embedColorInsane
	default:
		return embedColorNeutral
	}
}

// TwisterEmbed renders the prompt shown before recording starts.
func TwisterEmbed(tw twisters.Twister, round, total int) *discordgo.MessageEmbed {
	title := "Say this!"
	if total > 1 {
		title = fmt.Sprintf("Round %d of %d — say this!", round, total)
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**%s**", tw.Text),
		Color:       difficultyColor(tw.Difficulty),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Difficulty", Value: string(tw.Difficulty), Inline: true},
			{Name: "Words", Value: fmt.Sprintf("%d", tw.WordCount), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Recording starts now — speak clearly and fast!",
		},
	}
}

// ResultEmbed renders a scored attempt.
func ResultEmbed(tw twisters.Twister, a store.Attempt) *discordgo.MessageEmbed {
	verdict := "❌ Missed"
	if a.Successful {
		verdict = "✅ Nailed it"
	}
	if a.Spoken == "" {
		verdict = "🔇 Nothing heard"
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Target", Value: tw.Text},
	}
	if a.Spoken != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "You said", Value: a.Spoken})
	}
	fields = append(fields,
		&discordgo.MessageEmbedField{Name: "Accuracy", Value: fmt.Sprintf("%.1f%%", a.Accuracy), Inline: true},
		&discordgo.MessageEmbedField{Name: "Time", Value: a.Elapsed.Truncate(10 * time.Millisecond).String(), Inline: true},
	)
	if slips := slipLines(a.Mismatches); slips != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Where you slipped", Value: slips})
	}

	embed := &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("%s — %d points", verdict, a.Points),
		Color:  difficultyColor(a.Difficulty),
		Fields: fields,
	}
	if a.PlayerName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: a.PlayerName}
	}
	return embed
}

// maxSlipLines caps the divergence feedback so a garbled transcription
// cannot flood the embed.
const maxSlipLines = 3

// slipLines renders the attempt's divergences as one line per fragment pair.
func slipLines(ms []scoring.Mismatch) string {
	var lines []string
	for _, m := range ms {
		if len(lines) == maxSlipLines {
			lines = append(lines, fmt.Sprintf("…and %d more", len(ms)-maxSlipLines))
			break
		}
		switch {
		case m.Spoken == "":
			lines = append(lines, fmt.Sprintf("skipped “%s”", m.Target))
		case m.Target == "":
			lines = append(lines, fmt.Sprintf("added “%s”", m.Spoken))
		case m.Close:
			lines = append(lines, fmt.Sprintf("“%s” instead of “%s” — so close!", m.Spoken, m.Target))
		default:
			lines = append(lines, fmt.Sprintf("“%s” instead of “%s”", m.Spoken, m.Target))
		}
	}
	return strings.Join(lines, "\n")
}

// SummaryEmbed renders an end-of-session or end-of-challenge recap.
func SummaryEmbed(playerName string, sum session.Summary) *discordgo.MessageEmbed {
	title := "Session over"
	if sum.Mode == store.ModeChallenge {
		title = "Challenge complete"
	}
	duration := sum.EndedAt.Sub(sum.StartedAt).Truncate(time.Second)
	return &discordgo.MessageEmbed{
		Title: title,
		Color: embedColorNeutral,
		Author: &discordgo.MessageEmbedAuthor{
			Name: playerName,
		},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Turns", Value: fmt.Sprintf("%d", sum.Turns), Inline: true},
			{Name: "Successes", Value: fmt.Sprintf("%d/%d", sum.Successes, sum.Turns), Inline: true},
			{Name: "Total points", Value: fmt.Sprintf("%d", sum.TotalPoints), Inline: true},
			{Name: "Best accuracy", Value: fmt.Sprintf("%.1f%%", sum.BestAccuracy), Inline: true},
			{Name: "Duration", Value: duration.String(), Inline: true},
		},
	}
}

// StatsEmbed renders a player's lifetime statistics.
func StatsEmbed(st store.PlayerStats) *discordgo.MessageEmbed {
	successRate := 0.0
	if st.Attempts > 0 {
		successRate = float64(st.Successes) / float64(st.Attempts) * 100
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Total points", Value: fmt.Sprintf("%d", st.TotalPoints), Inline: true},
		{Name: "Attempts", Value: fmt.Sprintf("%d", st.Attempts), Inline: true},
		{Name: "Success rate", Value: fmt.Sprintf("%.0f%%", successRate), Inline: true},
		{Name: "Best accuracy", Value: fmt.Sprintf("%.1f%%", st.BestAccuracy), Inline: true},
		{Name: "Best single score", Value: fmt.Sprintf("%d", st.BestPoints), Inline: true},
		{Name: "Last played", Value: st.LastPlayed.Format("2006-01-02"), Inline: true},
	}
	if st.BestTwisterID != 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Best twister", Value: fmt.Sprintf("`#%d`", st.BestTwisterID), Inline: true,
		})
	}
	if st.FastestTime > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Fastest success", Value: st.FastestTime.Truncate(10 * time.Millisecond).String(), Inline: true,
		})
	}
	return &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("Stats for %s", st.PlayerName),
		Color:  embedColorNeutral,
		Fields: fields,
	}
}

// LeaderboardEmbed renders a guild ranking.
func LeaderboardEmbed(entries []store.LeaderboardEntry) *discordgo.MessageEmbed {
	if len(entries) == 0 {
		return &discordgo.MessageEmbed{
			Title:       "Leaderboard",
			Description: "Nobody has played yet. `/twister join` to get started!",
			Color:       embedColorNeutral,
		}
	}

	medals := []string{"🥇", "🥈", "🥉"}
	var b strings.Builder
	for _, e := range entries {
		marker := fmt.Sprintf("%d.", e.Rank)
		if e.Rank <= len(medals) {
			marker = medals[e.Rank-1]
		}
		fmt.Fprintf(&b, "%s **%s** — %d points (%d/%d successful)\n",
			marker, e.PlayerName, e.TotalPoints, e.Successes, e.Attempts)
	}
	return &discordgo.MessageEmbed{
		Title:       "Leaderboard",
		Description: b.String(),
		Color:       embedColorNeutral,
	}
}

// TwisterListEmbed renders the available twisters for one difficulty.
func TwisterListEmbed(d twisters.Difficulty, tws []twisters.Twister) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, tw := range tws {
		fmt.Fprintf(&b, "`#%d` %s\n", tw.ID, tw.Text)
	}
	if b.Len() == 0 {
		b.WriteString("No twisters in this tier.")
	}
	title := string(d)
	if title != "" {
		title = strings.ToUpper(title[:1]) + title[1:]
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s twisters", title),
		Description: b.String(),
		Color:       difficultyColor(d),
	}
}

// DuelRoundEmbed renders the outcome of one duel round.
func DuelRoundEmbed(d *duel.Duel, r duel.RoundResult) *discordgo.MessageEmbed {
	cw, ow := d.Score()
	outcome := "Tie — replaying with a fresh twister!"
	if r.WinnerID != "" {
		outcome = fmt.Sprintf("<@%s> takes the round!", r.WinnerID)
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Duel round %d", r.Round),
		Description: outcome,
		Color:       embedColorNeutral,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Round points", Value: fmt.Sprintf("%d — %d", r.ChallengerPoints, r.OpponentPoints), Inline: true},
			{Name: "Match score", Value: fmt.Sprintf("%d — %d", cw, ow), Inline: true},
		},
	}
}

// DuelResultEmbed renders the final duel outcome.
func DuelResultEmbed(d *duel.Duel) *discordgo.MessageEmbed {
	cw, ow := d.Score()
	return &discordgo.MessageEmbed{
		Title:       "Duel over!",
		Description: fmt.Sprintf("🏆 <@%s> wins %d — %d", d.WinnerID(), cw, ow),
		Color:       embedColorEasy,
	}
}

// BracketEmbed renders the tournament bracket state round by round.
func BracketEmbed(b *bracket.Bracket) *discordgo.MessageEmbed {
	var sb strings.Builder
	total := b.Rounds()
	for ri, matches := range b.Matches() {
		fmt.Fprintf(&sb, "**%s**\n", roundName(ri, total))
		for _, m := range matches {
			sb.WriteString(formatMatch(m))
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Tournament bracket",
		Description: sb.String(),
		Color:       embedColorNeutral,
	}
	if champ := b.Winner(); champ != "" {
		embed.Title = "Tournament complete!"
		embed.Description = fmt.Sprintf("👑 Champion: <@%s>\n\n%s", champ, sb.String())
		embed.Color = embedColorEasy
	}
	return embed
}

// roundName labels a bracket round by its distance from the final.
func roundName(round, totalRounds int) string {
	switch totalRounds - round {
	case 1:
		return "Final"
	case 2:
		return "Semifinals"
	case 3:
		return "Quarterfinals"
	default:
		return fmt.Sprintf("Round %d", round+1)
	}
}

func formatMatch(m bracket.Match) string {
	name := func(id string) string {
		if id == "" {
			return "_tbd_"
		}
		return "<@" + id + ">"
	}
	line := fmt.Sprintf("• %s vs %s", name(m.PlayerA), name(m.PlayerB))
	switch {
	case m.Forfeited && m.Winner != "":
		line += fmt.Sprintf(" — %s by forfeit", name(m.Winner))
	case m.Winner != "":
		line += fmt.Sprintf(" — %s won", name(m.Winner))
	}
	return line + "\n"
}
