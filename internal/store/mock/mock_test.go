package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slipspeak/slipspeak/internal/game/twisters"
	"github.com/slipspeak/slipspeak/internal/store"
)

func attempt(player string, points int, successful bool) store.Attempt {
	return store.Attempt{
		GuildID:    "g1",
		PlayerID:   player,
		PlayerName: player + "-name",
		TwisterID:  3,
		Points:     points,
		Successful: successful,
		CreatedAt:  time.Now(),
	}
}

func TestStore_PlayerStatsAggregation(t *testing.T) {
	t.Parallel()
	s := &Store{}
	ctx := context.Background()

	for _, a := range []store.Attempt{
		attempt("alice", 1500, true),
		attempt("alice", 800, false),
		attempt("bob", 2000, true),
	} {
		if err := s.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt() error = %v", err)
		}
	}

	st, err := s.PlayerStats(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("PlayerStats() error = %v", err)
	}
	if st.TotalPoints != 2300 || st.Attempts != 2 || st.Successes != 1 {
		t.Errorf("stats = %+v; want 2300 points over 2 attempts, 1 success", st)
	}
	if st.BestPoints != 1500 {
		t.Errorf("BestPoints = %d; want 1500", st.BestPoints)
	}

	if _, err := s.PlayerStats(ctx, "g1", "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("PlayerStats(nobody) error = %v; want ErrNotFound", err)
	}
}

func TestStore_LeaderboardRanking(t *testing.T) {
	t.Parallel()
	s := &Store{}
	ctx := context.Background()

	for _, a := range []store.Attempt{
		attempt("alice", 1000, true),
		attempt("bob", 3000, true),
		attempt("carol", 2000, true),
	} {
		if err := s.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt() error = %v", err)
		}
	}

	entries, err := s.Leaderboard(ctx, store.LeaderboardQuery{GuildID: "g1", Limit: 2})
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d; want 2", len(entries))
	}
	if entries[0].PlayerID != "bob" || entries[0].Rank != 1 {
		t.Errorf("entries[0] = %+v; want bob at rank 1", entries[0])
	}
	if entries[1].PlayerID != "carol" || entries[1].Rank != 2 {
		t.Errorf("entries[1] = %+v; want carol at rank 2", entries[1])
	}
}

func TestStore_RecordErr(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("boom")
	s := &Store{RecordErr: wantErr}

	if err := s.RecordAttempt(context.Background(), attempt("alice", 1, true)); !errors.Is(err, wantErr) {
		t.Fatalf("RecordAttempt() error = %v; want %v", err, wantErr)
	}
	if s.AttemptCount() != 0 {
		t.Error("failed write must not be retained")
	}
}

func TestStore_PlayerStatsBestTwisterAndFastest(t *testing.T) {
	t.Parallel()
	s := &Store{}
	ctx := context.Background()

	a1 := attempt("alice", 800, true)
	a1.TwisterID = 5
	a1.Elapsed = 4 * time.Second
	a2 := attempt("alice", 1500, true)
	a2.TwisterID = 9
	a2.Elapsed = 6 * time.Second
	a3 := attempt("alice", 2000, false)
	a3.TwisterID = 2
	a3.Elapsed = time.Second
	for _, a := range []store.Attempt{a1, a2, a3} {
		if err := s.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt() error = %v", err)
		}
	}

	st, err := s.PlayerStats(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("PlayerStats() error = %v", err)
	}
	if st.BestTwisterID != 2 {
		t.Errorf("BestTwisterID = %d; want 2 (highest-scoring attempt)", st.BestTwisterID)
	}
	// The one-second attempt failed, so it cannot be the fastest success.
	if st.FastestTime != 4*time.Second {
		t.Errorf("FastestTime = %v; want 4s", st.FastestTime)
	}
}

func TestStore_LeaderboardScopeAndDifficulty(t *testing.T) {
	t.Parallel()
	s := &Store{}
	ctx := context.Background()

	home := attempt("alice", 1000, true)
	home.Difficulty = twisters.Easy
	away := attempt("bob", 3000, true)
	away.GuildID = "g2"
	away.Difficulty = twisters.Hard
	for _, a := range []store.Attempt{home, away} {
		if err := s.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt() error = %v", err)
		}
	}

	guild, err := s.Leaderboard(ctx, store.LeaderboardQuery{GuildID: "g1"})
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(guild) != 1 || guild[0].PlayerID != "alice" {
		t.Errorf("guild entries = %+v; want just alice", guild)
	}

	global, err := s.Leaderboard(ctx, store.LeaderboardQuery{})
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(global) != 2 || global[0].PlayerID != "bob" {
		t.Errorf("global entries = %+v; want bob leading both players", global)
	}
	if global[0].BestPoints != 3000 {
		t.Errorf("BestPoints = %d; want 3000", global[0].BestPoints)
	}

	hardOnly, err := s.Leaderboard(ctx, store.LeaderboardQuery{Difficulty: twisters.Hard})
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(hardOnly) != 1 || hardOnly[0].PlayerID != "bob" {
		t.Errorf("hard entries = %+v; want just bob", hardOnly)
	}
}
