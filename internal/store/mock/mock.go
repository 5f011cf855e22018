// Package mock provides an in-memory test double for the store.Store
// interface. Recorded writes can be inspected directly; stats and
// leaderboards are computed from the recorded attempts the same way the
// PostgreSQL implementation derives them.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slipspeak/slipspeak/internal/store"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is an in-memory mock implementation of store.Store.
type Store struct {
	mu sync.Mutex

	// Attempts, Sessions and Duels record every successful write in order.
	Attempts []store.Attempt
	Sessions []store.SessionRecord
	Duels    []store.DuelRecord

	// RecordErr, if non-nil, is returned from every Record* call and the
	// write is not retained.
	RecordErr error

	// QueryErr, if non-nil, is returned from PlayerStats and Leaderboard.
	QueryErr error
}

// RecordAttempt implements store.Store.
func (s *Store) RecordAttempt(_ context.Context, a store.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.Attempts = append(s.Attempts, a)
	return nil
}

// RecordSession implements store.Store.
func (s *Store) RecordSession(_ context.Context, rec store.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.Sessions = append(s.Sessions, rec)
	return nil
}

// RecordDuel implements store.Store.
func (s *Store) RecordDuel(_ context.Context, d store.DuelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.Duels = append(s.Duels, d)
	return nil
}

// PlayerStats implements store.Store, aggregating the recorded attempts.
func (s *Store) PlayerStats(_ context.Context, guildID, playerID string) (store.PlayerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.QueryErr != nil {
		return store.PlayerStats{}, s.QueryErr
	}

	var st store.PlayerStats
	for _, a := range s.Attempts {
		if a.GuildID != guildID || a.PlayerID != playerID {
			continue
		}
		st.PlayerID = a.PlayerID
		if a.PlayerName != "" {
			st.PlayerName = a.PlayerName
		}
		st.TotalPoints += int64(a.Points)
		st.Attempts++
		if a.Successful {
			st.Successes++
		}
		if a.Accuracy > st.BestAccuracy {
			st.BestAccuracy = a.Accuracy
		}
		if a.Points > st.BestPoints || st.BestTwisterID == 0 {
			st.BestTwisterID = a.TwisterID
		}
		if a.Points > st.BestPoints {
			st.BestPoints = a.Points
		}
		if a.Successful && (st.FastestTime == 0 || a.Elapsed < st.FastestTime) {
			st.FastestTime = a.Elapsed
		}
		if a.CreatedAt.After(st.LastPlayed) {
			st.LastPlayed = a.CreatedAt
		}
	}
	if st.Attempts == 0 {
		return store.PlayerStats{}, fmt.Errorf("mock store: player %s: %w", playerID, store.ErrNotFound)
	}
	return st, nil
}

// Leaderboard implements store.Store, ranking recorded attempts by total
// points.
func (s *Store) Leaderboard(_ context.Context, q store.LeaderboardQuery) ([]store.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}

	byPlayer := make(map[string]*store.LeaderboardEntry)
	for _, a := range s.Attempts {
		if q.GuildID != "" && a.GuildID != q.GuildID {
			continue
		}
		if q.Difficulty != "" && a.Difficulty != q.Difficulty {
			continue
		}
		e, ok := byPlayer[a.PlayerID]
		if !ok {
			e = &store.LeaderboardEntry{PlayerID: a.PlayerID}
			byPlayer[a.PlayerID] = e
		}
		if a.PlayerName != "" {
			e.PlayerName = a.PlayerName
		}
		e.TotalPoints += int64(a.Points)
		e.Attempts++
		if a.Successful {
			e.Successes++
		}
		if a.Points > e.BestPoints {
			e.BestPoints = a.Points
		}
	}

	entries := make([]store.LeaderboardEntry, 0, len(byPlayer))
	for _, e := range byPlayer {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// AttemptCount returns the number of recorded attempts. Thread-safe.
func (s *Store) AttemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Attempts)
}

// Reset clears all recorded writes. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attempts = nil
	s.Sessions = nil
	s.Duels = nil
}
