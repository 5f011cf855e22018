// Package session runs the per-player game loop: it owns the registry of
// active sessions, drives each turn through its presenting, recording,
// transcribing and scoring phases, and hands completed attempts to the
// result store.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/slipspeak/slipspeak/internal/store"
)

// Registry and turn errors.
var (
	// ErrAlreadyInSession is returned by Join when the player already has an
	// active session in the guild.
	ErrAlreadyInSession = errors.New("session: player already in a session")

	// ErrSessionNotFound is returned when no active session exists for the
	// player.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrTurnInProgress is returned when an operation requires an idle
	// session but a turn is still running.
	ErrTurnInProgress = errors.New("session: turn in progress")

	// ErrPlayerLeft is returned from a turn that was cut short because the
	// player disconnected from the voice channel.
	ErrPlayerLeft = errors.New("session: player left the voice channel")
)

// State is the lifecycle phase of a session's current turn.
type State int

const (
	// StateIdle means no turn is running.
	StateIdle State = iota
	// StatePresenting means the twister is being announced to the player.
	StatePresenting
	// StateRecording means the player's utterance is being captured.
	StateRecording
	// StateTranscribing means captured audio is at the speech-to-text
	// backend. The channel recording slot is still held.
	StateTranscribing
)

// String returns the lowercase phase name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePresenting:
		return "presenting"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	default:
		return "unknown"
	}
}

// Session is one player's active game in a voice channel. All methods are
// safe for concurrent use; the turn pipeline itself is serialised by the
// state machine (a second StartTurn fails with ErrTurnInProgress).
type Session struct {
	GuildID    string
	ChannelID  string
	PlayerID   string
	PlayerName string
	Mode       store.Mode
	StartedAt  time.Time

	mu         sync.Mutex
	state      State
	attempts   []store.Attempt
	departed   bool
	turnCancel context.CancelFunc
}

// State returns the current turn phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// beginTurn transitions Idle → Presenting, failing if a turn is running or
// the player has left the channel.
func (s *Session) beginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.departed {
		return ErrPlayerLeft
	}
	if s.state != StateIdle {
		return ErrTurnInProgress
	}
	s.state = StatePresenting
	return nil
}

// setTurnCancel stores the cancel function of the running turn so a
// departure can interrupt it.
func (s *Session) setTurnCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.turnCancel = cancel
	s.mu.Unlock()
}

// markDeparted flags the session as abandoned and cancels any running turn.
// Reports whether a turn was running; if so, the turn pipeline finishes the
// session teardown itself.
func (s *Session) markDeparted() (turnRunning bool) {
	s.mu.Lock()
	s.departed = true
	cancel := s.turnCancel
	running := s.state != StateIdle
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return running
}

// Departed reports whether the player has left the voice channel.
func (s *Session) Departed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.departed
}

// setState advances the turn phase.
func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// endTurn returns the session to Idle regardless of the phase reached.
func (s *Session) endTurn() {
	s.setState(StateIdle)
}

// addAttempt appends a completed attempt to the session history.
func (s *Session) addAttempt(a store.Attempt) {
	s.mu.Lock()
	s.attempts = append(s.attempts, a)
	s.mu.Unlock()
}

// Attempts returns a copy of the attempts made so far.
func (s *Session) Attempts() []store.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Attempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// Summary condenses a session's attempts.
type Summary struct {
	PlayerID     string
	Mode         store.Mode
	Turns        int
	TotalPoints  int
	Successes    int
	BestAccuracy float64
	StartedAt    time.Time
	EndedAt      time.Time
}

// summarize builds the summary from the attempts recorded so far.
func (s *Session) summarize(endedAt time.Time) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		PlayerID:  s.PlayerID,
		Mode:      s.Mode,
		Turns:     len(s.attempts),
		StartedAt: s.StartedAt,
		EndedAt:   endedAt,
	}
	for _, a := range s.attempts {
		sum.TotalPoints += a.Points
		if a.Successful {
			sum.Successes++
		}
		if a.Accuracy > sum.BestAccuracy {
			sum.BestAccuracy = a.Accuracy
		}
	}
	return sum
}
