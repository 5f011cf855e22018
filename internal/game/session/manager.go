package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slipspeak/slipspeak/internal/game/scoring"
	"github.com/slipspeak/slipspeak/internal/game/turn"
	"github.com/slipspeak/slipspeak/internal/observe"
	"github.com/slipspeak/slipspeak/internal/game/twisters"
	"github.com/slipspeak/slipspeak/internal/store"
	"github.com/slipspeak/slipspeak/pkg/provider/stt"
	"github.com/slipspeak/slipspeak/pkg/voice"
)

const defaultChallengeRounds = 10

// persistTimeout bounds the background write of a completed attempt.
const persistTimeout = 5 * time.Second

// Presenter receives game events for display. Implementations send channel
// messages or embeds; the manager never blocks on them holding locks, so
// they may do I/O. A nil Presenter is valid and silently drops events.
type Presenter interface {
	// PresentTwister announces the prompt before recording starts.
	// round/total are 1/1 for a single turn.
	PresentTwister(s *Session, tw twisters.Twister, round, total int)

	// PresentResult reports a completed attempt.
	PresentResult(s *Session, tw twisters.Twister, a store.Attempt)
}

// Config configures a [Manager].
type Config struct {
	// Voice establishes connections to voice channels.
	Voice voice.Platform

	// STT transcribes captured utterances. Wrap with stt.WithTimeout to
	// bound backend latency.
	STT stt.Provider

	// Recorder captures player utterances. Defaults to turn.NewRecorder().
	Recorder *turn.Recorder

	// Scoring evaluates transcripts. Defaults to an engine with the stock
	// tables.
	Scoring *scoring.Engine

	// Library supplies the twisters.
	Library *twisters.Library

	// Store persists results. May be nil; results are then kept in session
	// memory only.
	Store store.Store

	// Presenter receives display events. May be nil.
	Presenter Presenter

	// ChallengeRounds is the number of turns in a challenge run.
	// Defaults to 10 if zero.
	ChallengeRounds int

	// Metrics receives game telemetry. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Language is the recognition hint passed to the STT backend.
	Language string
}

type playerKey struct {
	guildID  string
	playerID string
}

type channelKey struct {
	guildID   string
	channelID string
}

// sharedConn is a voice connection reference-counted across the sessions of
// one channel. The bot joins when the first player starts and leaves when
// the last player's session ends.
type sharedConn struct {
	conn voice.Connection
	refs int
}

// Manager owns the session registry and drives the turn pipeline. All
// methods are safe for concurrent use. Different channels run turns
// independently; within a channel the recording slot serialises them.
type Manager struct {
	voice           voice.Platform
	sttProvider     stt.Provider
	recorder        *turn.Recorder
	scoring         *scoring.Engine
	library         *twisters.Library
	store           store.Store
	presenter       Presenter
	challengeRounds int
	language        string
	metrics         *observe.Metrics

	slots *turn.ChannelSlots

	mu         sync.Mutex
	sessions   map[playerKey]*Session
	conns      map[channelKey]*sharedConn
	leaveHooks []func(guildID, playerID string)
}

// NewManager creates a Manager from cfg. Voice, STT and Library are
// required.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Voice == nil {
		return nil, errors.New("session manager: Voice must not be nil")
	}
	if cfg.STT == nil {
		return nil, errors.New("session manager: STT must not be nil")
	}
	if cfg.Library == nil {
		return nil, errors.New("session manager: Library must not be nil")
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = turn.NewRecorder()
	}
	engine := cfg.Scoring
	if engine == nil {
		engine = scoring.New(scoring.DefaultTables())
	}
	rounds := cfg.ChallengeRounds
	if rounds <= 0 {
		rounds = defaultChallengeRounds
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	return &Manager{
		voice:           cfg.Voice,
		sttProvider:     cfg.STT,
		recorder:        recorder,
		scoring:         engine,
		library:         cfg.Library,
		store:           cfg.Store,
		presenter:       cfg.Presenter,
		challengeRounds: rounds,
		language:        cfg.Language,
		metrics:         metrics,
		slots:           turn.NewChannelSlots(),
		sessions:        make(map[playerKey]*Session),
		conns:           make(map[channelKey]*sharedConn),
	}, nil
}

func (m *Manager) lib() *twisters.Library {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.library
}

func (m *Manager) rounds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.challengeRounds
}

func (m *Manager) engine() *scoring.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scoring
}

// SetScoring swaps the scoring engine, for configuration reloads. Turns
// already past the scoring step are unaffected. A nil engine is ignored.
func (m *Manager) SetScoring(e *scoring.Engine) {
	if e == nil {
		return
	}
	m.mu.Lock()
	m.scoring = e
	m.mu.Unlock()
}

// SetLibrary swaps the twister corpus, for configuration reloads. A nil
// library is ignored.
func (m *Manager) SetLibrary(l *twisters.Library) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.library = l
	m.mu.Unlock()
}

// OnPlayerLeave registers fn to be called after a player's voice departure
// ended their session. Used to cancel duels and bracket matches the player
// was part of. Must be called before any session joins.
func (m *Manager) OnPlayerLeave(fn func(guildID, playerID string)) {
	m.mu.Lock()
	m.leaveHooks = append(m.leaveHooks, fn)
	m.mu.Unlock()
}

// SetChallengeRounds changes how many turns a challenge plays, for
// configuration reloads. Challenges already running keep their old count.
// Non-positive values are ignored.
func (m *Manager) SetChallengeRounds(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.challengeRounds = n
	m.mu.Unlock()
}

// Join opens a session for the player in the given voice channel, connecting
// the bot to the channel if it is not there yet. Returns
// ErrAlreadyInSession if the player already has one in the guild.
func (m *Manager) Join(ctx context.Context, guildID, channelID, playerID, playerName string, mode store.Mode) (*Session, error) {
	key := playerKey{guildID: guildID, playerID: playerID}

	m.mu.Lock()
	if _, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return nil, ErrAlreadyInSession
	}
	// Reserve the registry entry before connecting so a concurrent Join for
	// the same player fails fast instead of racing the connect.
	s := &Session{
		GuildID:    guildID,
		ChannelID:  channelID,
		PlayerID:   playerID,
		PlayerName: playerName,
		Mode:       mode,
		StartedAt:  time.Now(),
	}
	m.sessions[key] = s
	m.mu.Unlock()

	if _, err := m.acquireConn(ctx, guildID, channelID); err != nil {
		m.mu.Lock()
		delete(m.sessions, key)
		m.mu.Unlock()
		return nil, fmt.Errorf("session manager: join voice: %w", err)
	}

	m.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session started",
		"guild_id", guildID,
		"channel_id", channelID,
		"player_id", playerID,
		"mode", mode,
	)
	return s, nil
}

// Get returns the player's active session, or ErrSessionNotFound.
func (m *Manager) Get(guildID, playerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[playerKey{guildID: guildID, playerID: playerID}]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// EndSession closes the player's session and returns its summary. The bot
// leaves the voice channel when no other session uses it. Fails with
// ErrTurnInProgress while a turn is running; cancel the turn first.
func (m *Manager) EndSession(ctx context.Context, guildID, playerID string) (Summary, error) {
	key := playerKey{guildID: guildID, playerID: playerID}

	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		m.mu.Unlock()
		return Summary{}, ErrSessionNotFound
	}
	m.mu.Unlock()

	if s.State() != StateIdle {
		return Summary{}, ErrTurnInProgress
	}

	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()

	m.releaseConn(s.GuildID, s.ChannelID)
	m.metrics.ActiveSessions.Add(ctx, -1)

	sum := s.summarize(time.Now())
	if m.store != nil && s.Mode != store.ModePractice {
		if err := m.store.RecordSession(ctx, store.SessionRecord{
			GuildID:     s.GuildID,
			PlayerID:    s.PlayerID,
			Mode:        s.Mode,
			Turns:       sum.Turns,
			TotalPoints: sum.TotalPoints,
			StartedAt:   sum.StartedAt,
			EndedAt:     sum.EndedAt,
		}); err != nil {
			slog.Warn("failed to persist session summary",
				"guild_id", s.GuildID,
				"player_id", s.PlayerID,
				"error", err,
			)
		}
	}

	slog.Info("session ended",
		"guild_id", s.GuildID,
		"player_id", s.PlayerID,
		"turns", sum.Turns,
		"total_points", sum.TotalPoints,
	)
	return sum, nil
}

// StartTurn runs one complete turn for the player: a random twister drawn
// from the given difficulties (any difficulty when none given) is presented,
// the utterance recorded, transcribed and scored. Recording and
// transcription failures yield a zero-score attempt rather than an error;
// an error is returned only when the turn could not run at all.
func (m *Manager) StartTurn(ctx context.Context, guildID, playerID string, difficulties ...twisters.Difficulty) (store.Attempt, error) {
	s, err := m.Get(guildID, playerID)
	if err != nil {
		return store.Attempt{}, err
	}
	tw, err := m.lib().Random(difficulties...)
	if err != nil {
		return store.Attempt{}, fmt.Errorf("session manager: draw twister: %w", err)
	}
	return m.runTurn(ctx, s, tw, s.Mode, 1, 1)
}

// PlayTwister runs one turn with a caller-chosen twister, recorded under the
// given mode. Duels and tournaments use this to give both players the same
// prompt while keeping their attempts attributed to the right game mode.
func (m *Manager) PlayTwister(ctx context.Context, guildID, playerID string, tw twisters.Twister, mode store.Mode) (store.Attempt, error) {
	s, err := m.Get(guildID, playerID)
	if err != nil {
		return store.Attempt{}, err
	}
	if mode == "" {
		mode = s.Mode
	}
	return m.runTurn(ctx, s, tw, mode, 1, 1)
}

// RunChallenge plays a fixed series of turns with random twisters across
// all difficulties and returns the summary of just those turns. If ctx is
// cancelled mid-run, the summary of the completed turns is returned
// alongside the error.
func (m *Manager) RunChallenge(ctx context.Context, guildID, playerID string) (Summary, error) {
	s, err := m.Get(guildID, playerID)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		PlayerID:  playerID,
		Mode:      store.ModeChallenge,
		StartedAt: time.Now(),
	}
	finish := func(err error) (Summary, error) {
		sum.EndedAt = time.Now()
		return sum, err
	}

	total := m.rounds()
	for round := 1; round <= total; round++ {
		tw, err := m.lib().Random()
		if err != nil {
			return finish(fmt.Errorf("session manager: draw twister: %w", err))
		}
		a, err := m.runTurn(ctx, s, tw, store.ModeChallenge, round, total)
		if err != nil {
			return finish(err)
		}
		sum.Turns++
		sum.TotalPoints += a.Points
		if a.Successful {
			sum.Successes++
		}
		if a.Accuracy > sum.BestAccuracy {
			sum.BestAccuracy = a.Accuracy
		}
	}
	return finish(nil)
}

// runTurn drives the Presenting → Recording → Transcribing → scored
// pipeline. The attempt is recorded under mode, which may differ from the
// session's own mode when the turn belongs to a duel or tournament. The
// channel recording slot is held for the whole pipeline so a second speaker
// cannot start while transcription is still running.
func (m *Manager) runTurn(ctx context.Context, s *Session, tw twisters.Twister, mode store.Mode, round, total int) (store.Attempt, error) {
	if err := s.beginTurn(); err != nil {
		return store.Attempt{}, err
	}
	ctx, cancelTurn := context.WithCancel(ctx)
	s.setTurnCancel(cancelTurn)
	defer func() {
		s.setTurnCancel(nil)
		cancelTurn()
		s.endTurn()
		if s.Departed() {
			m.closeDeparted(s)
		}
	}()

	slot, err := m.slots.Acquire(s.GuildID, s.ChannelID)
	if err != nil {
		return store.Attempt{}, err
	}
	defer slot.Release()

	conn := m.connection(s.GuildID, s.ChannelID)
	if conn == nil {
		return store.Attempt{}, fmt.Errorf("session manager: no voice connection for channel %s", s.ChannelID)
	}

	if m.presenter != nil {
		m.presenter.PresentTwister(s, tw, round, total)
	}
	turnStart := time.Now()

	s.setState(StateRecording)
	recStart := time.Now()
	rec, err := m.recorder.Record(ctx, conn, s.PlayerID)
	m.metrics.RecordingDuration.Record(ctx, time.Since(recStart).Seconds())
	if err != nil && !errors.Is(err, turn.ErrVoiceClosed) {
		if s.Departed() {
			err = ErrPlayerLeft
		}
		return store.Attempt{}, err
	}
	voiceClosed := errors.Is(err, turn.ErrVoiceClosed)

	spoken := ""
	if !rec.NoAudio && len(rec.PCM) > 0 {
		s.setState(StateTranscribing)
		sttStart := time.Now()
		res, terr := m.sttProvider.Transcribe(ctx, rec.PCM, stt.Config{
			SampleRate: rec.SampleRate,
			Channels:   rec.Channels,
			Language:   m.language,
		})
		m.metrics.TranscriptionDuration.Record(ctx, time.Since(sttStart).Seconds())
		switch {
		case terr == nil:
			spoken = res.Text
		case errors.Is(terr, stt.ErrNoSpeech):
			// Scored as a silent attempt below.
		case errors.Is(terr, context.Canceled) && s.Departed():
			return store.Attempt{}, ErrPlayerLeft
		default:
			m.metrics.RecordTranscriptionError(ctx, transcriptionErrorClass(terr))
			slog.Warn("transcription failed, scoring turn as zero",
				"guild_id", s.GuildID,
				"player_id", s.PlayerID,
				"twister_id", tw.ID,
				"error", terr,
			)
		}
	}

	result := m.engine().Score(spoken, tw.Text, rec.Elapsed, tw.Difficulty)

	a := store.Attempt{
		GuildID:    s.GuildID,
		PlayerID:   s.PlayerID,
		PlayerName: s.PlayerName,
		TwisterID:  tw.ID,
		Difficulty: tw.Difficulty,
		Spoken:     spoken,
		Accuracy:   result.AccuracyPct,
		Points:     result.Points,
		Successful: result.Successful,
		Elapsed:    rec.Elapsed,
		Mode:       mode,
		CreatedAt:  time.Now(),
		Mismatches: result.Mismatches,
	}
	s.addAttempt(a)
	m.persistAttempt(a)

	m.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
	m.metrics.RecordAttempt(ctx, string(tw.Difficulty), string(mode), attemptStatus(result.Successful))

	if m.presenter != nil {
		m.presenter.PresentResult(s, tw, a)
	}

	if voiceClosed {
		return a, turn.ErrVoiceClosed
	}
	return a, nil
}

// persistAttempt writes the attempt in the background so a slow database
// never stalls the game loop. Practice attempts are not persisted.
func (m *Manager) persistAttempt(a store.Attempt) {
	if m.store == nil || a.Mode == store.ModePractice {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := m.store.RecordAttempt(ctx, a); err != nil {
			slog.Warn("failed to persist attempt",
				"guild_id", a.GuildID,
				"player_id", a.PlayerID,
				"twister_id", a.TwisterID,
				"error", err,
			)
		}
	}()
}

// acquireConn returns the channel's shared voice connection, connecting on
// first use.
func (m *Manager) acquireConn(ctx context.Context, guildID, channelID string) (voice.Connection, error) {
	key := channelKey{guildID: guildID, channelID: channelID}

	m.mu.Lock()
	if sc, ok := m.conns[key]; ok {
		sc.refs++
		m.mu.Unlock()
		return sc.conn, nil
	}
	m.mu.Unlock()

	conn, err := m.voice.Connect(ctx, channelID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if sc, ok := m.conns[key]; ok {
		// Lost the race to another Join; keep theirs.
		sc.refs++
		m.mu.Unlock()
		go func() { _ = conn.Disconnect() }()
		return sc.conn, nil
	}
	m.conns[key] = &sharedConn{conn: conn, refs: 1}
	m.mu.Unlock()

	// Watch for players dropping out of the channel. The callback runs on
	// the connection's goroutine and must not block.
	conn.OnParticipantChange(func(ev voice.Event) {
		if ev.Type != voice.EventLeave {
			return
		}
		go m.handlePlayerLeave(guildID, channelID, ev.UserID)
	})
	return conn, nil
}

// handlePlayerLeave ends the session of a player who dropped out of the
// voice channel. A running turn is cancelled and tears the session down as
// it unwinds; an idle session is closed immediately.
func (m *Manager) handlePlayerLeave(guildID, channelID, playerID string) {
	m.mu.Lock()
	s, ok := m.sessions[playerKey{guildID: guildID, playerID: playerID}]
	hooks := make([]func(guildID, playerID string), len(m.leaveHooks))
	copy(hooks, m.leaveHooks)
	m.mu.Unlock()
	if !ok || s.ChannelID != channelID {
		return
	}

	slog.Info("player left voice channel mid-session",
		"guild_id", guildID,
		"channel_id", channelID,
		"player_id", playerID,
	)
	if turnRunning := s.markDeparted(); !turnRunning {
		m.closeDeparted(s)
	}
	for _, fn := range hooks {
		fn(guildID, playerID)
	}
}

// closeDeparted removes a departed session from the registry and releases
// its voice connection. Safe to call more than once; only the call that
// removes the registry entry tears down.
func (m *Manager) closeDeparted(s *Session) {
	key := playerKey{guildID: s.GuildID, playerID: s.PlayerID}

	m.mu.Lock()
	cur, ok := m.sessions[key]
	if !ok || cur != s {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, key)
	m.mu.Unlock()

	m.releaseConn(s.GuildID, s.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	m.metrics.ActiveSessions.Add(ctx, -1)

	sum := s.summarize(time.Now())
	if m.store != nil && s.Mode != store.ModePractice {
		if err := m.store.RecordSession(ctx, store.SessionRecord{
			GuildID:     s.GuildID,
			PlayerID:    s.PlayerID,
			Mode:        s.Mode,
			Turns:       sum.Turns,
			TotalPoints: sum.TotalPoints,
			StartedAt:   sum.StartedAt,
			EndedAt:     sum.EndedAt,
		}); err != nil {
			slog.Warn("failed to persist session summary",
				"guild_id", s.GuildID,
				"player_id", s.PlayerID,
				"error", err,
			)
		}
	}

	slog.Info("session ended after player left",
		"guild_id", s.GuildID,
		"player_id", s.PlayerID,
		"turns", sum.Turns,
		"total_points", sum.TotalPoints,
	)
}

// releaseConn drops one reference to the channel's connection and
// disconnects when it was the last.
func (m *Manager) releaseConn(guildID, channelID string) {
	key := channelKey{guildID: guildID, channelID: channelID}

	m.mu.Lock()
	sc, ok := m.conns[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	sc.refs--
	if sc.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.conns, key)
	m.mu.Unlock()

	if err := sc.conn.Disconnect(); err != nil {
		slog.Warn("voice disconnect failed",
			"guild_id", guildID,
			"channel_id", channelID,
			"error", err,
		)
	}
}

// connection returns the channel's live connection, or nil.
func (m *Manager) connection(guildID, channelID string) voice.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sc, ok := m.conns[channelKey{guildID: guildID, channelID: channelID}]; ok {
		return sc.conn
	}
	return nil
}

// attemptStatus maps a scoring outcome to the metrics status attribute.
func attemptStatus(successful bool) string {
	if successful {
		return "success"
	}
	return "failed"
}

// transcriptionErrorClass buckets transcription failures for the error
// counter.
func transcriptionErrorClass(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "backend"
	}
}
