package session

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/slipspeak/slipspeak/internal/game/turn"
	"github.com/slipspeak/slipspeak/internal/game/twisters"
	"github.com/slipspeak/slipspeak/internal/store"
	storemock "github.com/slipspeak/slipspeak/internal/store/mock"
	"github.com/slipspeak/slipspeak/pkg/provider/stt"
	sttmock "github.com/slipspeak/slipspeak/pkg/provider/stt/mock"
	"github.com/slipspeak/slipspeak/pkg/voice"
	voicemock "github.com/slipspeak/slipspeak/pkg/voice/mock"
)

// recordingPresenter captures presenter callbacks for assertions.
type recordingPresenter struct {
	mu       sync.Mutex
	twisters []twisters.Twister
	attempts []store.Attempt
}

func (p *recordingPresenter) PresentTwister(_ *Session, tw twisters.Twister, _, _ int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.twisters = append(p.twisters, tw)
}

func (p *recordingPresenter) PresentResult(_ *Session, _ twisters.Twister, a store.Attempt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, a)
}

func speechFrame() voice.Frame {
	data := make([]byte, 960*2)
	for i := 0; i < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], uint16(int16(8000)))
	}
	return voice.Frame{Data: data, SampleRate: 48000, Channels: 1, Timestamp: 20 * time.Millisecond}
}

type fixture struct {
	manager   *Manager
	conn      *voicemock.Connection
	platform  *voicemock.Platform
	provider  *sttmock.Provider
	results   *storemock.Store
	presenter *recordingPresenter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	lib, err := twisters.NewLibrary(twisters.Builtin())
	if err != nil {
		t.Fatalf("NewLibrary() error = %v", err)
	}

	f := &fixture{
		conn:      voicemock.NewConnection(),
		provider:  &sttmock.Provider{},
		results:   &storemock.Store{},
		presenter: &recordingPresenter{},
	}
	f.platform = &voicemock.Platform{ConnectResult: f.conn}

	f.manager, err = NewManager(Config{
		Voice: f.platform,
		STT:   f.provider,
		Recorder: turn.NewRecorder(
			turn.WithSilenceThreshold(40*time.Millisecond),
			turn.WithMaxDuration(400*time.Millisecond),
		),
		Library:         lib,
		Store:           f.results,
		Presenter:       f.presenter,
		ChallengeRounds: 2,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return f
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestManager_JoinAndDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeSolo)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v; want idle", s.State())
	}
	if len(f.platform.ConnectCalls) != 1 {
		t.Errorf("Connect calls = %d; want 1", len(f.platform.ConnectCalls))
	}

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeSolo); !errors.Is(err, ErrAlreadyInSession) {
		t.Errorf("duplicate Join error = %v; want ErrAlreadyInSession", err)
	}

	// Second player joining the same channel must reuse the connection.
	if _, err := f.manager.Join(ctx, "g1", "c1", "bob", "Bob", store.ModeSolo); err != nil {
		t.Fatalf("Join(bob) error = %v", err)
	}
	if len(f.platform.ConnectCalls) != 1 {
		t.Errorf("Connect calls after second join = %d; want 1", len(f.platform.ConnectCalls))
	}
}

func TestManager_StartTurnScoresAndPersists(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeSolo); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	f.provider.TranscribeFunc = func(_ context.Context, _ []byte, _ stt.Config) (stt.Result, error) {
		// Echo whatever twister was presented so accuracy is perfect.
		f.presenter.mu.Lock()
		defer f.presenter.mu.Unlock()
		return stt.Result{Text: f.presenter.twisters[len(f.presenter.twisters)-1].Text}, nil
	}
	for range 5 {
		f.conn.Send("alice", speechFrame())
	}

	a, err := f.manager.StartTurn(ctx, "g1", "alice", twisters.Easy)
	if err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	if a.Accuracy != 100 {
		t.Errorf("Accuracy = %v; want 100", a.Accuracy)
	}
	if !a.Successful || a.Points <= 0 {
		t.Errorf("attempt = %+v; want successful with points", a)
	}
	if a.Difficulty != twisters.Easy {
		t.Errorf("Difficulty = %v; want easy", a.Difficulty)
	}

	s, _ := f.manager.Get("g1", "alice")
	if s.State() != StateIdle {
		t.Errorf("State() after turn = %v; want idle", s.State())
	}
	if got := len(s.Attempts()); got != 1 {
		t.Errorf("session attempts = %d; want 1", got)
	}

	waitFor(t, func() bool { return f.results.AttemptCount() == 1 },
		"attempt was never persisted")
}

func TestManager_SilentTurnScoresZero(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeSolo); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	// No frames at all: the recording window expires with no audio.
	a, err := f.manager.StartTurn(ctx, "g1", "alice", twisters.Easy)
	if err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	if a.Points != 0 || a.Accuracy != 0 || a.Successful {
		t.Errorf("attempt = %+v; want zero score", a)
	}
	if f.provider.CallCount() != 0 {
		t.Errorf("Transcribe calls = %d; want 0 for silent turn", f.provider.CallCount())
	}
}

func TestManager_TranscriptionFailureScoresZero(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeSolo); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	f.provider.Err = stt.ErrTimeout
	for range 3 {
		f.conn.Send("alice", speechFrame())
	}

	a, err := f.manager.StartTurn(ctx, "g1", "alice", twisters.Easy)
	if err != nil {
		t.Fatalf("StartTurn() error = %v; transcription failures must not error the turn", err)
	}
	if a.Points != 0 || a.Spoken != "" {
		t.Errorf("attempt = %+v; want zero score with empty transcript", a)
	}
}

func TestManager_ChannelBusyDuringTurn(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeSolo); err != nil {
		t.Fatalf("Join(alice) error = %v", err)
	}
	if _, err := f.manager.Join(ctx, "g1", "c1", "bob", "Bob", store.ModeSolo); err != nil {
		t.Fatalf("Join(bob) error = %v", err)
	}

	// Alice's turn blocks in the recording window; no frames arrive.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.manager.StartTurn(ctx, "g1", "alice", twisters.Easy)
	}()

	waitFor(t, func() bool {
		s, _ := f.manager.Get("g1", "alice")
		return s.State() == StateRecording
	}, "alice never reached the recording phase")

	if _, err := f.manager.StartTurn(ctx, "g1", "bob", twisters.Easy); !errors.Is(err, turn.ErrChannelBusy) {
		t.Errorf("StartTurn(bob) error = %v; want ErrChannelBusy", err)
	}
	<-done
}

func TestManager_PracticeModeNotPersisted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModePractice); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	f.provider.Results = []stt.Result{{Text: "whatever"}}
	for range 3 {
		f.conn.Send("alice", speechFrame())
	}

	if _, err := f.manager.StartTurn(ctx, "g1", "alice"); err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if f.results.AttemptCount() != 0 {
		t.Errorf("persisted attempts = %d; want 0 in practice mode", f.results.AttemptCount())
	}

	if _, err := f.manager.EndSession(ctx, "g1", "alice"); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if len(f.results.Sessions) != 0 {
		t.Error("practice session summary must not be persisted")
	}
}

func TestManager_EndSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.EndSession(ctx, "g1", "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("EndSession(ghost) error = %v; want ErrSessionNotFound", err)
	}

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeSolo); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	sum, err := f.manager.EndSession(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if sum.Turns != 0 || sum.PlayerID != "alice" {
		t.Errorf("summary = %+v; want empty summary for alice", sum)
	}
	if f.conn.CallCountDisconnect != 1 {
		t.Errorf("Disconnect calls = %d; want 1 after last session ends", f.conn.CallCountDisconnect)
	}
	if len(f.results.Sessions) != 1 {
		t.Errorf("persisted sessions = %d; want 1", len(f.results.Sessions))
	}

	if _, err := f.manager.Get("g1", "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after end error = %v; want ErrSessionNotFound", err)
	}
}

func TestManager_RunChallengeCancelledReturnsPartial(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.manager.Join(context.Background(), "g1", "c1", "alice", "Alice", store.ModeChallenge); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	sum, err := f.manager.RunChallenge(ctx, "g1", "alice")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunChallenge() error = %v; want context.Canceled", err)
	}
	if sum.Turns != 0 {
		t.Errorf("Turns = %d; want 0 for immediately cancelled run", sum.Turns)
	}

	s, _ := f.manager.Get("g1", "alice")
	if s.State() != StateIdle {
		t.Errorf("State() after cancellation = %v; want idle", s.State())
	}
}

func TestManager_RunChallengePlaysConfiguredRounds(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeChallenge); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	f.provider.Results = []stt.Result{{Text: "something"}}

	// Feed speech for the first round only; the second times out silent.
	for range 3 {
		f.conn.Send("alice", speechFrame())
	}

	sum, err := f.manager.RunChallenge(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("RunChallenge() error = %v", err)
	}
	if sum.Turns != 2 {
		t.Errorf("Turns = %d; want 2", sum.Turns)
	}
	if sum.Mode != store.ModeChallenge {
		t.Errorf("Mode = %v; want challenge", sum.Mode)
	}
}

func TestManager_PlayTwisterRecordsGivenMode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeSolo); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	f.provider.Results = []stt.Result{{Text: "whatever"}}
	for range 3 {
		f.conn.Send("alice", speechFrame())
	}

	tw := twisters.Builtin()[0]
	a, err := f.manager.PlayTwister(ctx, "g1", "alice", tw, store.ModeDuel)
	if err != nil {
		t.Fatalf("PlayTwister() error = %v", err)
	}
	if a.Mode != store.ModeDuel {
		t.Errorf("attempt mode = %q; want %q", a.Mode, store.ModeDuel)
	}

	waitFor(t, func() bool { return f.results.AttemptCount() == 1 },
		"attempt was never persisted")
	if got := f.results.Attempts[0].Mode; got != store.ModeDuel {
		t.Errorf("persisted mode = %q; want %q", got, store.ModeDuel)
	}
}

func TestManager_SetChallengeRoundsTakesEffect(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeChallenge); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	f.manager.SetChallengeRounds(3)
	sum, err := f.manager.RunChallenge(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("RunChallenge() error = %v", err)
	}
	if sum.Turns != 3 {
		t.Errorf("Turns = %d; want 3 after reload", sum.Turns)
	}
}

func TestManager_VoiceLeaveEndsIdleSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	var (
		hookMu    sync.Mutex
		hookCalls []string
	)
	f.manager.OnPlayerLeave(func(guildID, playerID string) {
		hookMu.Lock()
		hookCalls = append(hookCalls, guildID+"/"+playerID)
		hookMu.Unlock()
	})

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeSolo); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if len(f.conn.RecordedCallbacks) != 1 {
		t.Fatalf("participant callbacks registered = %d; want 1", len(f.conn.RecordedCallbacks))
	}

	// Someone else leaving the channel must not touch alice's session.
	f.conn.Emit(voice.Event{Type: voice.EventLeave, UserID: "bob"})
	time.Sleep(50 * time.Millisecond)
	if _, err := f.manager.Get("g1", "alice"); err != nil {
		t.Fatalf("Get() after unrelated leave = %v; want session alive", err)
	}

	f.conn.Emit(voice.Event{Type: voice.EventLeave, UserID: "alice"})
	waitFor(t, func() bool {
		_, err := f.manager.Get("g1", "alice")
		return errors.Is(err, ErrSessionNotFound)
	}, "session was never ended after the player left")

	waitFor(t, func() bool { return len(f.results.Sessions) == 1 },
		"session summary was never persisted")
	if f.conn.CallCountDisconnect == 0 {
		t.Error("voice connection was never released")
	}

	hookMu.Lock()
	defer hookMu.Unlock()
	if len(hookCalls) != 1 || hookCalls[0] != "g1/alice" {
		t.Errorf("leave hooks = %v; want one call for g1/alice", hookCalls)
	}
}

func TestManager_VoiceLeaveCancelsRunningTurn(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Join(ctx, "g1", "c1", "alice", "Alice", store.ModeChallenge); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	// No frames arrive, so the recorder sits waiting until the departure
	// cancels the turn.
	errCh := make(chan error, 1)
	go func() {
		_, err := f.manager.StartTurn(ctx, "g1", "alice")
		errCh <- err
	}()

	waitFor(t, func() bool {
		s, err := f.manager.Get("g1", "alice")
		return err == nil && s.State() != StateIdle
	}, "turn never started")
	f.conn.Emit(voice.Event{Type: voice.EventLeave, UserID: "alice"})

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPlayerLeft) {
			t.Fatalf("StartTurn() error = %v; want ErrPlayerLeft", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StartTurn never returned after the player left")
	}

	waitFor(t, func() bool {
		_, err := f.manager.Get("g1", "alice")
		return errors.Is(err, ErrSessionNotFound)
	}, "session survived the departure")

	// A departed session cannot start another turn.
	if _, err := f.manager.StartTurn(ctx, "g1", "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("StartTurn() after leave error = %v; want ErrSessionNotFound", err)
	}
}
