// Package app wires all Slipspeak subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the bot and the HTTP endpoint until the context
// is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithLibrary, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/slipspeak/slipspeak/internal/config"
	"github.com/slipspeak/slipspeak/internal/discord"
	"github.com/slipspeak/slipspeak/internal/discord/commands"
	"github.com/slipspeak/slipspeak/internal/game/duel"
	"github.com/slipspeak/slipspeak/internal/game/scoring"
	"github.com/slipspeak/slipspeak/internal/game/session"
	"github.com/slipspeak/slipspeak/internal/game/turn"
	"github.com/slipspeak/slipspeak/internal/game/twisters"
	"github.com/slipspeak/slipspeak/internal/health"
	"github.com/slipspeak/slipspeak/internal/observe"
	"github.com/slipspeak/slipspeak/internal/store"
	"github.com/slipspeak/slipspeak/internal/store/postgres"
	"github.com/slipspeak/slipspeak/pkg/provider/stt"
	"github.com/slipspeak/slipspeak/pkg/voice"
)

// httpShutdownTimeout bounds the graceful drain of the HTTP endpoint.
const httpShutdownTimeout = 10 * time.Second

// Providers holds the pluggable backends. Populated by main.go via the
// config registry; tests inject mocks.
type Providers struct {
	// STT transcribes recorded utterances. Required.
	STT stt.Provider

	// Voice connects to voice channels. When nil, the bot's platform is
	// used; one of the two must be present.
	Voice voice.Platform
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	library   *twisters.Library
	results   store.Store
	pg        *postgres.Store
	sessions  *session.Manager
	duels     *duel.Coordinator
	presenter *discord.Presenter
	bot       *discord.Bot

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a results store instead of connecting to PostgreSQL.
func WithStore(st store.Store) Option {
	return func(a *App) { a.results = st }
}

// WithLibrary injects a twister library instead of loading one from config.
func WithLibrary(l *twisters.Library) Option {
	return func(a *App) { a.library = l }
}

// WithBot attaches a connected Discord bot. Slash commands are registered
// against its router and game events are announced through its session.
// Without a bot the app runs headless (useful for tests).
func WithBot(b *discord.Bot) Option {
	return func(a *App) { a.bot = b }
}

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initLibrary(); err != nil {
		return nil, fmt.Errorf("app: init twisters: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initGame(); err != nil {
		return nil, fmt.Errorf("app: init game: %w", err)
	}
	if a.bot != nil {
		a.initCommands()
	}

	return a, nil
}

// initLibrary loads the configured twister file, or the built-in corpus
// when none is configured.
func (a *App) initLibrary() error {
	if a.library != nil {
		return nil
	}

	var (
		tws []twisters.Twister
		err error
	)
	if path := a.cfg.Twisters.Path; path != "" {
		tws, err = twisters.LoadFile(path)
		if err != nil {
			return err
		}
		slog.Info("loaded twister file", "path", path, "count", len(tws))
	} else {
		tws = twisters.Builtin()
	}

	a.library, err = twisters.NewLibrary(tws)
	return err
}

// initStore connects to PostgreSQL when a DSN is configured. Without one
// the game runs with in-memory session state only; stats and leaderboards
// are unavailable.
func (a *App) initStore(ctx context.Context) error {
	if a.results != nil {
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		slog.Warn("no storage.postgres_dsn configured — stats and leaderboards are disabled")
		return nil
	}

	pg, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.pg = pg
	a.results = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// initGame builds the scoring engine, session manager and duel coordinator
// from the configured rules.
func (a *App) initGame() error {
	tables, err := a.cfg.Game.ScoringTables()
	if err != nil {
		return err
	}

	platform := a.providers.Voice
	if platform == nil && a.bot != nil {
		platform = a.bot.Platform()
	}

	if a.bot != nil {
		a.presenter = discord.NewPresenter(a.bot.Session())
	}

	var recorderOpts []turn.RecorderOption
	if d := a.cfg.Game.SilenceThreshold; d > 0 {
		recorderOpts = append(recorderOpts, turn.WithSilenceThreshold(d))
	}
	if d := a.cfg.Game.RecordingTimeout; d > 0 {
		recorderOpts = append(recorderOpts, turn.WithMaxDuration(d))
	}

	sttProvider := a.providers.STT
	if d := a.cfg.STT.Timeout; d > 0 {
		sttProvider = stt.WithTimeout(sttProvider, d)
	}

	mgrCfg := session.Config{
		Voice:           platform,
		STT:             sttProvider,
		Recorder:        turn.NewRecorder(recorderOpts...),
		Scoring:         scoring.New(tables),
		Library:         a.library,
		Store:           a.results,
		ChallengeRounds: a.cfg.Game.ChallengeRounds,
		Language:        a.cfg.STT.Language,
	}
	if a.presenter != nil {
		mgrCfg.Presenter = a.presenter
	}
	a.sessions, err = session.NewManager(mgrCfg)
	if err != nil {
		return err
	}

	duelCfg := duel.Config{
		Turns:        a.sessions,
		Library:      a.library,
		Store:        a.results,
		AcceptWindow: a.cfg.Game.DuelAcceptWindow,
		BestOf:       a.cfg.Game.DuelBestOf,
	}
	if a.presenter != nil {
		duelCfg.Notifier = a.presenter
	}
	a.duels, err = duel.NewCoordinator(duelCfg)
	if err != nil {
		return err
	}

	// A voice disconnect ends the player's session; their duels go with it.
	a.sessions.OnPlayerLeave(a.duels.PlayerLeft)
	return nil
}

// initCommands registers the slash command groups with the bot.
func (a *App) initCommands() {
	commands.NewTwisterCommands(a.bot, a.sessions, a.results, a.library)
	commands.NewDuelCommands(a.bot, a.duels, a.presenter)
	commands.NewTournamentCommands(a.bot, a.duels, a.results)
}

// Sessions exposes the session manager, e.g. for config hot-reload.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Duels exposes the duel coordinator.
func (a *App) Duels() *duel.Coordinator { return a.duels }

// Library returns the active twister library.
func (a *App) Library() *twisters.Library { return a.library }

// Run executes the bot and the HTTP endpoint until ctx is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.bot != nil {
		g.Go(func() error { return a.bot.Run(ctx) })
	}

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:    addr,
			Handler: a.httpHandler(),
		}
		g.Go(func() error {
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				slog.Info("http endpoint listening", "addr", addr, "tls", true)
				err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			} else {
				slog.Info("http endpoint listening", "addr", addr)
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	return g.Wait()
}

// httpHandler builds the metrics and health mux, instrumented with the
// tracing middleware.
func (a *App) httpHandler() http.Handler {
	var checkers []health.Checker
	if a.pg != nil {
		checkers = append(checkers, health.DatabaseCheck(a.pg))
	}
	if a.bot != nil {
		checkers = append(checkers, health.GatewayCheck(a.bot.Session()))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(observe.DefaultMetrics())(mux)
}

// ApplyConfig applies a hot-reloaded configuration. Game rules and the
// twister corpus take effect immediately; sections listed in
// d.RestartRequired are logged and need a restart.
func (a *App) ApplyConfig(next *config.Config, d config.ConfigDiff) error {
	if d.GameChanged {
		tables, err := next.Game.ScoringTables()
		if err != nil {
			return fmt.Errorf("app: reload game rules: %w", err)
		}
		a.sessions.SetScoring(scoring.New(tables))
		a.sessions.SetChallengeRounds(next.Game.ChallengeRounds)
		slog.Info("applied new game rules")
		if next.Game.RecordingTimeout != a.cfg.Game.RecordingTimeout ||
			next.Game.SilenceThreshold != a.cfg.Game.SilenceThreshold {
			slog.Warn("recording timing changes take effect after restart")
		}
	}

	if d.TwistersChanged {
		tws := twisters.Builtin()
		if path := next.Twisters.Path; path != "" {
			var err error
			tws, err = twisters.LoadFile(path)
			if err != nil {
				return fmt.Errorf("app: reload twisters: %w", err)
			}
		}
		lib, err := twisters.NewLibrary(tws)
		if err != nil {
			return fmt.Errorf("app: reload twisters: %w", err)
		}
		a.sessions.SetLibrary(lib)
		if a.duels != nil {
			a.duels.SetLibrary(lib)
		}
		a.library = lib
		slog.Info("reloaded twister corpus", "path", next.Twisters.Path, "count", len(tws))
	}

	for _, section := range d.RestartRequired {
		slog.Warn("config change needs a restart to take effect", "section", section)
	}

	a.cfg = next
	return nil
}

// Shutdown releases all resources. Safe to call more than once.
func (a *App) Shutdown(_ context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
