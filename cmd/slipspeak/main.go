// Command slipspeak is the main entry point for the Slipspeak Discord bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slipspeak/slipspeak/internal/app"
	"github.com/slipspeak/slipspeak/internal/config"
	discordbot "github.com/slipspeak/slipspeak/internal/discord"
	"github.com/slipspeak/slipspeak/internal/observe"
	"github.com/slipspeak/slipspeak/internal/resilience"
	"github.com/slipspeak/slipspeak/pkg/provider/stt"
	sttopenai "github.com/slipspeak/slipspeak/pkg/provider/stt/openai"
	"github.com/slipspeak/slipspeak/pkg/provider/stt/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "slipspeak: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "slipspeak: %v\n", err)
		}
		return 1
	}

	// The level var lets a config hot-reload change verbosity live.
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("slipspeak starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "slipspeak",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── STT provider ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	sttProvider, err := reg.CreateSTT(cfg.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.STT.Name, "err", err)
		return 1
	}
	slog.Info("stt provider created", "name", cfg.STT.Name, "model", cfg.STT.Model)

	if name := cfg.STTFallback.Name; name != "" {
		secondary, err := reg.CreateSTT(cfg.STTFallback)
		if err != nil {
			slog.Error("failed to create stt fallback provider", "name", name, "err", err)
			return 1
		}
		fb := resilience.NewSTTFallback(sttProvider, cfg.STT.Name, resilience.BreakerConfig{
			FailureLimit: 3,
			Cooldown:     30 * time.Second,
		})
		fb.AddFallback(name, stt.WithTimeout(secondary, cfg.STTFallback.Timeout))
		sttProvider = fb
		slog.Info("stt fallback armed", "name", name, "model", cfg.STTFallback.Model)
	}

	// ── Discord bot (optional — headless without a token) ─────────────────
	var bot *discordbot.Bot
	if cfg.Discord.Token != "" {
		bot, err = discordbot.New(ctx, discordbot.Config{
			Token:           cfg.Discord.Token,
			GuildID:         cfg.Discord.GuildID,
			OrganizerRoleID: cfg.Discord.OrganizerRoleID,
		})
		if err != nil {
			slog.Error("failed to connect to Discord", "err", err)
			return 1
		}
		slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)
	} else {
		slog.Warn("no discord.token configured — running without a bot")
	}

	// ── Application ───────────────────────────────────────────────────────
	providers := &app.Providers{STT: sttProvider}
	var opts []app.Option
	if bot != nil {
		opts = append(opts, app.WithBot(bot))
	}

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot-reload ─────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		d := config.Diff(old, next)
		if d.Empty() {
			return
		}
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if err := application.ApplyConfig(next, d); err != nil {
			slog.Warn("config reload failed, keeping previous settings", "err", err)
		}
	})
	if err != nil {
		slog.Error("failed to watch config file", "err", err)
		return 1
	}
	defer watcher.Stop()

	printStartupSummary(cfg)
	slog.Info("ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	if bot != nil {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the STT implementations that ship with
// Slipspeak into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// whisper runs whisper.cpp in-process; ModelPath points at a GGML
	// model file.
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		return whisper.New(entry.ModelPath, opts...)
	})

	// openai uses the hosted transcription API.
	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, sttopenai.WithTimeout(entry.Timeout))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Slipspeak — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", summaryValue(cfg.STT.Name, cfg.STT.Model))
	if cfg.Discord.Token != "" {
		printRow("Discord", "connected")
	} else {
		printRow("Discord", "(disabled)")
	}
	if cfg.Storage.PostgresDSN != "" {
		printRow("Storage", "postgres")
	} else {
		printRow("Storage", "(in-memory)")
	}
	if cfg.Twisters.Path != "" {
		printRow("Twisters", cfg.Twisters.Path)
	} else {
		printRow("Twisters", "built-in corpus")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func summaryValue(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
