package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":          {"whisper", "openai"},
	"stt_fallback": {"whisper", "openai"},
}

// DefaultSTTTimeout bounds a transcription call when stt.timeout is unset.
const DefaultSTTTimeout = 30 * time.Second

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills values the operator left unset.
func applyDefaults(cfg *Config) {
	if cfg.STT.Timeout == 0 {
		cfg.STT.Timeout = DefaultSTTTimeout
	}
	if cfg.STTFallback.Name != "" && cfg.STTFallback.Timeout == 0 {
		cfg.STTFallback.Timeout = DefaultSTTTimeout
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// STT provider
	validateProviderName("stt", cfg.STT.Name)
	if cfg.STT.Name == "" {
		slog.Warn("stt.name is empty; voice attempts cannot be transcribed")
	}
	if cfg.STT.Timeout < 0 {
		errs = append(errs, fmt.Errorf("stt.timeout %v must not be negative", cfg.STT.Timeout))
	}
	if cfg.STTFallback.Name != "" {
		validateProviderName("stt_fallback", cfg.STTFallback.Name)
		if cfg.STTFallback.Name == cfg.STT.Name {
			slog.Warn("stt_fallback names the same provider as stt; failover adds nothing")
		}
	}
	if cfg.STTFallback.Timeout < 0 {
		errs = append(errs, fmt.Errorf("stt_fallback.timeout %v must not be negative", cfg.STTFallback.Timeout))
	}

	// Discord / storage availability
	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; the bot cannot connect to Discord")
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; stats and leaderboards will not be available")
	}

	// Game rules
	g := cfg.Game
	if g.RecordingTimeout < 0 {
		errs = append(errs, fmt.Errorf("game.recording_timeout %v must not be negative", g.RecordingTimeout))
	}
	if g.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("game.silence_threshold %v must not be negative", g.SilenceThreshold))
	}
	if g.RecordingTimeout > 0 && g.SilenceThreshold >= g.RecordingTimeout {
		errs = append(errs, fmt.Errorf("game.silence_threshold %v must be shorter than game.recording_timeout %v", g.SilenceThreshold, g.RecordingTimeout))
	}
	if g.ChallengeRounds < 0 {
		errs = append(errs, fmt.Errorf("game.challenge_rounds %d must not be negative", g.ChallengeRounds))
	}
	if g.DuelAcceptWindow < 0 {
		errs = append(errs, fmt.Errorf("game.duel_accept_window %v must not be negative", g.DuelAcceptWindow))
	}
	if g.DuelBestOf < 0 {
		errs = append(errs, fmt.Errorf("game.duel_best_of %d must not be negative", g.DuelBestOf))
	}
	if g.DuelBestOf > 0 && g.DuelBestOf%2 == 0 {
		slog.Warn("game.duel_best_of is even; it will be rounded up to the next odd value", "best_of", g.DuelBestOf)
	}
	if g.MinAccuracyPct < 0 || g.MinAccuracyPct > 100 {
		errs = append(errs, fmt.Errorf("game.min_accuracy_pct %.1f is out of range [0, 100]", g.MinAccuracyPct))
	}
	if _, err := g.ScoringTables(); err != nil {
		errs = append(errs, err)
	}
	for i := 1; i < len(g.SpeedBonuses); i++ {
		if g.SpeedBonuses[i].Under < g.SpeedBonuses[i-1].Under {
			slog.Warn("game.speed_bonuses are not sorted by under ascending; later bands will never match",
				"index", i,
				"under", g.SpeedBonuses[i].Under,
			)
			break
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
