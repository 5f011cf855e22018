package config

import "reflect"

// ConfigDiff describes what changed between two configs. Log level, game
// rules, and the twister corpus can be applied without restart; everything
// else is reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GameChanged is true when any game rule changed. The scoring tables
	// and turn timings are rebuilt from the new config.
	GameChanged bool

	// TwistersChanged is true when the twister corpus path changed.
	TwistersChanged bool

	// RestartRequired lists config sections whose changes only take effect
	// after a restart.
	RestartRequired []string
}

// Empty reports whether no differences were found.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.GameChanged && !d.TwistersChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !reflect.DeepEqual(old.Game, new.Game) {
		d.GameChanged = true
	}

	if old.Twisters.Path != new.Twisters.Path {
		d.TwistersChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Discord != new.Discord {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if !reflect.DeepEqual(old.STT, new.STT) || !reflect.DeepEqual(old.STTFallback, new.STTFallback) {
		d.RestartRequired = append(d.RestartRequired, "stt")
	}

	return d
}
