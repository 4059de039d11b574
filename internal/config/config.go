// Package config implements TOML configuration loading for storix.
//
// Settings resolve in four layers, each overriding the last: built-in
// defaults, the config file, environment variables (optionally seeded from
// a .env file), and CLI flags. Unknown keys in the file are fatal and come
// with a "did you mean" suggestion when a known key is close.
package config

import "time"

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Remote  RemoteConfig  `toml:"remote"`
	Sync    SyncConfig    `toml:"sync"`
	State   StateConfig   `toml:"state"`
	Logging LoggingConfig `toml:"logging"`
	API     APIConfig     `toml:"api"`
}

// RemoteConfig describes the JSONP backend.
type RemoteConfig struct {
	Endpoint       string `toml:"endpoint"`
	Callback       string `toml:"callback"`
	RequestTimeout string `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// SyncConfig controls the scheduler and view ordering.
type SyncConfig struct {
	PollInterval string `toml:"poll_interval"`
	Locale       string `toml:"locale"`
}

// StateConfig locates the local state database.
type StateConfig struct {
	DBPath string `toml:"db_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// APIConfig controls the local HTTP API served by "storix watch".
type APIConfig struct {
	Listen string `toml:"listen"`
}

// Resolved is the effective configuration after all layers are applied,
// with durations parsed and paths expanded.
type Resolved struct {
	ConfigPath string

	Endpoint       string
	Callback       string
	RequestTimeout time.Duration
	UserAgent      string

	PollInterval time.Duration
	Locale       string

	DBPath string

	LogLevel  string
	LogFormat string

	Listen string
}

// CLIOverrides holds values from CLI flags that override the config file and
// environment. Pointer fields distinguish "not specified" (nil) from an
// explicit empty value.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Endpoint   *string // --endpoint flag
	DBPath     *string // --state-db flag
	Listen     *string // --listen flag
	LogLevel   *string // --log-level, --verbose, --quiet
}
