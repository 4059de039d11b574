package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	resolved := fromConfig(cfg)
	resolved.ConfigPath = cfgPath

	if env.Endpoint != "" {
		resolved.Endpoint = env.Endpoint
	}

	if env.DBPath != "" {
		resolved.DBPath = env.DBPath
	}

	if cli.Endpoint != nil {
		resolved.Endpoint = *cli.Endpoint
	}

	if cli.DBPath != nil {
		resolved.DBPath = *cli.DBPath
	}

	if cli.Listen != nil {
		resolved.Listen = *cli.Listen
	}

	if cli.LogLevel != nil {
		resolved.LogLevel = *cli.LogLevel
	}

	if resolved.DBPath == "" {
		resolved.DBPath = DefaultStatePath()
	}

	resolved.DBPath = expandTilde(resolved.DBPath)

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

// fromConfig converts a validated Config into its resolved form. Durations
// were checked by Validate, so parse errors cannot occur here.
func fromConfig(cfg *Config) *Resolved {
	timeout, _ := time.ParseDuration(cfg.Remote.RequestTimeout)
	poll, _ := time.ParseDuration(cfg.Sync.PollInterval)

	return &Resolved{
		Endpoint:       cfg.Remote.Endpoint,
		Callback:       cfg.Remote.Callback,
		RequestTimeout: timeout,
		UserAgent:      cfg.Remote.UserAgent,
		PollInterval:   poll,
		Locale:         cfg.Sync.Locale,
		DBPath:         cfg.State.DBPath,
		LogLevel:       cfg.Logging.LogLevel,
		LogFormat:      cfg.Logging.LogFormat,
		Listen:         cfg.API.Listen,
	}
}
