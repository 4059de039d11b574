package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"time"

	"golang.org/x/text/language"

	"github.com/praneth2580/storix/internal/transport"
)

// Validation bounds.
const (
	minRequestTimeout = time.Second
	minPollInterval   = 5 * time.Second
)

// ErrNoEndpoint is returned by RequireEndpoint when no remote endpoint is
// configured by any layer.
var ErrNoEndpoint = errors.New("config: no remote endpoint configured (set remote.endpoint, " +
	EnvEndpoint + ", or --endpoint)")

// Validate checks all configuration values and returns every error found,
// so users can fix the whole file in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateAPI(&cfg.API)...)

	return errors.Join(errs...)
}

// ValidateResolved checks the final merged result. Env and CLI layers can
// introduce values the file never held, so endpoint and listen address are
// checked again here.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if err := validateEndpoint(r.Endpoint); err != nil {
		errs = append(errs, err)
	}

	if r.DBPath != "" && !filepath.IsAbs(r.DBPath) {
		errs = append(errs, fmt.Errorf("db_path: must be absolute after expansion, got %q", r.DBPath))
	}

	errs = append(errs, validateLogLevel(r.LogLevel)...)

	if err := validateListen(r.Listen); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// RequireEndpoint reports ErrNoEndpoint for commands that talk to the
// remote when none is configured.
func (r *Resolved) RequireEndpoint() error {
	if r.Endpoint == "" {
		return ErrNoEndpoint
	}

	return nil
}

func validateRemote(rc *RemoteConfig) []error {
	var errs []error

	if err := validateEndpoint(rc.Endpoint); err != nil {
		errs = append(errs, err)
	}

	if err := transport.ValidateCallback(rc.Callback); err != nil {
		errs = append(errs, fmt.Errorf("callback: %w", err))
	}

	errs = append(errs, validateDurationMin("request_timeout", rc.RequestTimeout, minRequestTimeout)...)

	return errs
}

// validateEndpoint accepts an empty endpoint; commands that need one call
// RequireEndpoint.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("endpoint: invalid URL %q: %w", endpoint, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint: scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("endpoint: missing host in %q", endpoint)
	}

	return nil
}

func validateSync(s *SyncConfig) []error {
	errs := validateDurationMin("poll_interval", s.PollInterval, minPollInterval)

	if _, err := language.Parse(s.Locale); err != nil {
		errs = append(errs, fmt.Errorf("locale: invalid language tag %q: %w", s.Locale, err))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

func validateAPI(a *APIConfig) []error {
	if err := validateListen(a.Listen); err != nil {
		return []error{err}
	}

	return nil
}

// validateListen accepts an empty address, which disables the API.
func validateListen(addr string) error {
	if addr == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("listen: invalid address %q: %w", addr, err)
	}

	return nil
}

func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
