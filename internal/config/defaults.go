package config

// Default values for configuration options. These are layer 0 of the
// override chain and work without any config file except for the endpoint,
// which has no sensible default.
const (
	defaultCallback       = "storixCallback"
	defaultRequestTimeout = "6s"
	defaultUserAgent      = "storix"
	defaultPollInterval   = "30s"
	defaultLocale         = "en"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultListen         = "127.0.0.1:8787"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their
// defaults.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			Callback:       defaultCallback,
			RequestTimeout: defaultRequestTimeout,
			UserAgent:      defaultUserAgent,
		},
		Sync: SyncConfig{
			PollInterval: defaultPollInterval,
			Locale:       defaultLocale,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		API: APIConfig{
			Listen: defaultListen,
		},
	}
}
