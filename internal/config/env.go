package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig   = "STORIX_CONFIG"
	EnvEndpoint = "STORIX_ENDPOINT"
	EnvStateDB  = "STORIX_STATE_DB"
	EnvDotEnv   = "STORIX_ENV_FILE"
)

// defaultDotEnv is read from the working directory when EnvDotEnv is unset.
const defaultDotEnv = ".env"

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // STORIX_CONFIG
	Endpoint   string // STORIX_ENDPOINT
	DBPath     string // STORIX_STATE_DB
}

// LoadDotEnv seeds the process environment from a .env file. Variables that
// are already set win over the file. A missing default file is not an
// error; a missing file named explicitly through STORIX_ENV_FILE is.
func LoadDotEnv() error {
	path := os.Getenv(EnvDotEnv)
	explicit := path != ""

	if !explicit {
		path = defaultDotEnv
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("config: loading env file %s: %w", path, err)
	}

	return nil
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Endpoint:   os.Getenv(EnvEndpoint),
		DBPath:     os.Getenv(EnvStateDB),
	}
}
