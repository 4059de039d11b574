package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvEndpoint, "https://example.com/exec")
	t.Setenv(EnvStateDB, "/tmp/state.db")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "https://example.com/exec", overrides.Endpoint)
	assert.Equal(t, "/tmp/state.db", overrides.DBPath)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvEndpoint, "")
	t.Setenv(EnvStateDB, "")

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}

func TestLoadDotEnv_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storix.env")
	require.NoError(t, os.WriteFile(path, []byte("STORIX_ENDPOINT=https://dotenv.example.com/exec\n"), 0o600))

	t.Setenv(EnvDotEnv, path)
	t.Setenv(EnvEndpoint, "")
	require.NoError(t, os.Unsetenv(EnvEndpoint))

	require.NoError(t, LoadDotEnv())
	assert.Equal(t, "https://dotenv.example.com/exec", ReadEnvOverrides().Endpoint)
}

func TestLoadDotEnv_ExistingVariableWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storix.env")
	require.NoError(t, os.WriteFile(path, []byte("STORIX_STATE_DB=/from/dotenv.db\n"), 0o600))

	t.Setenv(EnvDotEnv, path)
	t.Setenv(EnvStateDB, "/from/shell.db")

	require.NoError(t, LoadDotEnv())
	assert.Equal(t, "/from/shell.db", ReadEnvOverrides().DBPath)
}

func TestLoadDotEnv_MissingExplicitFile(t *testing.T) {
	t.Setenv(EnvDotEnv, filepath.Join(t.TempDir(), "absent.env"))

	err := LoadDotEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading env file")
}

func TestLoadDotEnv_MissingDefaultFile(t *testing.T) {
	t.Setenv(EnvDotEnv, "")
	t.Chdir(t.TempDir())

	assert.NoError(t, LoadDotEnv())
}
