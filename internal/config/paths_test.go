package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHome = "/home/testuser"

func TestDefaultConfigDir_NonEmpty(t *testing.T) {
	dir := DefaultConfigDir()
	assert.NotEmpty(t, dir)
	assert.Contains(t, dir, appName)
}

func TestDefaultDataDir_NonEmpty(t *testing.T) {
	dir := DefaultDataDir()
	assert.NotEmpty(t, dir)
	assert.Contains(t, dir, appName)
}

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	assert.True(t, strings.HasSuffix(path, configFileName))
}

func TestDefaultStatePath_InDataDir(t *testing.T) {
	assert.Equal(t, filepath.Join(DefaultDataDir(), stateFileName), DefaultStatePath())
}

func TestDefaultConfigDir_MacOS(t *testing.T) {
	if runtime.GOOS != platformDarwin {
		t.Skip("macOS-only test")
	}

	assert.Contains(t, DefaultConfigDir(), "Library/Application Support")
}

func TestXDGDir_Override(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	assert.Equal(t, filepath.Join("/custom/config", appName), xdgDir("XDG_CONFIG_HOME", testHome, ".config"))
}

func TestXDGDir_DefaultFallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	os.Unsetenv("XDG_DATA_HOME")

	assert.Equal(t, filepath.Join(testHome, ".local", "share", appName),
		xdgDir("XDG_DATA_HOME", testHome, ".local", "share"))
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "state.db"), expandTilde("~/state.db"))
	assert.Equal(t, home, expandTilde("~"))
	assert.Equal(t, "/abs/state.db", expandTilde("/abs/state.db"))
	assert.Equal(t, "~other/x", expandTilde("~other/x"))
}
