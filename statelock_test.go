package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockState_RecordsPID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.db.pid")

	l, err := lockState(path)
	require.NoError(t, err)

	defer l.Release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLockState_SecondAcquireFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.db.pid")

	first, err := lockState(path)
	require.NoError(t, err)

	defer first.Release()

	second, err := lockState(path)
	require.ErrorIs(t, err, errLocked)
	assert.Nil(t, second)
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getpid()))
}

func TestLockState_ReleaseFreesLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "state.db.pid")

	l, err := lockState(path)
	require.NoError(t, err)

	l.Release()
	l.Release()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	again, err := lockState(path)
	require.NoError(t, err)
	again.Release()
}

func TestLockState_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := lockState("")
	require.Error(t, err)
}

func TestLockHolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, ok := lockHolder(filepath.Join(dir, "absent.pid"))
	assert.False(t, ok)

	stale := filepath.Join(dir, "stale.pid")
	require.NoError(t, os.WriteFile(stale, []byte("12345\n"), 0o600))

	_, ok = lockHolder(stale)
	assert.False(t, ok, "nobody holds a leftover file")

	path := filepath.Join(dir, "state.db.pid")
	l, err := lockState(path)
	require.NoError(t, err)

	defer l.Release()

	pid, ok := lockHolder(path)
	assert.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLockPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/data/state.db.pid", lockPath("/data/state.db"))
}
