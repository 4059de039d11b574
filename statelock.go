package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// errLocked is returned by lockState when another process holds the lock.
var errLocked = errors.New("state database is in use by another storix process")

// stateLock is an exclusive flock on "<db>.pid". Only its holder replays
// the pending-write ledger. The file carries the holder's PID for status.
type stateLock struct {
	path string
	f    *os.File
}

// lockPath is the lock file guarding the state database at dbPath.
func lockPath(dbPath string) string {
	return dbPath + ".pid"
}

// lockState acquires the lock at path without blocking.
func lockState(path string) (*stateLock, error) {
	if path == "" {
		return nil, errors.New("lock path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		if pid, ok := lockHolder(path); ok {
			return nil, fmt.Errorf("%w (PID %d)", errLocked, pid)
		}

		return nil, fmt.Errorf("%w (%s)", errLocked, path)
	}

	l := &stateLock{path: path, f: f}

	if err := l.stamp(); err != nil {
		l.Release()
		return nil, err
	}

	return l, nil
}

func (l *stateLock) stamp() error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncating lock file: %w", err)
	}

	if _, err := l.f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}

	return nil
}

// Release removes the lock file and drops the lock. Safe to call twice.
func (l *stateLock) Release() {
	if l == nil || l.f == nil {
		return
	}

	os.Remove(l.path)
	l.f.Close()
	l.f = nil
}

// lockHolder reports the PID recorded in the lock file at path when some
// process currently holds the lock. A leftover file nobody locks reports
// false.
func lockHolder(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return 0, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}

	return pid, true
}
