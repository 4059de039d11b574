package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/language"

	"github.com/praneth2580/storix/internal/join"
	"github.com/praneth2580/storix/internal/remote"
	"github.com/praneth2580/storix/internal/store"
	"github.com/praneth2580/storix/internal/sync"
	"github.com/praneth2580/storix/internal/transport"
)

// stateDirPermissions restricts the data directory to the owner.
const stateDirPermissions = 0o700

// session wires one process's store, transport, sync engine, and views.
// Commands that change the ledger hold the state lock for its lifetime.
type session struct {
	store  *store.Store
	queue  *transport.Queue
	state  *sync.StateDB
	engine *sync.Engine
	views  *join.Engine
	logger *slog.Logger

	lock *stateLock
}

// openSession takes the state lock, opens the state database, and builds
// the engines. Close releases everything in reverse order.
func openSession(ctx context.Context, cc *CLIContext) (*session, error) {
	cfg := cc.Cfg
	if err := cfg.RequireEndpoint(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), stateDirPermissions); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	lock, err := lockState(lockPath(cfg.DBPath))
	if err != nil {
		return nil, err
	}

	state, err := sync.OpenState(ctx, cfg.DBPath, cc.Logger)
	if err != nil {
		lock.Release()
		return nil, err
	}

	fetcher := transport.NewHTTPFetcher(cfg.Endpoint, defaultHTTPClient(), cfg.UserAgent)
	queue := transport.NewQueue(fetcher, transport.QueueConfig{
		Callback: cfg.Callback,
		Timeout:  cfg.RequestTimeout,
		Logger:   cc.Logger,
	})

	st := store.New()
	engine := sync.NewEngine(&sync.EngineConfig{
		Store:  st,
		Remote: remote.NewClient(queue, cc.Logger),
		State:  state,
		Logger: cc.Logger,
	})

	lang, err := language.Parse(cfg.Locale)
	if err != nil {
		lang = language.Und
	}

	return &session{
		store:  st,
		queue:  queue,
		state:  state,
		engine: engine,
		views:  join.NewEngine(st, lang, cc.Logger),
		logger: cc.Logger,
		lock:   lock,
	}, nil
}

// Close stops background flushes, drains the transport, and releases the
// state database and lock.
func (s *session) Close() error {
	s.engine.Close()
	s.queue.Close()

	err := s.state.Close()
	s.lock.Release()

	return err
}

// openStateReadOnly opens the state database for inspection without taking
// the lock. SQLite's busy timeout covers a concurrent writer.
func openStateReadOnly(ctx context.Context, cc *CLIContext) (*sync.StateDB, error) {
	if _, err := os.Stat(cc.Cfg.DBPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no state database at %s, run 'storix sync' first", cc.Cfg.DBPath)
	}

	return sync.OpenState(ctx, cc.Cfg.DBPath, cc.Logger)
}
