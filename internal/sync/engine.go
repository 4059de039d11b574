// Package sync keeps the entity store consistent with the remote system of
// record. It runs full and delta syncs, applies local writes optimistically,
// and replays them from a durable ledger until the remote acknowledges them.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/praneth2580/storix/internal/remote"
	"github.com/praneth2580/storix/internal/store"
)

// ErrSyncInProgress is returned when a full or delta sync is requested while
// another one is running.
var ErrSyncInProgress = errors.New("sync: sync already in progress")

// Remote is the backend contract the engine drives. Satisfied by
// *remote.Client.
type Remote interface {
	SyncAll(ctx context.Context) (*remote.Snapshot, error)
	SyncChanges(ctx context.Context, since string) (*remote.Changes, error)
	Create(ctx context.Context, sheet string, data store.Record) (*remote.WriteResult, error)
	Update(ctx context.Context, sheet, id string, data store.Record) (*remote.WriteResult, error)
	Delete(ctx context.Context, sheet, id string) (*remote.WriteResult, error)
	Settings(ctx context.Context) (map[string]any, error)
}

// SyncMode tells which flow produced a Report.
type SyncMode string

// Sync modes.
const (
	ModeFull  SyncMode = "full"
	ModeDelta SyncMode = "delta"
)

// Report summarizes one full or delta sync.
type Report struct {
	Mode        SyncMode
	Now         string
	Rows        map[store.Table]int // rows received per applied table
	FullRefresh []store.Table       // tables replaced wholesale
	Ignored     []string            // payload keys naming no known table
	Duration    time.Duration
}

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Store  *store.Store
	Remote Remote   // satisfied by *remote.Client
	State  *StateDB // pending-mutation ledger and watermarks
	Logger *slog.Logger
}

// Engine orchestrates full sync, delta sync, and the pending-write queue
// against one entity store.
type Engine struct {
	store   *store.Store
	remote  Remote
	state   *StateDB
	ledger  *Ledger
	logger  *slog.Logger
	nowFunc func() time.Time
	newID   func() string

	syncing atomic.Bool

	mu       stdsync.RWMutex
	lastSync string
	settings map[string]any

	// passMu serializes flush passes. flushing/flushAgain coalesce
	// background triggers into at most one follow-up pass.
	passMu     stdsync.Mutex
	flushMu    stdsync.Mutex
	flushing   bool
	flushAgain bool
	flushWG    stdsync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewEngine creates an Engine. The store, remote, and state database are
// owned by the caller.
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		store:    cfg.Store,
		remote:   cfg.Remote,
		state:    cfg.State,
		ledger:   NewLedger(cfg.State, logger),
		logger:   logger,
		nowFunc:  time.Now,
		newID:    uuid.NewString,
		settings: map[string]any{},
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Close stops background flushes and waits for a running one to return.
func (e *Engine) Close() {
	e.cancel()
	e.flushWG.Wait()
}

// LastSync returns the remote time of the latest successful sync in this
// process, or "" before the first one.
func (e *Engine) LastSync() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.lastSync
}

// Settings returns the last fetched remote settings.
func (e *Engine) Settings() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return maps.Clone(e.settings)
}

// FetchSettings reads the remote Settings sheet and caches it.
func (e *Engine) FetchSettings(ctx context.Context) (map[string]any, error) {
	settings, err := e.remote.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: fetching settings: %w", err)
	}

	e.mu.Lock()
	e.settings = settings
	e.mu.Unlock()

	e.logger.Debug("settings fetched", slog.Int("keys", len(settings)))

	return maps.Clone(settings), nil
}

// SyncAll replaces every table the remote returns with its full content.
// The payload is validated before the first table is touched, so a failed
// sync leaves the store as it was.
func (e *Engine) SyncAll(ctx context.Context) (*Report, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.syncing.Store(false)

	return e.syncAll(ctx)
}

func (e *Engine) syncAll(ctx context.Context) (*Report, error) {
	start := e.nowFunc()

	snap, err := e.remote.SyncAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: full sync: %w", err)
	}

	tables := slices.Sorted(maps.Keys(snap.Tables))
	for _, t := range tables {
		if err := checkIDs(t, snap.Tables[t]); err != nil {
			return nil, fmt.Errorf("sync: full sync: %w", err)
		}
	}

	report := &Report{
		Mode:    ModeFull,
		Now:     snap.Now,
		Rows:    make(map[store.Table]int, len(tables)),
		Ignored: snap.Ignored,
	}

	for _, t := range tables {
		if err := e.store.SetTable(t, snap.Tables[t]); err != nil {
			return nil, fmt.Errorf("sync: full sync: applying %s: %w", t, err)
		}

		report.Rows[t] = len(snap.Tables[t])
		report.FullRefresh = append(report.FullRefresh, t)
	}

	for _, key := range snap.Ignored {
		e.logger.Warn("ignoring unknown table in snapshot", slog.String("key", key))
	}

	e.reapplyPending(ctx, tables)
	e.setLastSync(snap.Now)

	if err := e.state.SaveWatermarks(ctx, snap.Watermarks, snap.Now); err != nil {
		e.logger.Warn("could not persist watermarks", slog.String("error", err.Error()))
	}

	e.persistLastSync(ctx, snap.Now)

	report.Duration = e.nowFunc().Sub(start)

	e.logger.Info("full sync complete",
		slog.Int("tables", len(tables)),
		slog.String("now", snap.Now),
		slog.Duration("duration", report.Duration),
	)

	return report, nil
}

// SyncChanges fetches and merges what changed since the last sync. Without
// a previous sync in this process it performs a full sync instead.
func (e *Engine) SyncChanges(ctx context.Context) (*Report, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.syncing.Store(false)

	since := e.LastSync()
	if since == "" {
		e.logger.Info("no previous sync, running full sync")
		return e.syncAll(ctx)
	}

	start := e.nowFunc()

	changes, err := e.remote.SyncChanges(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("sync: delta sync: %w", err)
	}

	tables := slices.Sorted(maps.Keys(changes.Tables))
	for _, t := range tables {
		if err := checkIDs(t, changes.Tables[t].Rows); err != nil {
			return nil, fmt.Errorf("sync: delta sync: %w", err)
		}
	}

	report := &Report{
		Mode:    ModeDelta,
		Now:     changes.Now,
		Rows:    make(map[store.Table]int, len(tables)),
		Ignored: changes.Ignored,
	}

	for _, t := range tables {
		ch := changes.Tables[t]
		if err := e.store.MergeChanges(t, ch.Rows, ch.FullRefresh); err != nil {
			return nil, fmt.Errorf("sync: delta sync: applying %s: %w", t, err)
		}

		report.Rows[t] = len(ch.Rows)
		if ch.FullRefresh {
			report.FullRefresh = append(report.FullRefresh, t)
		}
	}

	for _, key := range changes.Ignored {
		e.logger.Warn("ignoring unknown table in changes", slog.String("key", key))
	}

	if len(report.FullRefresh) > 0 {
		e.reapplyPending(ctx, report.FullRefresh)
	}

	e.setLastSync(changes.Now)

	if len(tables) > 0 {
		names := make([]string, len(tables))
		for i, t := range tables {
			names[i] = string(t)
		}

		if err := e.state.TouchWatermarks(ctx, names, changes.Now); err != nil {
			e.logger.Warn("could not persist watermarks", slog.String("error", err.Error()))
		}
	}

	e.persistLastSync(ctx, changes.Now)

	report.Duration = e.nowFunc().Sub(start)

	e.logger.Debug("delta sync complete",
		slog.Int("tables", len(tables)),
		slog.String("since", since),
		slog.String("now", changes.Now),
	)

	return report, nil
}

func (e *Engine) setLastSync(now string) {
	e.mu.Lock()
	e.lastSync = now
	e.mu.Unlock()
}

func (e *Engine) persistLastSync(ctx context.Context, now string) {
	if err := e.state.SetLastSync(ctx, now); err != nil {
		e.logger.Warn("could not persist last sync", slog.String("error", err.Error()))
	}
}

// reapplyPending lays unacknowledged local writes back over tables that a
// refresh just replaced, so optimistic state survives until the remote
// confirms or rejects it.
func (e *Engine) reapplyPending(ctx context.Context, tables []store.Table) {
	pending, err := e.ledger.List(ctx)
	if err != nil {
		e.logger.Warn("could not load pending mutations", slog.String("error", err.Error()))
		return
	}

	for i := range pending {
		m := &pending[i]
		if !slices.Contains(tables, m.Table) {
			continue
		}

		if err := m.apply(e.store); err != nil {
			e.logger.Warn("could not reapply pending mutation",
				slog.Int64("seq", m.Seq),
				slog.String("error", err.Error()),
			)
		}
	}
}

// checkIDs rejects a batch in which any row lacks an id.
func checkIDs(t store.Table, rows []store.Record) error {
	for i, r := range rows {
		if r.ID() == "" {
			return fmt.Errorf("%s row %d: %w", t, i, store.ErrMissingID)
		}
	}

	return nil
}
