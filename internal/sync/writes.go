package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/praneth2580/storix/internal/remote"
	"github.com/praneth2580/storix/internal/store"
)

// attemptsWarnThreshold is the attempt count at which a rejected mutation
// is reported at warn level.
const attemptsWarnThreshold = 3

// FlushReport summarizes one pass over the pending queue.
type FlushReport struct {
	Sent      int // acknowledged and removed
	Rejected  int // remote refused; kept for inspection
	Held      int // skipped behind an earlier rejected write to the same record
	Remaining int // still queued after the pass
}

// CreateItem stores data in table t right away and queues the create for
// the remote. A missing id is filled with a fresh UUID. Returns the id.
func (e *Engine) CreateItem(ctx context.Context, t store.Table, data store.Record) (string, error) {
	if !t.Valid() {
		return "", &store.UnknownTableError{Name: string(t)}
	}

	row := data.Clone()
	if row == nil {
		row = store.Record{}
	}

	id := row.ID()
	if id == "" {
		id = e.newID()
	}

	row[store.FieldID] = id

	m := Mutation{Action: ActionCreate, Table: t, ID: id, Data: row}
	if err := e.enqueue(ctx, &m); err != nil {
		return "", err
	}

	return id, nil
}

// UpdateItem merges fields over record id of table t right away and queues
// the update for the remote. A record the store does not hold yet is
// upserted as {id, fields...}; the remote decides whether it exists.
func (e *Engine) UpdateItem(ctx context.Context, t store.Table, id string, fields store.Record) error {
	if !t.Valid() {
		return &store.UnknownTableError{Name: string(t)}
	}

	if id == "" {
		return store.ErrMissingID
	}

	changes := fields.Clone()
	delete(changes, store.FieldID)

	m := Mutation{Action: ActionUpdate, Table: t, ID: id, Data: changes}

	return e.enqueue(ctx, &m)
}

// DeleteItem removes record id of table t right away and queues the delete
// for the remote. Deleting an absent record still queues the delete.
func (e *Engine) DeleteItem(ctx context.Context, t store.Table, id string) error {
	if !t.Valid() {
		return &store.UnknownTableError{Name: string(t)}
	}

	if id == "" {
		return store.ErrMissingID
	}

	m := Mutation{Action: ActionDelete, Table: t, ID: id}

	return e.enqueue(ctx, &m)
}

// enqueue persists m, applies it to the store, and schedules a flush.
func (e *Engine) enqueue(ctx context.Context, m *Mutation) error {
	seq, err := e.ledger.Append(ctx, *m)
	if err != nil {
		return err
	}

	m.Seq = seq

	if err := m.apply(e.store); err != nil {
		return fmt.Errorf("sync: applying %s %s/%s: %w", m.Action, m.Table, m.ID, err)
	}

	e.TriggerFlush()

	return nil
}

// Pending lists queued mutations, oldest first.
func (e *Engine) Pending(ctx context.Context) ([]Mutation, error) {
	return e.ledger.List(ctx)
}

// DiscardPending drops a queued mutation without replaying it. The local
// effect stays in the store until the next refresh of its table.
func (e *Engine) DiscardPending(ctx context.Context, seq int64) error {
	return e.ledger.Discard(ctx, seq)
}

// TriggerFlush starts a background flush. A trigger that arrives while a
// flush runs schedules exactly one more pass after it.
func (e *Engine) TriggerFlush() {
	e.flushMu.Lock()
	if e.flushing {
		e.flushAgain = true
		e.flushMu.Unlock()

		return
	}

	e.flushing = true
	e.flushMu.Unlock()

	e.flushWG.Add(1)

	go func() {
		defer e.flushWG.Done()

		for {
			if _, err := e.FlushPending(e.baseCtx); err != nil && e.baseCtx.Err() == nil {
				e.logger.Info("background flush stopped", slog.String("error", err.Error()))
			}

			e.flushMu.Lock()
			if !e.flushAgain || e.baseCtx.Err() != nil {
				e.flushing = false
				e.flushMu.Unlock()

				return
			}

			e.flushAgain = false
			e.flushMu.Unlock()
		}
	}()
}

// WaitFlush blocks until background flushes started by TriggerFlush have
// finished, including any follow-up pass they scheduled.
func (e *Engine) WaitFlush() {
	e.flushWG.Wait()
}

// FlushPending replays the queue in order. An acknowledged write is
// removed. A write the remote rejects stays queued with its error, and
// later writes to the same record wait for the next pass so per-record
// order holds. A transport failure ends the pass with everything from that
// point still queued.
func (e *Engine) FlushPending(ctx context.Context) (*FlushReport, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	pending, err := e.ledger.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &FlushReport{}
	held := make(map[string]bool)

	for i := range pending {
		m := &pending[i]

		if held[m.recordKey()] {
			report.Held++
			continue
		}

		res, err := e.replay(ctx, m)
		if err == nil {
			if err := e.ledger.Complete(ctx, m.Seq); err != nil {
				report.Remaining = len(pending) - report.Sent
				return report, err
			}

			report.Sent++

			e.logger.Debug("mutation acknowledged",
				slog.Int64("seq", m.Seq),
				slog.String("action", string(m.Action)),
				slog.String("table", string(m.Table)),
				slog.String("id", m.ID),
				slog.String("status", res.Status),
			)

			continue
		}

		var logicErr *remote.LogicError
		if !errors.As(err, &logicErr) {
			report.Remaining = len(pending) - report.Sent

			return report, fmt.Errorf("sync: flushing mutation %d: %w", m.Seq, err)
		}

		attempts, failErr := e.ledger.Fail(ctx, m.Seq, logicErr.Message)
		if failErr != nil {
			report.Remaining = len(pending) - report.Sent
			return report, failErr
		}

		report.Rejected++
		held[m.recordKey()] = true

		level := slog.LevelInfo
		if attempts >= attemptsWarnThreshold {
			level = slog.LevelWarn
		}

		e.logger.Log(ctx, level, "remote rejected mutation",
			slog.Int64("seq", m.Seq),
			slog.String("action", string(m.Action)),
			slog.String("table", string(m.Table)),
			slog.String("id", m.ID),
			slog.Int("attempts", attempts),
			slog.String("error", logicErr.Message),
		)
	}

	report.Remaining = len(pending) - report.Sent

	return report, nil
}

func (e *Engine) replay(ctx context.Context, m *Mutation) (*remote.WriteResult, error) {
	sheet := string(m.Table)

	switch m.Action {
	case ActionCreate:
		return e.remote.Create(ctx, sheet, m.Data)
	case ActionUpdate:
		return e.remote.Update(ctx, sheet, m.ID, m.Data)
	case ActionDelete:
		return e.remote.Delete(ctx, sheet, m.ID)
	default:
		return nil, fmt.Errorf("sync: unknown mutation action %q", m.Action)
	}
}
