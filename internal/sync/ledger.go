package sync

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/praneth2580/storix/internal/store"
)

// Ledger persists pending mutations in the pending_mutations table. Rows are
// replayed in seq order and removed only once the remote acknowledged them.
// A rejected replay stays in the ledger with its attempt count and last
// error until it succeeds or an operator discards it.
type Ledger struct {
	db      *sqlx.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// ErrMutationNotFound is returned by Discard for an unknown sequence number.
var ErrMutationNotFound = errors.New("sync: pending mutation not found")

// mutationRow mirrors one pending_mutations row.
type mutationRow struct {
	Seq       int64          `db:"seq"`
	Action    string         `db:"action"`
	Table     string         `db:"table_name"`
	RecordID  string         `db:"record_id"`
	Data      sql.NullString `db:"data"`
	Attempts  int            `db:"attempts"`
	LastError sql.NullString `db:"last_error"`
	CreatedAt int64          `db:"created_at"`
	UpdatedAt int64          `db:"updated_at"`
}

const sqlSelectMutations = `SELECT seq, action, table_name, record_id, data,
	attempts, last_error, created_at, updated_at
	FROM pending_mutations ORDER BY seq`

// NewLedger creates a Ledger on the state database.
func NewLedger(state *StateDB, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{db: state.db, logger: logger, nowFunc: time.Now}
}

// Append stores m at the tail of the queue and returns its sequence number.
func (l *Ledger) Append(ctx context.Context, m Mutation) (int64, error) {
	row := mutationRow{
		Action:    string(m.Action),
		Table:     string(m.Table),
		RecordID:  m.ID,
		CreatedAt: l.nowFunc().UnixNano(),
	}
	row.UpdatedAt = row.CreatedAt

	if m.Data != nil {
		b, err := json.Marshal(m.Data)
		if err != nil {
			return 0, fmt.Errorf("sync: encoding %s %s/%s: %w", m.Action, m.Table, m.ID, err)
		}

		row.Data = sql.NullString{String: string(b), Valid: true}
	}

	res, err := l.db.NamedExecContext(ctx,
		`INSERT INTO pending_mutations
			(action, table_name, record_id, data, attempts, created_at, updated_at)
			VALUES (:action, :table_name, :record_id, :data, 0, :created_at, :updated_at)`, row)
	if err != nil {
		return 0, fmt.Errorf("sync: ledger append %s %s/%s: %w", m.Action, m.Table, m.ID, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sync: ledger last insert id: %w", err)
	}

	l.logger.Debug("mutation queued",
		slog.Int64("seq", seq),
		slog.String("action", string(m.Action)),
		slog.String("table", string(m.Table)),
		slog.String("id", m.ID),
	)

	return seq, nil
}

// List returns every pending mutation, oldest first.
func (l *Ledger) List(ctx context.Context) ([]Mutation, error) {
	var rows []mutationRow
	if err := l.db.SelectContext(ctx, &rows, sqlSelectMutations); err != nil {
		return nil, fmt.Errorf("sync: ledger list: %w", err)
	}

	out := make([]Mutation, 0, len(rows))

	for i := range rows {
		m, err := rows[i].mutation()
		if err != nil {
			return nil, err
		}

		out = append(out, m)
	}

	return out, nil
}

// Count returns the number of pending mutations.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.GetContext(ctx, &n, `SELECT count(*) FROM pending_mutations`); err != nil {
		return 0, fmt.Errorf("sync: ledger count: %w", err)
	}

	return n, nil
}

// Complete removes an acknowledged mutation.
func (l *Ledger) Complete(ctx context.Context, seq int64) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("sync: ledger complete %d: %w", seq, err)
	}

	return nil
}

// Fail keeps a rejected mutation queued, bumping its attempt count and
// recording why. Returns the new attempt count.
func (l *Ledger) Fail(ctx context.Context, seq int64, reason string) (int, error) {
	var attempts int

	err := l.db.GetContext(ctx, &attempts,
		`UPDATE pending_mutations
			SET attempts = attempts + 1, last_error = ?, updated_at = ?
			WHERE seq = ?
			RETURNING attempts`, reason, l.nowFunc().UnixNano(), seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d", ErrMutationNotFound, seq)
	}

	if err != nil {
		return 0, fmt.Errorf("sync: ledger fail %d: %w", seq, err)
	}

	return attempts, nil
}

// Discard drops a mutation without replaying it.
func (l *Ledger) Discard(ctx context.Context, seq int64) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("sync: ledger discard %d: %w", seq, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sync: ledger discard %d rows affected: %w", seq, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %d", ErrMutationNotFound, seq)
	}

	l.logger.Info("pending mutation discarded", slog.Int64("seq", seq))

	return nil
}

func (r *mutationRow) mutation() (Mutation, error) {
	m := Mutation{
		Seq:       r.Seq,
		Action:    Action(r.Action),
		Table:     store.Table(r.Table),
		ID:        r.RecordID,
		Attempts:  r.Attempts,
		LastError: r.LastError.String,
		CreatedAt: time.Unix(0, r.CreatedAt),
		UpdatedAt: time.Unix(0, r.UpdatedAt),
	}

	if r.Data.Valid {
		dec := json.NewDecoder(bytes.NewReader([]byte(r.Data.String)))
		dec.UseNumber()

		if err := dec.Decode(&m.Data); err != nil {
			return Mutation{}, fmt.Errorf("sync: decoding pending mutation %d: %w", r.Seq, err)
		}
	}

	return m, nil
}
