package sync

import (
	"time"

	"github.com/praneth2580/storix/internal/store"
)

// Action is the kind of write a pending mutation replays.
type Action string

// Mutation actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Mutation is a locally applied write waiting for remote acknowledgment.
// Data holds the full row for creates and the changed fields for updates.
type Mutation struct {
	Seq       int64        `json:"seq"`
	Action    Action       `json:"action"`
	Table     store.Table  `json:"table"`
	ID        string       `json:"id"`
	Data      store.Record `json:"data,omitempty"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"lastError,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// recordKey identifies the record a mutation targets.
func (m *Mutation) recordKey() string {
	return string(m.Table) + "/" + m.ID
}

// apply replays m onto st. Every action is idempotent at the store layer,
// so re-applying after a refresh converges to the same content.
func (m *Mutation) apply(st *store.Store) error {
	switch m.Action {
	case ActionCreate:
		return st.MergeChanges(m.Table, []store.Record{m.Data}, false)
	case ActionUpdate:
		snap, err := st.Snapshot(m.Table)
		if err != nil {
			return err
		}

		// An absent record is upserted from the changed fields alone.
		cur, _ := snap.Get(m.ID)

		next := cur.Merge(m.Data)
		next[store.FieldID] = m.ID

		return st.MergeChanges(m.Table, []store.Record{next}, false)
	case ActionDelete:
		return st.RemoveRecord(m.Table, m.ID)
	default:
		return nil
	}
}
