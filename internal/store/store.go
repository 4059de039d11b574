package store

import (
	"iter"
	"maps"
	"slices"
	"sync"
)

// TableSnapshot is an immutable view of one table at one version.
type TableSnapshot struct {
	table   Table
	version uint64
	rows    map[string]Record
}

// Table returns the table this snapshot belongs to.
func (s *TableSnapshot) Table() Table { return s.table }

// Version increases on every effective mutation of the table. Two snapshots
// of the same table with equal versions hold identical content.
func (s *TableSnapshot) Version() uint64 { return s.version }

// Len returns the number of records.
func (s *TableSnapshot) Len() int { return len(s.rows) }

// Get looks up a record by id.
func (s *TableSnapshot) Get(id string) (Record, bool) {
	r, ok := s.rows[id]
	return r, ok
}

// All iterates records in unspecified order.
func (s *TableSnapshot) All() iter.Seq2[string, Record] {
	return maps.All(s.rows)
}

// IDs returns every record id in ascending order.
func (s *TableSnapshot) IDs() []string {
	return slices.Sorted(maps.Keys(s.rows))
}

// Store is the process-wide entity store. It is safe for concurrent use;
// writers serialize on an internal lock and readers take snapshots.
type Store struct {
	mu     sync.RWMutex
	tables map[Table]*TableSnapshot
}

// New returns a store with every known table present and empty.
func New() *Store {
	s := &Store{tables: make(map[Table]*TableSnapshot, len(allTables))}
	for _, t := range allTables {
		s.tables[t] = &TableSnapshot{table: t, rows: map[string]Record{}}
	}

	return s
}

// Snapshot returns the current immutable contents of table t.
func (s *Store) Snapshot(t Table) (*TableSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.tables[t]
	if !ok {
		return nil, &UnknownTableError{Name: string(t)}
	}

	return snap, nil
}

// Snapshots returns the current contents of several tables taken under one
// read lock, so the versions are mutually consistent.
func (s *Store) Snapshots(tables ...Table) (map[Table]*TableSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Table]*TableSnapshot, len(tables))

	for _, t := range tables {
		snap, ok := s.tables[t]
		if !ok {
			return nil, &UnknownTableError{Name: string(t)}
		}

		out[t] = snap
	}

	return out, nil
}

// Counts returns the number of records per table.
func (s *Store) Counts() map[Table]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Table]int, len(s.tables))
	for t, snap := range s.tables {
		out[t] = len(snap.rows)
	}

	return out
}

// SetTable replaces the whole content of table t with rows.
func (s *Store) SetTable(t Table, rows []Record) error {
	return s.MergeChanges(t, rows, true)
}

// MergeChanges applies rows to table t. With fullRefresh the table ends up
// holding exactly rows. Without it each row is upserted by id and records
// absent from rows are left alone: absence never means deletion here.
//
// Rows are validated before anything is applied, so a call either takes
// effect completely or not at all. Duplicate ids within rows resolve to the
// last occurrence.
func (s *Store) MergeChanges(t Table, rows []Record, fullRefresh bool) error {
	if !t.Valid() {
		return &UnknownTableError{Name: string(t)}
	}

	if !fullRefresh && len(rows) == 0 {
		return nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		id := r.ID()
		if id == "" {
			return ErrMissingID
		}

		ids[i] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.tables[t]

	var next map[string]Record
	if fullRefresh {
		next = make(map[string]Record, len(rows))
	} else {
		next = maps.Clone(cur.rows)
	}

	for i, r := range rows {
		next[ids[i]] = r.Clone()
	}

	s.tables[t] = &TableSnapshot{table: t, version: cur.version + 1, rows: next}

	return nil
}

// RemoveRecord deletes one record. Removing an absent id is a no-op and
// leaves the table version unchanged.
func (s *Store) RemoveRecord(t Table, id string) error {
	if !t.Valid() {
		return &UnknownTableError{Name: string(t)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.tables[t]
	if _, ok := cur.rows[id]; !ok {
		return nil
	}

	next := maps.Clone(cur.rows)
	delete(next, id)

	s.tables[t] = &TableSnapshot{table: t, version: cur.version + 1, rows: next}

	return nil
}
