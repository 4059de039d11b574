package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(t *testing.T, s *Store, table Table) []string {
	t.Helper()

	snap, err := s.Snapshot(table)
	require.NoError(t, err)

	return snap.IDs()
}

func TestNew_AllTablesEmpty(t *testing.T) {
	t.Parallel()

	s := New()

	for _, table := range Tables() {
		snap, err := s.Snapshot(table)
		require.NoError(t, err)
		assert.Zero(t, snap.Len(), table)
		assert.Zero(t, snap.Version(), table)
	}
}

func TestMergeChanges_Scenario(t *testing.T) {
	t.Parallel()

	s := New()

	require.NoError(t, s.SetTable(Products, []Record{{"id": "1", "name": "Widget"}}))
	require.NoError(t, s.MergeChanges(Products, []Record{{"id": "2", "name": "Gadget"}}, false))

	snap, err := s.Snapshot(Products)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, snap.IDs())

	r, ok := snap.Get("1")
	require.True(t, ok)
	assert.Equal(t, "Widget", r["name"])

	require.NoError(t, s.MergeChanges(Products, []Record{{"id": "1", "name": "Widget2"}}, true))

	snap, err = s.Snapshot(Products)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, snap.IDs())

	r, _ = snap.Get("1")
	assert.Equal(t, "Widget2", r["name"])
}

func TestMergeChanges_PartialNeverDeletes(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.SetTable(Stock, []Record{{"id": "a"}, {"id": "b"}, {"id": "c"}}))

	require.NoError(t, s.MergeChanges(Stock, []Record{{"id": "b", "quantity": 4}, {"id": "d"}}, false))

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(t, s, Stock))
}

func TestMergeChanges_PartialIsIdempotent(t *testing.T) {
	t.Parallel()

	rows := []Record{
		{"id": "1", "name": "Widget", "updatedAt": "2024-02-01T00:00:00Z"},
		{"id": "2", "name": "Gadget"},
	}

	once := New()
	require.NoError(t, once.SetTable(Products, []Record{{"id": "3", "name": "Gizmo"}}))
	require.NoError(t, once.MergeChanges(Products, rows, false))

	twice := New()
	require.NoError(t, twice.SetTable(Products, []Record{{"id": "3", "name": "Gizmo"}}))
	require.NoError(t, twice.MergeChanges(Products, rows, false))
	require.NoError(t, twice.MergeChanges(Products, rows, false))

	a, _ := once.Snapshot(Products)
	b, _ := twice.Snapshot(Products)

	require.Equal(t, a.IDs(), b.IDs())

	for _, id := range a.IDs() {
		ra, _ := a.Get(id)
		rb, _ := b.Get(id)
		assert.Equal(t, ra, rb, id)
	}
}

func TestMergeChanges_FullRefreshExactKeys(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.SetTable(Customers, []Record{{"id": "x"}, {"id": "y"}}))
	require.NoError(t, s.MergeChanges(Customers, []Record{{"id": "y"}, {"id": "z"}}, true))

	assert.Equal(t, []string{"y", "z"}, ids(t, s, Customers))
}

func TestMergeChanges_FullRefreshEmptyClears(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.SetTable(Orders, []Record{{"id": "o1"}}))
	require.NoError(t, s.MergeChanges(Orders, nil, true))

	assert.Empty(t, ids(t, s, Orders))
}

func TestMergeChanges_MissingIDRejectsWholeBatch(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.SetTable(Products, []Record{{"id": "1"}}))

	before, _ := s.Snapshot(Products)

	err := s.MergeChanges(Products, []Record{{"id": "2"}, {"name": "no id"}}, false)
	require.ErrorIs(t, err, ErrMissingID)

	after, _ := s.Snapshot(Products)
	assert.Same(t, before, after)
}

func TestMergeChanges_NumericIDsNormalized(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.SetTable(Products, []Record{{"id": float64(12)}}))

	snap, _ := s.Snapshot(Products)
	_, ok := snap.Get("12")
	assert.True(t, ok)
}

func TestMergeChanges_CallerMutationDoesNotLeak(t *testing.T) {
	t.Parallel()

	s := New()
	row := Record{"id": "1", "name": "Widget"}
	require.NoError(t, s.SetTable(Products, []Record{row}))

	row["name"] = "changed"

	snap, _ := s.Snapshot(Products)
	r, _ := snap.Get("1")
	assert.Equal(t, "Widget", r["name"])
}

func TestRemoveRecord(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.SetTable(Stock, []Record{{"id": "s1"}, {"id": "s2"}}))

	require.NoError(t, s.RemoveRecord(Stock, "s1"))
	assert.Equal(t, []string{"s2"}, ids(t, s, Stock))

	before, _ := s.Snapshot(Stock)
	require.NoError(t, s.RemoveRecord(Stock, "missing"))

	after, _ := s.Snapshot(Stock)
	assert.Same(t, before, after, "removing an absent id must not produce a new version")
}

func TestSnapshot_ImmutableAcrossWrites(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.SetTable(Products, []Record{{"id": "1"}}))

	old, _ := s.Snapshot(Products)

	require.NoError(t, s.MergeChanges(Products, []Record{{"id": "2"}}, false))
	require.NoError(t, s.RemoveRecord(Products, "1"))

	assert.Equal(t, []string{"1"}, old.IDs())
	assert.Equal(t, []string{"2"}, ids(t, s, Products))

	cur, _ := s.Snapshot(Products)
	assert.Greater(t, cur.Version(), old.Version())
}

func TestUnknownTable(t *testing.T) {
	t.Parallel()

	s := New()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"merge", func() error { return s.MergeChanges("Widgets", nil, false) }},
		{"set", func() error { return s.SetTable("Widgets", nil) }},
		{"remove", func() error { return s.RemoveRecord("Widgets", "1") }},
		{"snapshot", func() error { _, err := s.Snapshot("Widgets"); return err }},
		{"parse", func() error { _, err := ParseTable("products"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnknownTable)

			var ute *UnknownTableError
			assert.ErrorAs(t, err, &ute)
		})
	}

	_, err := s.Snapshot("Widgets")
	require.Error(t, err)
	assert.Len(t, s.Counts(), len(Tables()), "unknown names must not create tables")
}

func TestRecord_UpdatedAt(t *testing.T) {
	t.Parallel()

	ts, ok := Record{"updatedAt": "2024-02-01T00:00:00Z"}.UpdatedAt()
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())

	_, ok = Record{"updatedAt": "yesterday"}.UpdatedAt()
	assert.False(t, ok)

	_, ok = Record{}.UpdatedAt()
	assert.False(t, ok)
}

func TestSnapshots_ConsistentSet(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.SetTable(Products, []Record{{"id": "p1"}}))

	snaps, err := s.Snapshots(Products, Stock)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, uint64(1), snaps[Products].Version())
	assert.Equal(t, uint64(0), snaps[Stock].Version())

	_, err = s.Snapshots(Products, "Widgets")
	assert.ErrorIs(t, err, ErrUnknownTable)
}
