package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praneth2580/storix/internal/store"
	"github.com/praneth2580/storix/internal/sync"
)

func TestNewSyncSummary(t *testing.T) {
	t.Parallel()

	report := &sync.Report{
		Mode:    sync.ModeFull,
		Now:     "2024-05-01T00:00:00Z",
		Rows:    map[store.Table]int{store.Products: 3, store.Stock: 7},
		Ignored: []string{"Archive"},
	}

	summary := newSyncSummary(report, &sync.FlushReport{Sent: 2, Rejected: 1, Held: 1, Remaining: 2})

	assert.Equal(t, syncSummary{
		Now:       "2024-05-01T00:00:00Z",
		Rows:      map[string]int{"Products": 3, "Stock": 7},
		Ignored:   []string{"Archive"},
		Sent:      2,
		Rejected:  1,
		Held:      1,
		Remaining: 2,
	}, summary)
}

func TestNewSyncSummary_NilFlush(t *testing.T) {
	t.Parallel()

	summary := newSyncSummary(&sync.Report{Rows: map[store.Table]int{}}, nil)
	assert.Zero(t, summary.Sent)
	assert.Empty(t, summary.Rows)
}

func TestParseTableArg(t *testing.T) {
	t.Parallel()

	table, err := parseTableArg("StockMovements")
	require.NoError(t, err)
	assert.Equal(t, store.StockMovements, table)

	_, err = parseTableArg("products")
	require.ErrorIs(t, err, store.ErrUnknownTable)
}
