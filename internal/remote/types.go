package remote

import (
	"github.com/praneth2580/storix/internal/store"
)

// Remote action names.
const (
	actionSyncAll     = "syncAll"
	actionSyncChanges = "syncChanges"
	actionGet         = "get"
	actionCreate      = "create"
	actionUpdate      = "update"
	actionDelete      = "delete"
)

// Reserved keys in sync payloads.
const (
	keyMeta    = "__meta__"
	keyNow     = "now"
	keySince   = "since"
	keyChanges = "changes"
	keyError   = "error"
)

// SettingsSheet holds auxiliary key/value configuration kept by the remote.
const SettingsSheet = "Settings"

// Snapshot is the decoded reply of a full sync.
type Snapshot struct {
	Tables     map[store.Table][]store.Record
	Watermarks map[string]string // table → remote last-modified timestamp
	Now        string
	Ignored    []string // payload keys that name no known table
}

// TableChange is one table's entry in a delta reply. FullRefresh means the
// remote could not tell which rows changed (a delete or reorder happened),
// so Rows is the complete table.
type TableChange struct {
	FullRefresh bool
	Rows        []store.Record
}

// Changes is the decoded reply of a delta sync. Tables whose watermark did
// not advance are absent.
type Changes struct {
	Since   string
	Now     string
	Tables  map[store.Table]TableChange
	Ignored []string
}

// WriteResult is the acknowledgment of a create, update, or delete.
type WriteResult struct {
	Status string
	ID     string
	Sheet  string
}
