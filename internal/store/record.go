package store

import (
	"encoding/json"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Well-known record fields. Everything else in a row is opaque to the store.
const (
	FieldID        = "id"
	FieldUpdatedAt = "updatedAt"
)

// Record is a schema-light row decoded from the remote. Only the id and the
// optional updatedAt are interpreted here; joins read foreign keys through
// the String helper.
//
// Records returned from a TableSnapshot are shared with every other reader
// and must be treated as read-only.
type Record map[string]any

// ID returns the record id normalized to a string. The remote is a
// spreadsheet backend, so numeric ids arrive as JSON numbers.
func (r Record) ID() string {
	return r.String(FieldID)
}

// UpdatedAt parses the remote-assigned modification timestamp.
func (r Record) UpdatedAt() (time.Time, bool) {
	raw := r.String(FieldUpdatedAt)
	if raw == "" {
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

// String returns field key rendered as a string. Numbers are formatted
// without exponent so "12" and 12 compare equal as foreign keys. Missing,
// null, and non-scalar values return "".
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Clone returns a shallow copy. Nested values are shared.
func (r Record) Clone() Record {
	return maps.Clone(r)
}

// Merge returns a new record with fields laid over r. Neither input is
// modified.
func (r Record) Merge(fields Record) Record {
	out := make(Record, len(r)+len(fields))
	maps.Copy(out, r)
	maps.Copy(out, fields)

	return out
}
