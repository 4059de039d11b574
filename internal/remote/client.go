package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/praneth2580/storix/internal/store"
	"github.com/praneth2580/storix/internal/transport"
)

// Sender delivers one request and returns the reply payload. Satisfied by
// *transport.Queue.
type Sender interface {
	Send(ctx context.Context, req transport.Request) (json.RawMessage, error)
}

// Client maps the backend contract onto typed calls.
type Client struct {
	sender Sender
	logger *slog.Logger
}

// NewClient creates a Client sending through sender.
func NewClient(sender Sender, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{sender: sender, logger: logger}
}

// SyncAll fetches every table, the per-table watermarks, and the remote
// clock in one call.
func (c *Client) SyncAll(ctx context.Context) (*Snapshot, error) {
	obj, err := c.callObject(ctx, transport.NewRequest(actionSyncAll), "")
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Tables:     make(map[store.Table][]store.Record),
		Watermarks: make(map[string]string),
	}

	if snap.Now, err = stringField(obj, keyNow, actionSyncAll); err != nil {
		return nil, err
	}

	if raw, ok := obj[keyMeta]; ok {
		if snap.Watermarks, err = decodeWatermarks(raw); err != nil {
			return nil, malformed(actionSyncAll, "%s: %v", keyMeta, err)
		}
	}

	for _, key := range slices.Sorted(maps.Keys(obj)) {
		if key == keyMeta || key == keyNow {
			continue
		}

		table, perr := store.ParseTable(key)
		if perr != nil {
			snap.Ignored = append(snap.Ignored, key)
			continue
		}

		var rows []store.Record
		if err := decode(obj[key], &rows); err != nil {
			return nil, malformed(actionSyncAll, "table %s: %v", key, err)
		}

		snap.Tables[table] = rows
	}

	if len(snap.Ignored) > 0 {
		c.logger.Debug("ignoring unknown keys in snapshot", slog.Any("keys", snap.Ignored))
	}

	return snap, nil
}

// SyncChanges fetches the tables whose watermark advanced after since.
func (c *Client) SyncChanges(ctx context.Context, since string) (*Changes, error) {
	req := transport.NewRequest(actionSyncChanges, keySince, since)

	obj, err := c.callObject(ctx, req, "")
	if err != nil {
		return nil, err
	}

	ch := &Changes{Tables: make(map[store.Table]TableChange)}

	if ch.Now, err = stringField(obj, keyNow, actionSyncChanges); err != nil {
		return nil, err
	}

	if raw, ok := obj[keySince]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &ch.Since); err != nil {
			return nil, malformed(actionSyncChanges, "since: %v", err)
		}
	}

	raw, ok := obj[keyChanges]
	if !ok || isNull(raw) {
		return ch, nil
	}

	var tables map[string]struct {
		FullRefresh bool            `json:"fullRefresh"`
		Rows        json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(raw, &tables); err != nil {
		return nil, malformed(actionSyncChanges, "changes: %v", err)
	}

	for _, key := range slices.Sorted(maps.Keys(tables)) {
		table, perr := store.ParseTable(key)
		if perr != nil {
			ch.Ignored = append(ch.Ignored, key)
			continue
		}

		entry := tables[key]

		var rows []store.Record
		if len(entry.Rows) > 0 && !isNull(entry.Rows) {
			if err := decode(entry.Rows, &rows); err != nil {
				return nil, malformed(actionSyncChanges, "table %s: %v", key, err)
			}
		}

		ch.Tables[table] = TableChange{FullRefresh: entry.FullRefresh, Rows: rows}
	}

	return ch, nil
}

// Get reads rows from sheet. A non-empty id selects one row; filters add
// key=value equality constraints. The backend replies with an array, a
// single object, or {} for "nothing"; all three come back as a slice.
func (c *Client) Get(ctx context.Context, sheet, id string, filters map[string]string) ([]store.Record, error) {
	req := transport.NewRequest(actionGet, "sheet", sheet)
	if id != "" {
		req.Params.Set("id", id)
	}

	for k, v := range filters {
		req.Params.Set(k, v)
	}

	payload, err := c.sender.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("remote: get %s: %w", sheet, err)
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []store.Record
		if err := decode(trimmed, &rows); err != nil {
			return nil, malformed(actionGet, "%s: %v", sheet, err)
		}

		return rows, nil
	}

	var row store.Record
	if err := decode(trimmed, &row); err != nil {
		return nil, malformed(actionGet, "%s: %v", sheet, err)
	}

	if msg := row.String(keyError); msg != "" {
		return nil, &LogicError{Action: actionGet, Sheet: sheet, Message: msg}
	}

	if len(row) == 0 {
		return nil, nil
	}

	return []store.Record{row}, nil
}

// Settings reads the Settings sheet into a key → value map. Rows shaped
// {key, value} are folded; a single object is returned as is.
func (c *Client) Settings(ctx context.Context) (map[string]any, error) {
	rows, err := c.Get(ctx, SettingsSheet, "", nil)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any)

	for _, r := range rows {
		if key := r.String("key"); key != "" {
			out[key] = r["value"]
			continue
		}

		maps.Copy(out, r)
	}

	return out, nil
}

// Create inserts data into sheet. The backend upserts by id when data
// carries one, which keeps replays of the same create harmless.
func (c *Client) Create(ctx context.Context, sheet string, data store.Record) (*WriteResult, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("remote: encoding %s row: %w", sheet, err)
	}

	req := transport.NewRequest(actionCreate, "sheet", sheet, "data", string(body))

	return c.write(ctx, req, sheet)
}

// Update overwrites the given fields of row id.
func (c *Client) Update(ctx context.Context, sheet, id string, data store.Record) (*WriteResult, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("remote: encoding %s row: %w", sheet, err)
	}

	req := transport.NewRequest(actionUpdate, "sheet", sheet, "id", id, "data", string(body))

	return c.write(ctx, req, sheet)
}

// Delete removes row id.
func (c *Client) Delete(ctx context.Context, sheet, id string) (*WriteResult, error) {
	return c.write(ctx, transport.NewRequest(actionDelete, "sheet", sheet, "id", id), sheet)
}

func (c *Client) write(ctx context.Context, req transport.Request, sheet string) (*WriteResult, error) {
	obj, err := c.callObject(ctx, req, sheet)
	if err != nil {
		return nil, err
	}

	res := &WriteResult{
		Status: scalarOf(obj["status"]),
		ID:     scalarOf(obj["id"]),
		Sheet:  scalarOf(obj["sheet"]),
	}

	c.logger.Debug("remote write acknowledged",
		slog.String("action", req.Action()),
		slog.String("sheet", sheet),
		slog.String("id", res.ID),
		slog.String("status", res.Status),
	)

	return res, nil
}

// callObject sends req and decodes an object reply, turning {"error": ...}
// into a *LogicError.
func (c *Client) callObject(ctx context.Context, req transport.Request, sheet string) (map[string]json.RawMessage, error) {
	action := req.Action()

	payload, err := c.sender.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", action, err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, malformed(action, "expected object: %v", err)
	}

	if raw, ok := obj[keyError]; ok && !isNull(raw) {
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			msg = string(raw)
		}

		if s := stringOf(obj["sheet"]); s != "" {
			sheet = s
		}

		return nil, &LogicError{Action: action, Sheet: sheet, Message: msg}
	}

	return obj, nil
}

// decode unmarshals keeping numbers as json.Number so ids and quantities
// survive without float rounding.
func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	return dec.Decode(v)
}

func decodeWatermarks(raw json.RawMessage) (map[string]string, error) {
	var meta map[string]any
	if err := decode(raw, &meta); err != nil {
		return nil, err
	}

	rec := store.Record(meta)
	out := make(map[string]string, len(meta))

	for k := range meta {
		out[k] = rec.String(k)
	}

	return out, nil
}

func stringField(obj map[string]json.RawMessage, key, action string) (string, error) {
	s := stringOf(obj[key])
	if s == "" {
		return "", malformed(action, "missing %q", key)
	}

	return s, nil
}

func stringOf(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}

	return s
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// scalarOf renders a string or number field as text, "" for anything else.
func scalarOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var v any
	if decode(raw, &v) != nil {
		return ""
	}

	return store.Record{"v": v}.String("v")
}
