package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/praneth2580/storix/internal/store"
	"github.com/praneth2580/storix/internal/sync"
)

// maxBodyBytes caps write request bodies.
const maxBodyBytes = 1 << 20

// viewKind binds a URL segment to the list and lookup functions of a view.
type viewKind struct {
	list func(Views) (any, error)
	get  func(Views, string) (any, bool, error)
}

func lookupView[V any](fn func(string) (*V, error), id string) (any, bool, error) {
	v, err := fn(id)
	if err != nil || v == nil {
		return nil, false, err
	}

	return v, true, nil
}

var viewKinds = map[string]viewKind{
	"products": {
		list: func(v Views) (any, error) { return v.Products() },
		get:  func(v Views, id string) (any, bool, error) { return lookupView(v.ProductByID, id) },
	},
	"variants": {
		list: func(v Views) (any, error) { return v.Variants() },
		get:  func(v Views, id string) (any, bool, error) { return lookupView(v.VariantByID, id) },
	},
	"stock": {
		list: func(v Views) (any, error) { return v.StockItems() },
		get:  func(v Views, id string) (any, bool, error) { return lookupView(v.StockByID, id) },
	},
	"customers": {
		list: func(v Views) (any, error) { return v.Customers() },
		get:  func(v Views, id string) (any, bool, error) { return lookupView(v.CustomerByID, id) },
	},
	"suppliers": {
		list: func(v Views) (any, error) { return v.Suppliers() },
		get:  func(v Views, id string) (any, bool, error) { return lookupView(v.SupplierByID, id) },
	},
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	LastSync string         `json:"lastSync"`
	Pending  int            `json:"pending"`
	Settings map[string]any `json:"settings"`
}

// WriteResponse acknowledges a queued write intent.
type WriteResponse struct {
	Status string `json:"status"`
	Table  string `json:"table"`
	ID     string `json:"id"`
}

// SyncResponse is the body of POST /sync.
type SyncResponse struct {
	Mode        string         `json:"mode"`
	Now         string         `json:"now"`
	Rows        map[string]int `json:"rows"`
	FullRefresh []string       `json:"fullRefresh"`
	Ignored     []string       `json:"ignored,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.engine.Pending(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		LastSync: s.engine.LastSync(),
		Pending:  len(pending),
		Settings: s.engine.Settings(),
	})
}

func (s *Server) handleListView(w http.ResponseWriter, r *http.Request) {
	kind, ok := viewKinds[chi.URLParam(r, "kind")]
	if !ok {
		s.respondNotFound(w, r, "view "+strconv.Quote(chi.URLParam(r, "kind")))
		return
	}

	items, err := kind.list(s.views)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	kind, ok := viewKinds[chi.URLParam(r, "kind")]
	if !ok {
		s.respondNotFound(w, r, "view "+strconv.Quote(chi.URLParam(r, "kind")))
		return
	}

	id := chi.URLParam(r, "id")

	item, found, err := kind.get(s.views, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if !found {
		s.respondNotFound(w, r, "record "+strconv.Quote(id))
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	table, err := store.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data, err := decodeRecord(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	id, err := s.engine.CreateItem(r.Context(), table, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, WriteResponse{Status: "queued", Table: string(table), ID: id})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table, err := store.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	fields, err := decodeRecord(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.UpdateItem(r.Context(), table, id, fields); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, WriteResponse{Status: "queued", Table: string(table), ID: id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table, err := store.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.DeleteItem(r.Context(), table, id); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, WriteResponse{Status: "queued", Table: string(table), ID: id})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.engine.Pending(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if pending == nil {
		pending = []sync.Mutation{}
	}

	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil {
		s.respondNotFound(w, r, "pending mutation "+strconv.Quote(chi.URLParam(r, "seq")))
		return
	}

	if err := s.engine.DiscardPending(r.Context(), seq); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.SyncChanges(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := SyncResponse{
		Mode:        string(report.Mode),
		Now:         report.Now,
		Rows:        make(map[string]int, len(report.Rows)),
		FullRefresh: make([]string, 0, len(report.FullRefresh)),
		Ignored:     report.Ignored,
	}

	for t, n := range report.Rows {
		resp.Rows[string(t)] = n
	}

	for _, t := range report.FullRefresh {
		resp.FullRefresh = append(resp.FullRefresh, string(t))
	}

	writeJSON(w, http.StatusOK, resp)
}

// decodeRecord reads a JSON object body, keeping numbers as json.Number so
// they reach the remote unchanged.
func decodeRecord(w http.ResponseWriter, r *http.Request) (store.Record, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var rec store.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBody, err)
	}

	if rec == nil {
		return nil, errBadBody
	}

	return rec, nil
}
