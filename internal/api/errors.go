package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/praneth2580/storix/internal/remote"
	"github.com/praneth2580/storix/internal/store"
	"github.com/praneth2580/storix/internal/sync"
	"github.com/praneth2580/storix/internal/transport"
)

// errBadBody is reported for request bodies that are not a JSON object.
var errBadBody = errors.New("api: request body must be a JSON object")

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// statusOf maps an engine error to an HTTP status and a stable code.
func statusOf(err error) (int, string) {
	var logicErr *remote.LogicError

	switch {
	case errors.Is(err, store.ErrUnknownTable):
		return http.StatusNotFound, "unknown_table"
	case errors.Is(err, sync.ErrMutationNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrMissingID), errors.Is(err, errBadBody):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, sync.ErrSyncInProgress):
		return http.StatusConflict, "sync_in_progress"
	case errors.Is(err, transport.ErrTimeout):
		return http.StatusGatewayTimeout, "remote_timeout"
	case errors.As(err, &logicErr), errors.Is(err, transport.ErrTransport),
		errors.Is(err, remote.ErrMalformedResponse):
		return http.StatusBadGateway, "remote_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondError logs err and writes it as an ErrorResponse.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	requestID := middleware.GetReqID(r.Context())

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}

	s.logger.Log(r.Context(), level, "api request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("request_id", requestID),
	)

	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, RequestID: requestID})
}

func (s *Server) respondNotFound(w http.ResponseWriter, r *http.Request, what string) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:     what + " not found",
		Code:      "not_found",
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: encoding response", slog.String("error", err.Error()))
	}
}
