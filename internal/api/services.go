package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-babybuddy/internal/audit"
)

// handleListServices returns the registered service names.
func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	names := s.host.Services()
	writeJSON(w, http.StatusOK, map[string]any{"services": names, "count": len(names)})
}

// handleCallService invokes a service with the JSON body as its data.
// An empty body is an empty data object.
//
// Response: 200 with {"service", "record"}; record is null for deletes.
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	data := map[string]any{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := s.host.Call(r.Context(), name, data)
	s.audit.Record(audit.NewCall(name, s.host.EntryFor(data), data, audit.SourceAPI, subjectFromContext(r.Context()), rec, err))
	if err != nil {
		s.logger.Info("service call failed", "service", name, "error", err)
		writeIntegrationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": name,
		"record":  rec,
	})
}

// handleListServiceCalls returns recorded service calls, most recent first.
//
// Query parameters:
//   - service, entry, source, status: exact-match filters
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListServiceCalls(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "service call log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Service: q.Get("service"),
		EntryID: q.Get("entry"),
		Source:  q.Get("source"),
		Status:  q.Get("status"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list service calls", "error", err)
		writeInternalError(w, "failed to list service calls")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
