package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
)

// optionsRequest is the request body for PATCH /entries/{id}/options.
type optionsRequest struct {
	// ScanInterval is the polling interval in seconds.
	ScanInterval *int `json:"scan_interval"`
}

// handleListEntries returns the status of every set-up entry.
func (s *Server) handleListEntries(w http.ResponseWriter, _ *http.Request) {
	statuses := s.host.Statuses()
	writeJSON(w, http.StatusOK, map[string]any{"entries": statuses, "count": len(statuses)})
}

// handleGetEntry returns one entry's status.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.entryCoordinator(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, coord.Status())
}

// handleGetSnapshot returns the entry's latest snapshot. Before the first
// successful pass there is no snapshot and 404 is returned.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.entryCoordinator(w, r)
	if !ok {
		return
	}

	snap := coord.Snapshot()
	if snap == nil {
		writeNotFound(w, "no snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRefreshEntry runs a pass now and returns the resulting snapshot.
func (s *Server) handleRefreshEntry(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.entryCoordinator(w, r)
	if !ok {
		return
	}

	snap, err := coord.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, coordinator.ErrNoChildren) {
			writeError(w, http.StatusConflict, ErrCodeConflict, coordinator.NoChildrenMessage)
			return
		}
		s.logger.Warn("manual refresh failed", "entry", coord.EntryID(), "error", err)
		writeIntegrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleUpdateOptions changes an entry's scan interval.
func (s *Server) handleUpdateOptions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req optionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ScanInterval == nil || *req.ScanInterval <= 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "scan_interval must be a positive number of seconds")
		return
	}

	status, err := s.host.OptionsUpdated(id, time.Duration(*req.ScanInterval)*time.Second)
	if err != nil {
		writeIntegrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// entryCoordinator resolves {id}, writing 404 when the entry is unknown.
func (s *Server) entryCoordinator(w http.ResponseWriter, r *http.Request) (*coordinator.Coordinator, bool) {
	id := chi.URLParam(r, "id")
	coord, ok := s.host.Coordinator(id)
	if !ok {
		writeNotFound(w, "entry not found")
		return nil, false
	}
	return coord, true
}
