package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/soundmesh/soundmesh-core/internal/audit"
	"github.com/soundmesh/soundmesh-core/internal/state"
)

// systemStatusResponse is the response body for GET /system/status.
type systemStatusResponse struct {
	Status      state.SystemStatus `json:"status"`
	Version     int64              `json:"state_version"`
	ZoneCount   int                `json:"zone_count"`
	ClientCount int                `json:"client_count"`
	StreamCount int                `json:"stream_count"`
	LastUpdated string             `json:"last_updated"`
	HubVersion  string             `json:"hub_version"`
}

// handleSystemStatus returns a summary of the committed snapshot.
func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	sys, err := s.states.Current()
	if err != nil {
		writeInternalError(w, "state store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, systemStatusResponse{
		Status:      sys.Status,
		Version:     sys.Version,
		ZoneCount:   len(sys.Zones),
		ClientCount: len(sys.Clients),
		StreamCount: len(sys.Streams),
		LastUpdated: sys.LastUpdated.Format(time.RFC3339),
		HubVersion:  s.version,
	})
}

// handleGroupingStatus returns the reconciler's read-only drift view.
func (s *Server) handleGroupingStatus(w http.ResponseWriter, r *http.Request) {
	if s.grouping == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "grouping reconciler not available")
		return
	}

	status, err := s.grouping.GetZoneGroupingStatus(r.Context())
	if err != nil {
		writeInternalError(w, "failed to read grouping status: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReconcile requests an out-of-schedule grouping pass. The pass runs
// asynchronously; poll GET /system/grouping for the outcome.
func (s *Server) handleReconcile(w http.ResponseWriter, _ *http.Request) {
	if s.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "grouping reconciler not available")
		return
	}

	s.trigger.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]any{"triggered": true})
}

// handleAuditLog returns a page of the command audit trail, newest first.
// Filters: action, entity_type, entity_id, source, limit, offset.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "audit trail not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Source:     q.Get("source"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to read audit trail: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
