package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/soundmesh/soundmesh-core/internal/commands"
	"github.com/soundmesh/soundmesh-core/internal/state"
)

// setVolumeRequest is the request body for volume commands.
type setVolumeRequest struct {
	Volume int `json:"volume"`
}

// setMuteRequest is the request body for mute commands.
type setMuteRequest struct {
	Muted bool `json:"muted"`
}

// setStreamRequest is the request body for PUT /zones/{id}/stream.
// An empty stream ID detaches the zone from its stream.
type setStreamRequest struct {
	StreamID string `json:"stream_id"`
}

// assignClientRequest is the request body for POST /zones/{id}/clients.
type assignClientRequest struct {
	ClientID string `json:"client_id"`
}

// handleListZones returns all zones sorted by ID.
func (s *Server) handleListZones(w http.ResponseWriter, _ *http.Request) {
	sys, err := s.states.Current()
	if err != nil {
		writeInternalError(w, "state store unavailable")
		return
	}

	zones := make([]state.ZoneState, 0, len(sys.Zones))
	for _, id := range sys.ZoneIDs() {
		zones = append(zones, sys.Zones[id])
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones, "count": len(zones)})
}

// handleGetZone returns a single zone.
func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	sys, err := s.states.Current()
	if err != nil {
		writeInternalError(w, "state store unavailable")
		return
	}

	zone, ok := sys.Zone(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "zone not found")
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

// handleSetZoneVolume sets a zone's volume, fanning out to member clients.
func (s *Server) handleSetZoneVolume(w http.ResponseWriter, r *http.Request) {
	var req setVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	zone, err := s.commands.SetZoneVolume(r.Context(), chi.URLParam(r, "id"), req.Volume)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

// handleSetZoneMute sets a zone's mute flag, fanning out to member clients.
func (s *Server) handleSetZoneMute(w http.ResponseWriter, r *http.Request) {
	var req setMuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	zone, err := s.commands.SetZoneMute(r.Context(), chi.URLParam(r, "id"), req.Muted)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

// handleSetZoneStream changes the stream a zone plays.
func (s *Server) handleSetZoneStream(w http.ResponseWriter, r *http.Request) {
	var req setStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	zone, err := s.commands.SetZoneStream(r.Context(), chi.URLParam(r, "id"), req.StreamID)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

// handleAssignClient moves a client into the zone.
func (s *Server) handleAssignClient(w http.ResponseWriter, r *http.Request) {
	var req assignClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ClientID == "" {
		writeBadRequest(w, "client_id is required")
		return
	}

	zone, err := s.commands.AssignClient(r.Context(), chi.URLParam(r, "id"), req.ClientID)
	if err != nil {
		// The zone is the addressed resource; a missing client is a bad reference.
		if errors.Is(err, commands.ErrClientNotFound) {
			writeBadRequest(w, err.Error())
			return
		}
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

// handleUnassignClient removes a client from the zone, leaving it unassigned.
func (s *Server) handleUnassignClient(w http.ResponseWriter, r *http.Request) {
	zone, err := s.commands.UnassignClient(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "clientID"))
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

// handleListStreams returns all streams sorted by ID.
func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	sys, err := s.states.Current()
	if err != nil {
		writeInternalError(w, "state store unavailable")
		return
	}

	streams := make([]state.StreamState, 0, len(sys.Streams))
	for _, st := range sys.Streams {
		streams = append(streams, st)
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].ID < streams[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"streams": streams, "count": len(streams)})
}

// writeCommandError maps command service errors onto HTTP responses.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, commands.ErrInvalidArgument),
		errors.Is(err, commands.ErrStreamNotFound):
		writeBadRequest(w, err.Error())
	case errors.Is(err, commands.ErrZoneNotFound),
		errors.Is(err, commands.ErrClientNotFound),
		errors.Is(err, commands.ErrClientNotAssigned):
		writeNotFound(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
