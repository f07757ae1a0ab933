package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/soundmesh/soundmesh-core/internal/state"
)

// setNameRequest is the request body for PUT /clients/{id}/name.
type setNameRequest struct {
	Name string `json:"name"`
}

// setLatencyRequest is the request body for PUT /clients/{id}/latency.
type setLatencyRequest struct {
	LatencyMs int `json:"latency_ms"`
}

// handleListClients returns all clients sorted by ID.
func (s *Server) handleListClients(w http.ResponseWriter, _ *http.Request) {
	sys, err := s.states.Current()
	if err != nil {
		writeInternalError(w, "state store unavailable")
		return
	}

	clients := make([]state.ClientState, 0, len(sys.Clients))
	for _, c := range sys.Clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients, "count": len(clients)})
}

// handleGetClient returns a single client.
func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	sys, err := s.states.Current()
	if err != nil {
		writeInternalError(w, "state store unavailable")
		return
	}

	client, ok := sys.Client(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// handleSetClientVolume sets one client's logical and physical volume.
func (s *Server) handleSetClientVolume(w http.ResponseWriter, r *http.Request) {
	var req setVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	client, err := s.commands.SetClientVolume(r.Context(), chi.URLParam(r, "id"), req.Volume)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// handleSetClientMute sets one client's mute flag.
func (s *Server) handleSetClientMute(w http.ResponseWriter, r *http.Request) {
	var req setMuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	client, err := s.commands.SetClientMute(r.Context(), chi.URLParam(r, "id"), req.Muted)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// handleSetClientName renames a client, propagating to the routing server.
func (s *Server) handleSetClientName(w http.ResponseWriter, r *http.Request) {
	var req setNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	client, err := s.commands.SetClientName(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// handleSetClientLatency adjusts a client's latency compensation.
func (s *Server) handleSetClientLatency(w http.ResponseWriter, r *http.Request) {
	var req setLatencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	client, err := s.commands.SetClientLatency(r.Context(), chi.URLParam(r, "id"), req.LatencyMs)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}
