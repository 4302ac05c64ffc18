package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cyberia-pathway/server"

	"github.com/go-chi/chi/v5"
)

// Navigator is the part of the server the REST handlers drive.
type Navigator interface {
	Agents() []server.AgentView
	Agent(id string) (server.AgentView, error)
	SpawnAgent(mapID string) (server.AgentView, error)
	RemoveAgent(id string) error
	Move(agentID string, req server.MoveRequest) (int, error)
	Stop(agentID string) error
	InvalidateMap(mapID string) error
	Stats() server.Stats
}

// AgentHandler holds deps for agent and map routes.
type AgentHandler struct {
	nav Navigator
}

func NewAgentHandler(nav Navigator) *AgentHandler {
	return &AgentHandler{nav: nav}
}

// Routes registers agent and map routes.
func (h *AgentHandler) Routes(r chi.Router) {
	r.Get("/agents", h.List)
	r.Post("/agents", h.Spawn)
	r.Get("/agents/{id}", h.Get)
	r.Delete("/agents/{id}", h.Delete)
	r.Post("/agents/{id}/move", h.Move)
	r.Post("/agents/{id}/stop", h.Stop)
	r.Post("/maps/{mapID}/invalidate", h.InvalidateMap)
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.nav.Agents())
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent, err := h.nav.Agent(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// Spawn creates an agent. An empty body spawns on the default map.
func (h *AgentHandler) Spawn(w http.ResponseWriter, r *http.Request) {
	var in struct {
		MapID string `json:"map_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	agent, err := h.nav.SpawnAgent(in.MapID)
	if err != nil {
		errorJSON(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.nav.RemoveAgent(chi.URLParam(r, "id")); err != nil {
		errorJSON(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Move starts navigation. The response carries the path ID, which is zero
// when the request resolved without a search (already there, or no path).
func (h *AgentHandler) Move(w http.ResponseWriter, r *http.Request) {
	var in server.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	id := chi.URLParam(r, "id")
	pathID, err := h.nav.Move(id, in)
	if err != nil {
		errorJSON(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"agent_id": id, "path_id": pathID})
}

func (h *AgentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.nav.Stop(chi.URLParam(r, "id")); err != nil {
		errorJSON(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentHandler) InvalidateMap(w http.ResponseWriter, r *http.Request) {
	mapID := chi.URLParam(r, "mapID")
	if err := h.nav.InvalidateMap(mapID); err != nil {
		errorJSON(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"map_id": mapID, "status": "invalidated"})
}
