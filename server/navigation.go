package server

import (
	"errors"
	"fmt"
	"time"

	"cyberia-pathway/config"
	"cyberia-pathway/instance"
	"cyberia-pathway/pathfinding"
)

var (
	ErrAgentNotFound  = errors.New("agent not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// AgentView is the serializable state of an agent and its navigation.
type AgentView struct {
	ID         string               `json:"id"`
	MapID      string               `json:"map_id"`
	Position   pathfinding.Point    `json:"position"`
	Width      float64              `json:"width"`
	Height     float64              `json:"height"`
	Color      config.Color         `json:"color"`
	Moving     bool                 `json:"moving"`
	Navigation pathfinding.Snapshot `json:"navigation"`
}

// MoveRequest asks for an agent to walk to a world position.
type MoveRequest struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Diagonal      bool    `json:"diagonal,omitempty"`
	CornerCutting *bool   `json:"corner_cutting,omitempty"` // default true
	Nearest       bool    `json:"nearest,omitempty"`
	Mode          string  `json:"mode,omitempty"` // "collision" or "position"
}

// Stats summarizes the server for the metrics endpoint.
type Stats struct {
	Navigation pathfinding.ControllerStats `json:"navigation"`
	Ticks      uint64                      `json:"ticks"`
	Clients    int                         `json:"clients"`
	Maps       []string                    `json:"maps"`
	Agents     int                         `json:"agents"`
	Obstacles  int                         `json:"obstacles"`
	CachedMaps int                         `json:"cached_maps"`
	UptimeSec  int64                       `json:"uptime_sec"`
}

type agentsUpdateMessage struct {
	Type   string      `json:"type"`
	Tick   uint64      `json:"tick"`
	MapID  string      `json:"map_id"`
	Agents []AgentView `json:"agents"`
}

type pathEventMessage struct {
	Type  string            `json:"type"`
	MapID string            `json:"map_id"`
	Event pathfinding.Event `json:"event"`
}

type errorMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) view(a *instance.Object) AgentView {
	snap, ok := s.nav.Snapshot(a.ID())
	if !ok {
		snap = pathfinding.Snapshot{
			AgentID:   a.ID(),
			State:     pathfinding.Idle,
			Position:  a.Center(),
			Remaining: []pathfinding.Cell{},
			Facing:    pathfinding.None,
		}
	}
	return AgentView{
		ID:         a.ID(),
		MapID:      a.Map,
		Position:   a.Center(),
		Width:      a.Width,
		Height:     a.Height,
		Color:      a.Color,
		Moving:     a.Moving,
		Navigation: snap,
	}
}

func (s *Server) agent(id string) (*instance.Object, error) {
	a, ok := s.world.Object(id)
	if !ok || a.Kind != instance.KindAgent {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a, nil
}

// Agents lists every agent ordered by ID.
func (s *Server) Agents() []AgentView {
	s.world.Mu.Lock()
	defer s.world.Mu.Unlock()
	agents := s.world.Objects(instance.KindAgent)
	out := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, s.view(a))
	}
	return out
}

func (s *Server) Agent(id string) (AgentView, error) {
	s.world.Mu.Lock()
	defer s.world.Mu.Unlock()
	a, err := s.agent(id)
	if err != nil {
		return AgentView{}, err
	}
	return s.view(a), nil
}

// SpawnAgent creates an agent on a map, at a spawn point when one is free.
func (s *Server) SpawnAgent(mapID string) (AgentView, error) {
	if mapID == "" {
		mapID = s.defaultMap
	}
	s.world.Mu.Lock()
	defer s.world.Mu.Unlock()
	a, err := s.world.SpawnAgent(mapID)
	if err != nil {
		return AgentView{}, err
	}
	return s.view(a), nil
}

// RemoveAgent ends the agent's navigation and removes it from the world.
func (s *Server) RemoveAgent(id string) error {
	s.world.Mu.Lock()
	defer s.world.Mu.Unlock()
	if _, err := s.agent(id); err != nil {
		return err
	}
	s.nav.Forget(id)
	s.world.RemoveObject(id)
	return nil
}

// Relocate ends an agent's navigation and moves it to another map.
func (s *Server) Relocate(agentID, mapID string) (AgentView, error) {
	s.world.Mu.Lock()
	defer s.world.Mu.Unlock()
	a, err := s.agent(agentID)
	if err != nil {
		return AgentView{}, err
	}
	s.nav.End(a)
	if err := s.world.Relocate(a, mapID); err != nil {
		return AgentView{}, err
	}
	return s.view(a), nil
}

// Move sends an agent towards the tile under (req.X, req.Y). It returns the
// path ID, or zero when the request resolved without a search.
func (s *Server) Move(agentID string, req MoveRequest) (int, error) {
	mode, err := pathfinding.ParseMode(req.Mode)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	opts := pathfinding.Options{
		Diagonal:      req.Diagonal,
		CornerCutting: req.CornerCutting == nil || *req.CornerCutting,
		Nearest:       req.Nearest,
		Mode:          mode,
	}

	s.world.Mu.Lock()
	defer s.world.Mu.Unlock()
	a, err := s.agent(agentID)
	if err != nil {
		return 0, err
	}
	x, y := s.world.WorldToCell(req.X, req.Y)
	return s.nav.To(a, pathfinding.Cell{X: x, Y: y}, opts)
}

// Stop ends an agent's current navigation.
func (s *Server) Stop(agentID string) error {
	s.world.Mu.Lock()
	defer s.world.Mu.Unlock()
	a, err := s.agent(agentID)
	if err != nil {
		return err
	}
	s.nav.End(a)
	return nil
}

// InvalidateMap drops the cached tile layout of a map.
func (s *Server) InvalidateMap(mapID string) error {
	s.world.Mu.Lock()
	defer s.world.Mu.Unlock()
	if !s.world.MapExists(mapID) {
		return fmt.Errorf("%w: %q", pathfinding.ErrUnknownMap, mapID)
	}
	s.nav.TileCache().Invalidate(mapID)
	return nil
}

func (s *Server) Stats() Stats {
	s.world.Mu.Lock()
	st := Stats{
		Navigation: s.nav.Stats(),
		Maps:       s.world.MapIDs(),
		Agents:     len(s.world.Objects(instance.KindAgent)),
		Obstacles:  len(s.world.Objects(instance.KindObstacle)),
		CachedMaps: s.nav.TileCache().Len(),
	}
	s.world.Mu.Unlock()

	st.Ticks = s.ticks.Load()
	st.Clients = s.ClientCount()
	st.UptimeSec = int64(time.Since(s.started).Seconds())
	return st
}
