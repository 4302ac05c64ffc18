package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"cyberia-pathway/config"
	"cyberia-pathway/instance"
	"cyberia-pathway/pathfinding"

	"github.com/gorilla/websocket"
)

// Server hosts the world, drives the path controller once per tick and
// streams agent state to websocket clients, one channel per map.
//
// The world lock guards both the world and the controller.
type Server struct {
	world      *instance.World
	nav        *pathfinding.Controller
	channels   *ChannelManager
	upgrader   websocket.Upgrader
	tick       time.Duration
	defaultMap string
	navOpts    []pathfinding.ControllerOption

	clients      map[*WebSocketClient]bool
	clientsMutex sync.RWMutex

	started time.Time
	ticks   atomic.Uint64
}

type Option func(*Server)

// WithDefaultMap sets the map new websocket clients spawn on.
func WithDefaultMap(mapID string) Option {
	return func(s *Server) { s.defaultMap = mapID }
}

// WithControllerOptions passes extra options to the path controller.
func WithControllerOptions(opts ...pathfinding.ControllerOption) Option {
	return func(s *Server) { s.navOpts = append(s.navOpts, opts...) }
}

// New creates a server for world configured from cfg.
func New(world *instance.World, cfg config.Config, opts ...Option) *Server {
	s := &Server{
		world: world,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		tick:       cfg.TickInterval,
		defaultMap: config.DefaultMapID,
		clients:    make(map[*WebSocketClient]bool),
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	completion := pathfinding.DeferredCompletion
	if cfg.SearchSync {
		completion = pathfinding.ImmediateCompletion
	}
	iterations := cfg.IterationsPerCalculation
	navOpts := []pathfinding.ControllerOption{
		pathfinding.WithTickRate(cfg.TickInterval),
		pathfinding.WithEngineFactory(func() *pathfinding.Engine {
			return pathfinding.NewEngine(
				pathfinding.WithIterationsPerCalculation(iterations),
				pathfinding.WithCompletion(completion),
			)
		}),
		pathfinding.WithDefaults(pathfinding.Options{
			MaxStuck:        cfg.MaxStuckTicks,
			PixelsPerSecond: cfg.AgentSpeed,
			MinDistance:     cfg.MinArrivalDistance,
			OnEvent:         s.onPathEvent,
		}),
	}
	s.nav = pathfinding.NewController(world, append(navOpts, s.navOpts...)...)

	world.Mu.Lock()
	s.channels = NewChannelManager(world.MapIDs()...)
	world.Mu.Unlock()
	return s
}

// Run ticks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	tick := s.tick
	if tick <= 0 {
		tick = config.DefaultTickInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	log.Printf("Tick loop started (%s).", tick)

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-ctx.Done():
			log.Println("Tick loop stopped.")
			return
		}
	}
}

// Tick advances every moving agent and broadcasts the agents of each map
// to the clients watching it.
func (s *Server) Tick() {
	s.world.Mu.Lock()
	s.nav.Update()
	byMap := make(map[string][]AgentView)
	for _, a := range s.world.Objects(instance.KindAgent) {
		byMap[a.Map] = append(byMap[a.Map], s.view(a))
	}
	s.world.Mu.Unlock()

	n := s.ticks.Add(1)
	for mapID, views := range byMap {
		if ch, ok := s.channels.GetChannel(mapID); ok {
			ch.Broadcast(agentsUpdateMessage{Type: "agents_update", Tick: n, MapID: mapID, Agents: views})
		}
	}
}

// onPathEvent runs with the world lock held.
func (s *Server) onPathEvent(ev pathfinding.Event) {
	mapID := ""
	if a, ok := s.world.Object(ev.AgentID); ok {
		mapID = a.Map
	}
	log.Printf("Agent %s: %s (path %d, map %s)", ev.AgentID, ev.Kind, ev.PathID, mapID)
	if mapID == "" {
		return
	}
	s.channels.getOrCreateChannel(mapID).PublishEvent(ev)
}

// OnMapReload refreshes navigation after a map file changed. It must be
// called with the world lock held, as the map watcher does.
func (s *Server) OnMapReload(mapID string) {
	s.nav.TileCache().Invalidate(mapID)
	for _, snap := range s.nav.Snapshots() {
		if _, ok := s.world.Object(snap.AgentID); !ok {
			s.nav.Forget(snap.AgentID)
		}
	}
	if ch, ok := s.channels.GetChannel(mapID); ok {
		ch.Broadcast(map[string]any{
			"type":   "map_reloaded",
			"map_id": mapID,
			"exists": s.world.MapExists(mapID),
		})
	}
}

// HandleWebSocket upgrades the request, spawns an agent for the client on
// the requested map (query parameter "map") and starts its pumps.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	mapID := r.URL.Query().Get("map")
	if mapID == "" {
		mapID = s.defaultMap
	}
	view, err := s.SpawnAgent(mapID)
	if err != nil {
		log.Printf("ERROR: No agent spawned for client %s on map %s: %v", conn.RemoteAddr().String(), mapID, err)
		msg, _ := json.Marshal(errorMessage{Type: "error", Text: err.Error()})
		conn.WriteMessage(websocket.TextMessage, msg)
		conn.Close()
		return
	}

	client := NewWebSocketClient(conn, view.ID)
	assigned, _ := json.Marshal(map[string]any{
		"type":     "agent_assigned",
		"agent_id": view.ID,
		"map_id":   view.MapID,
		"x":        view.Position.X,
		"y":        view.Position.Y,
	})
	if err := conn.WriteMessage(websocket.TextMessage, assigned); err != nil {
		log.Printf("ERROR: Failed to send agent_assigned message to client %s: %v. Disconnecting.", view.ID, err)
		_ = s.RemoveAgent(view.ID)
		conn.Close()
		return
	}

	s.clientsMutex.Lock()
	s.clients[client] = true
	s.clientsMutex.Unlock()
	s.channels.AddClientToChannel(client, mapID)
	log.Printf("Agent %s assigned to client %s.", view.ID, conn.RemoteAddr().String())

	go client.WritePump()
	go client.ReadPump(s)
}

// unregisterClient removes a client and the agent it controls.
func (s *Server) unregisterClient(client *WebSocketClient) {
	s.channels.RemoveClientFromChannel(client)

	s.clientsMutex.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
	s.clientsMutex.Unlock()

	if err := s.RemoveAgent(client.agentID); err != nil {
		log.Printf("WARNING: removing agent of client %s: %v", client.agentID, err)
	}
	log.Printf("Client %s unregistered and agent removed.", client.agentID)
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

// Close disconnects every client.
func (s *Server) Close() {
	s.clientsMutex.RLock()
	clients := make([]*WebSocketClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMutex.RUnlock()

	for _, c := range clients {
		c.Kick()
	}
	s.channels.CloseAllChannels()
}
