package pathfinding

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"time"
)

const (
	DefaultTickRate        = 16 * time.Millisecond
	DefaultMaxStuck        = 100
	DefaultPixelsPerSecond = 120.0
	DefaultMinDistance     = 2.0
	// maxElapsedTicks clamps the delta time after a stalled tick loop.
	maxElapsedTicks = 4
)

// Options configures one path request. Zero numeric fields fall back to the
// controller defaults.
type Options struct {
	Diagonal      bool
	CornerCutting bool
	// Nearest substitutes a blocked start or end tile with the nearest
	// usable one instead of failing.
	Nearest         bool
	Ignore          IgnoreList
	MaxStuck        int
	Mode            Mode
	PixelsPerSecond float64
	MinDistance     float64
	OnEvent         EventHandler
}

// DefaultOptions returns the controller's default request options.
func DefaultOptions() Options {
	return Options{
		CornerCutting:   true,
		MaxStuck:        DefaultMaxStuck,
		Mode:            ModeCollision,
		PixelsPerSecond: DefaultPixelsPerSecond,
		MinDistance:     DefaultMinDistance,
	}
}

func (o Options) withDefaults(d Options) Options {
	if o.MaxStuck <= 0 {
		o.MaxStuck = d.MaxStuck
	}
	if o.PixelsPerSecond <= 0 {
		o.PixelsPerSecond = d.PixelsPerSecond
	}
	if o.MinDistance <= 0 {
		o.MinDistance = d.MinDistance
	}
	if o.OnEvent == nil {
		o.OnEvent = d.OnEvent
	}
	return o
}

// agentState is the per-agent path record.
type agentState struct {
	agent  Agent
	engine *Engine
	opts   Options

	state    State
	pathID   int
	request  uint64
	path     []Cell
	reversed []Cell

	moving   bool
	target   Point
	angle    float64
	facing   Direction
	stuck    int
	stored   Point
	lastTime time.Time
}

func (s *agentState) reset() {
	s.state = Idle
	s.pathID = 0
	s.request++
	s.path = nil
	s.reversed = nil
	s.moving = false
	s.target = Point{}
	s.angle = 0
	s.stuck = 0
	s.opts = Options{}
}

// Snapshot is a read-only view of an agent's path state.
type Snapshot struct {
	AgentID   string    `json:"agent_id"`
	State     State     `json:"state"`
	PathID    int       `json:"path_id"`
	Position  Point     `json:"position"`
	Target    *Point    `json:"target,omitempty"`
	Remaining []Cell    `json:"remaining"`
	Facing    Direction `json:"facing"`
	Stuck     int       `json:"stuck"`
}

// ControllerStats counts controller activity since creation.
type ControllerStats struct {
	Requests   uint64 `json:"requests"`
	Found      uint64 `json:"found"`
	NotFound   uint64 `json:"not_found"`
	Completed  uint64 `json:"completed"`
	Stuck      uint64 `json:"stuck"`
	Cancelled  uint64 `json:"cancelled"`
	Recovered  uint64 `json:"recovered"`
	Active     int    `json:"active"`
	Tracked    int    `json:"tracked"`
	Expansions uint64 `json:"expansions"`
}

// Controller drives agents along computed paths, one Update per tick.
// It is not safe for concurrent use.
type Controller struct {
	world     World
	builder   *GridBuilder
	cache     *TileCache
	clock     func() time.Time
	tick      time.Duration
	newEngine func() *Engine
	defaults  Options
	logger    *slog.Logger

	agents map[string]*agentState
	stats  ControllerStats
}

type ControllerOption func(*Controller)

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.clock = now }
}

func WithTickRate(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithEngineFactory sets how per-agent engines are created.
func WithEngineFactory(f func() *Engine) ControllerOption {
	return func(c *Controller) { c.newEngine = f }
}

// WithTileCache shares a tile cache, typically one the host invalidates.
func WithTileCache(cache *TileCache) ControllerOption {
	return func(c *Controller) { c.cache = cache }
}

func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

func WithDefaults(o Options) ControllerOption {
	return func(c *Controller) { c.defaults = o.withDefaults(DefaultOptions()) }
}

func NewController(world World, opts ...ControllerOption) *Controller {
	c := &Controller{
		world:    world,
		clock:    time.Now,
		tick:     DefaultTickRate,
		defaults: DefaultOptions(),
		logger:   slog.Default().With(slog.String("component", "pathfinding_controller")),
		agents:   make(map[string]*agentState),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewTileCache()
	}
	if c.newEngine == nil {
		logger := c.logger
		c.newEngine = func() *Engine {
			return NewEngine(WithIterationsPerCalculation(1000), WithEngineLogger(logger))
		}
	}
	c.builder = NewGridBuilder(world, c.cache)
	return c
}

// TileCache returns the cache used to build grids.
func (c *Controller) TileCache() *TileCache { return c.cache }

// To starts moving agent to dest, ending any request already in progress.
// It returns the search id, or 0 when the request failed before a search
// was queued. Usage errors are returned; unreachable destinations are
// reported through a PathNotFound event.
func (c *Controller) To(agent Agent, dest Cell, opts Options) (int, error) {
	if agent == nil {
		return 0, ErrNoAgent
	}
	mapID := agent.MapID()
	if mapID == "" {
		return 0, ErrNoMap
	}
	if !c.world.MapExists(mapID) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMap, mapID)
	}

	id := agent.ID()
	c.end(id)

	tw, th := c.world.TileSize()
	startPos := agent.Bounds().Center()
	endPos := CellCenter(dest, tw, th)
	startTile := c.world.TileAt(math.Round(startPos.X), math.Round(startPos.Y), mapID)
	endTile := c.world.TileAt(endPos.X, endPos.Y, mapID)
	if startTile == nil {
		return 0, fmt.Errorf("%w: agent %s at (%.1f,%.1f)", ErrOutOfBounds, id, startPos.X, startPos.Y)
	}
	if endTile == nil {
		return 0, fmt.Errorf("%w: destination (%d,%d)", ErrOutOfBounds, dest.X, dest.Y)
	}

	st, ok := c.agents[id]
	if !ok {
		st = &agentState{agent: agent, engine: c.newEngine(), facing: None}
		c.agents[id] = st
	}
	st.agent = agent
	st.opts = opts.withDefaults(c.defaults)
	c.stats.Requests++

	ignore := st.opts.Ignore.Clone()
	ignore.AddTile(startTile.Cell())
	ignore.AddOccupant(id)
	st.opts.Ignore = ignore

	start := startTile.Cell()
	end := endTile.Cell()

	if Blocked(startTile, ignore, nil) {
		if !st.opts.Nearest {
			c.notFound(st, &start)
			return 0, nil
		}
		var sides Sides
		for _, occ := range startTile.Occupants() {
			if occ.IsDense() && !ignore.HasOccupant(occ.ID()) {
				sides = sides.Merge(BlockingSides(occ.Bounds().Center(), startPos, endPos))
			}
		}
		r := &Resolver{World: c.world, MapID: mapID, Ignore: ignore, AgentBounds: agent.Bounds()}
		start, sides = r.Nearest(start, startPos, sides, true)
		if sides.All() {
			c.notFound(st, &start)
			return 0, nil
		}
	}

	if Blocked(endTile, ignore, nil) {
		if !st.opts.Nearest {
			c.notFound(st, &end)
			return 0, nil
		}
		r := &Resolver{World: c.world, MapID: mapID, Ignore: ignore}
		end, _ = r.Nearest(end, endPos, Sides{}, false)
	}

	info, err := c.builder.Build(mapID, ignore)
	if err != nil {
		return 0, err
	}

	e := st.engine
	e.SetAcceptableTiles(info.Accepted...)
	e.diagonals = st.opts.Diagonal
	e.cornerCutting = st.opts.CornerCutting
	e.SetGrid(info.Grid)
	for _, w := range info.Weights {
		e.SetTileCost(w, w)
	}

	st.state = Searching
	st.lastTime = c.clock()
	st.stored = roundPoint(startPos)
	st.request++
	token := st.request
	pathID, err := e.FindPath(start.X, start.Y, end.X, end.Y, func(res Result) {
		if cur, ok := c.agents[id]; !ok || cur != st || st.request != token {
			return
		}
		c.onSearchDone(st, res)
	})
	if err != nil {
		st.reset()
		return 0, err
	}
	// An immediate completion may already have finished the request.
	if st.request == token && st.state != Idle && st.pathID == 0 {
		st.pathID = pathID
	}
	c.logger.Debug("path requested",
		slog.String("agent", id),
		slog.Int("path_id", pathID),
		slog.Any("start", start),
		slog.Any("end", end))
	return pathID, nil
}

func (c *Controller) onSearchDone(st *agentState, res Result) {
	id := st.agent.ID()
	st.pathID = res.ID
	// An empty path (start and destination on one tile) has nothing to
	// follow and is reported like a missing one.
	if !res.Found || len(res.Path) == 0 {
		c.notFound(st, nil)
		return
	}

	reversed := make([]Cell, len(res.Path))
	for i, cell := range res.Path {
		reversed[len(res.Path)-1-i] = cell
	}
	remaining := []Cell{}
	if len(res.Path) > 1 {
		remaining = append(remaining, res.Path[1:]...)
	}

	c.stats.Found++
	st.path = remaining
	st.reversed = reversed
	st.state = Following
	c.emit(st.opts.OnEvent, Event{
		Kind:     PathFound,
		AgentID:  id,
		PathID:   st.pathID,
		Path:     slices.Clone(remaining),
		Reversed: slices.Clone(reversed),
	})
}

// End cancels the agent's request and stops it. Calling End on an idle
// agent does nothing.
func (c *Controller) End(agent Agent) {
	if agent == nil {
		return
	}
	if c.end(agent.ID()) {
		c.stats.Cancelled++
	}
}

func (c *Controller) end(id string) bool {
	st, ok := c.agents[id]
	if !ok || st.state == Idle {
		return false
	}
	if st.pathID != 0 {
		st.engine.CancelPath(st.pathID)
	}
	st.reset()
	st.agent.Stop()
	return true
}

// Forget drops every record of an agent. Hosts call it when the agent is
// destroyed; no callback for it fires afterwards.
func (c *Controller) Forget(agentID string) {
	st, ok := c.agents[agentID]
	if !ok {
		return
	}
	if st.pathID != 0 {
		st.engine.CancelPath(st.pathID)
	}
	st.reset()
	delete(c.agents, agentID)
}

// Update advances every searching or following agent by one tick. A panic
// while updating one agent ends that agent's request only.
func (c *Controller) Update() {
	for _, id := range slices.Sorted(maps.Keys(c.agents)) {
		st, ok := c.agents[id]
		if !ok || st.state == Idle {
			continue
		}
		c.safeStep(id, st)
	}
}

func (c *Controller) safeStep(id string, st *agentState) {
	defer func() {
		if r := recover(); r != nil {
			c.stats.Recovered++
			c.logger.Warn("agent update failed",
				slog.String("agent", id),
				slog.Any("panic", r))
			if cur, ok := c.agents[id]; ok && cur == st {
				func() {
					defer func() { _ = recover() }()
					c.end(id)
				}()
			}
		}
	}()
	c.step(id, st)
}

func (c *Controller) step(id string, st *agentState) {
	now := c.clock()
	elapsed := now.Sub(st.lastTime)
	if elapsed < 0 {
		elapsed = 0
	}
	if limit := c.tick * maxElapsedTicks; elapsed > limit {
		elapsed = limit
	}
	st.lastTime = now
	dt := elapsed.Seconds()

	st.engine.Calculate()
	if cur, ok := c.agents[id]; !ok || cur != st || st.state != Following {
		return
	}
	if len(st.path) == 0 && !st.moving {
		c.complete(st)
		return
	}

	pos := st.agent.Bounds().Center()
	if !st.moving {
		tw, th := c.world.TileSize()
		next := st.path[0]
		st.path = st.path[1:]
		st.target = CellCenter(next, tw, th)
		st.moving = true
		c.advance(st, pos, dt)
	} else if distance(pos, st.target) <= st.opts.MinDistance {
		st.moving = false
		st.stuck = 0
		if len(st.path) == 0 {
			c.complete(st)
			return
		}
	} else {
		c.advance(st, pos, dt)
	}

	coords := roundPoint(st.agent.Bounds().Center())
	if coords == st.stored {
		st.stuck++
		if st.stuck >= st.opts.MaxStuck {
			c.stuckOut(st)
			return
		}
	}
	st.stored = coords
}

// advance moves the agent toward its current target by speed times dt,
// never past it.
func (c *Controller) advance(st *agentState, pos Point, dt float64) {
	dx := st.target.X - pos.X
	dy := st.target.Y - pos.Y
	st.angle = math.Atan2(dy, dx)
	st.facing = facing(dx, dy)

	step := st.opts.PixelsPerSecond * dt
	if remaining := math.Hypot(dx, dy); step > remaining {
		step = remaining
	}
	if step <= 0 {
		return
	}
	mx := math.Cos(st.angle) * step
	my := math.Sin(st.angle) * step

	switch st.opts.Mode {
	case ModePosition:
		st.agent.SetPosition(pos.X+mx, pos.Y+my, st.agent.MapID())
	default:
		st.agent.StepRelative(mx, my)
	}
}

func (c *Controller) complete(st *agentState) {
	id := st.agent.ID()
	ev := Event{Kind: PathComplete, AgentID: id, PathID: st.pathID}
	handler := st.opts.OnEvent
	c.stats.Completed++
	c.end(id)
	c.emit(handler, ev)
}

func (c *Controller) stuckOut(st *agentState) {
	id := st.agent.ID()
	ev := Event{Kind: PathStuck, AgentID: id, PathID: st.pathID}
	handler := st.opts.OnEvent
	c.stats.Stuck++
	c.logger.Debug("agent stuck", slog.String("agent", id), slog.Int("ticks", st.stuck))
	c.end(id)
	c.emit(handler, ev)
}

func (c *Controller) notFound(st *agentState, blocker *Cell) {
	id := st.agent.ID()
	ev := Event{Kind: PathNotFound, AgentID: id, PathID: st.pathID, Blocker: blocker}
	handler := st.opts.OnEvent
	c.stats.NotFound++
	if st.state != Idle {
		c.end(id)
	} else {
		st.reset()
	}
	c.emit(handler, ev)
}

func (c *Controller) emit(handler EventHandler, ev Event) {
	if handler != nil {
		handler(ev)
	}
}

// State returns the agent's stored phase.
func (c *Controller) State(agentID string) State {
	if st, ok := c.agents[agentID]; ok {
		return st.state
	}
	return Idle
}

// Path returns a copy of the cells the agent still has to visit.
func (c *Controller) Path(agentID string) []Cell {
	if st, ok := c.agents[agentID]; ok {
		return slices.Clone(st.path)
	}
	return nil
}

// Active counts agents that are searching or following.
func (c *Controller) Active() int {
	n := 0
	for _, st := range c.agents {
		if st.state != Idle {
			n++
		}
	}
	return n
}

func (c *Controller) Snapshot(agentID string) (Snapshot, bool) {
	st, ok := c.agents[agentID]
	if !ok {
		return Snapshot{}, false
	}
	return c.snapshot(agentID, st), true
}

// Snapshots returns every tracked agent ordered by ID.
func (c *Controller) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(c.agents))
	for _, id := range slices.Sorted(maps.Keys(c.agents)) {
		out = append(out, c.snapshot(id, c.agents[id]))
	}
	return out
}

func (c *Controller) snapshot(id string, st *agentState) Snapshot {
	s := Snapshot{
		AgentID:   id,
		State:     st.state,
		PathID:    st.pathID,
		Position:  st.agent.Bounds().Center(),
		Remaining: slices.Clone(st.path),
		Facing:    st.facing,
		Stuck:     st.stuck,
	}
	if s.Remaining == nil {
		s.Remaining = []Cell{}
	}
	if st.moving {
		t := st.target
		s.Target = &t
	}
	return s
}

func (c *Controller) Stats() ControllerStats {
	s := c.stats
	s.Active = c.Active()
	s.Tracked = len(c.agents)
	for _, st := range c.agents {
		s.Expansions += st.engine.Stats().Expansions
	}
	return s
}
