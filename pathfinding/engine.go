package pathfinding

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync/atomic"
)

// Direction is a compass direction on the grid, y growing downwards.
type Direction int

const (
	Up Direction = iota
	UpRight
	Right
	DownRight
	Down
	DownLeft
	Left
	UpLeft
	None
)

var directionNames = [...]string{"up", "up_right", "right", "down_right", "down", "down_left", "left", "up_left", "none"}

func (d Direction) String() string {
	if d < Up || d > None {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// directionBetween names the side a source cell lies on, seen from the
// target cell, given dx = source.X-target.X and dy = source.Y-target.Y.
func directionBetween(dx, dy int) Direction {
	switch {
	case dx == 0 && dy == -1:
		return Up
	case dx == 1 && dy == -1:
		return UpRight
	case dx == 1 && dy == 0:
		return Right
	case dx == 1 && dy == 1:
		return DownRight
	case dx == 0 && dy == 1:
		return Down
	case dx == -1 && dy == 1:
		return DownLeft
	case dx == -1 && dy == 0:
		return Left
	case dx == -1 && dy == -1:
		return UpLeft
	}
	return None
}

// Completion selects how search callbacks are delivered.
type Completion int

const (
	// DeferredCompletion queues every callback as a task that runs at the
	// start of the next Calculate call, so FindPath never calls back
	// synchronously. Calculate honours the per-call iteration budget.
	DeferredCompletion Completion = iota
	// ImmediateCompletion calls back directly and lets Calculate run every
	// queued search to completion in a single call.
	ImmediateCompletion
)

func (c Completion) String() string {
	if c == ImmediateCompletion {
		return "immediate"
	}
	return "deferred"
}

// Result is the outcome of a search. Found with an empty Path means start
// and goal were the same cell.
type Result struct {
	ID    int
	Path  []Cell
	Found bool
}

// Callback receives the outcome of a search exactly once, unless the
// search was cancelled first.
type Callback func(Result)

// searchInstance is one queued path request.
type searchInstance struct {
	id         int
	start, end Cell
	open       openList
	nodes      map[Cell]*Node
	callback   Callback
}

type completionTask struct {
	id       int
	callback Callback
	result   Result
}

// EngineStats counts engine activity since creation.
type EngineStats struct {
	Expansions uint64
	Completed  uint64
	Failed     uint64
	Cancelled  uint64
}

var nextInstanceID atomic.Int64

func newInstanceID() int {
	return int(nextInstanceID.Add(1))
}

// Engine is an incremental A* search over a cost grid. Each Calculate call
// performs a bounded number of node expansions on the head of its queue.
// An Engine is not safe for concurrent use; drive it from one tick loop.
type Engine struct {
	grid        [][]float64
	acceptable  map[float64]struct{}
	costs       map[float64]float64
	pointCosts  map[Cell]float64
	avoid       map[Cell]struct{}
	directional map[Cell][]Direction

	diagonals     bool
	cornerCutting bool
	iterations    int
	completion    Completion

	instances map[int]*searchInstance
	queue     []int
	tasks     []completionTask
	running   []completionTask

	stats  EngineStats
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithIterationsPerCalculation bounds node expansions per Calculate call.
func WithIterationsPerCalculation(n int) EngineOption {
	return func(e *Engine) { e.SetIterationsPerCalculation(n) }
}

func WithCompletion(c Completion) EngineOption {
	return func(e *Engine) { e.completion = c }
}

func WithDiagonals(enabled bool) EngineOption {
	return func(e *Engine) { e.diagonals = enabled }
}

func WithCornerCutting(enabled bool) EngineOption {
	return func(e *Engine) { e.cornerCutting = enabled }
}

func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine with corner cutting enabled, diagonals
// disabled, deferred completion and an unbounded iteration budget.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		costs:         make(map[float64]float64),
		pointCosts:    make(map[Cell]float64),
		avoid:         make(map[Cell]struct{}),
		directional:   make(map[Cell][]Direction),
		cornerCutting: true,
		iterations:    math.MaxInt,
		completion:    DeferredCompletion,
		instances:     make(map[int]*searchInstance),
		logger:        slog.Default().With(slog.String("component", "pathfinding_engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetGrid installs the cost grid. Any grid value without an explicit tile
// cost gets a step multiplier of 1.
func (e *Engine) SetGrid(grid [][]float64) {
	e.grid = grid
	for _, row := range grid {
		for _, v := range row {
			if _, ok := e.costs[v]; !ok {
				e.costs[v] = 1
			}
		}
	}
}

// SetAcceptableTiles replaces the set of grid values the search may step onto.
func (e *Engine) SetAcceptableTiles(values ...float64) {
	e.acceptable = make(map[float64]struct{}, len(values))
	for _, v := range values {
		e.acceptable[v] = struct{}{}
	}
}

// SetTileCost sets the step multiplier for every cell holding value.
func (e *Engine) SetTileCost(value, cost float64) {
	e.costs[value] = cost
}

// SetAdditionalPointCost overrides the step multiplier of one cell.
func (e *Engine) SetAdditionalPointCost(x, y int, cost float64) {
	e.pointCosts[Cell{X: x, Y: y}] = cost
}

func (e *Engine) RemoveAdditionalPointCost(x, y int) {
	delete(e.pointCosts, Cell{X: x, Y: y})
}

func (e *Engine) RemoveAllAdditionalPointCosts() {
	e.pointCosts = make(map[Cell]float64)
}

// AvoidAdditionalPoint excludes a cell regardless of its grid value.
func (e *Engine) AvoidAdditionalPoint(x, y int) {
	e.avoid[Cell{X: x, Y: y}] = struct{}{}
}

func (e *Engine) StopAvoidingAdditionalPoint(x, y int) {
	delete(e.avoid, Cell{X: x, Y: y})
}

func (e *Engine) StopAvoidingAllAdditionalPoints() {
	e.avoid = make(map[Cell]struct{})
}

// SetDirectionalCondition restricts a cell to be entered only from the
// listed sides.
func (e *Engine) SetDirectionalCondition(x, y int, allowed ...Direction) {
	e.directional[Cell{X: x, Y: y}] = append([]Direction(nil), allowed...)
}

func (e *Engine) RemoveAllDirectionalConditions() {
	e.directional = make(map[Cell][]Direction)
}

func (e *Engine) SetIterationsPerCalculation(n int) {
	if n <= 0 {
		n = math.MaxInt
	}
	e.iterations = n
}

func (e *Engine) EnableDiagonals()     { e.diagonals = true }
func (e *Engine) DisableDiagonals()    { e.diagonals = false }
func (e *Engine) EnableCornerCutting() { e.cornerCutting = true }
func (e *Engine) DisableCornerCutting() {
	e.cornerCutting = false
}

// Pending reports how many searches are still queued.
func (e *Engine) Pending() int { return len(e.instances) }

func (e *Engine) Stats() EngineStats { return e.stats }

// FindPath queues a search from (startX, startY) to (endX, endY) and
// returns its id. Trivial requests resolve without a search: equal start
// and end yield an empty found path, an unacceptable end cell yields no
// path.
func (e *Engine) FindPath(startX, startY, endX, endY int, onDone Callback) (int, error) {
	if e.acceptable == nil {
		return 0, ErrNoAcceptableTiles
	}
	if len(e.grid) == 0 || len(e.grid[0]) == 0 {
		return 0, ErrNoGrid
	}
	if !e.inBounds(startX, startY) || !e.inBounds(endX, endY) {
		return 0, fmt.Errorf("%w: (%d,%d)->(%d,%d) on %dx%d", ErrOutOfBounds,
			startX, startY, endX, endY, len(e.grid[0]), len(e.grid))
	}

	id := newInstanceID()
	if startX == endX && startY == endY {
		e.deliver(id, onDone, Result{Path: []Cell{}, Found: true})
		return id, nil
	}
	if !e.isAcceptable(e.grid[endY][endX]) {
		e.deliver(id, onDone, Result{})
		return id, nil
	}

	inst := &searchInstance{
		id:       id,
		start:    Cell{X: startX, Y: startY},
		end:      Cell{X: endX, Y: endY},
		nodes:    make(map[Cell]*Node),
		callback: onDone,
	}
	inst.open.push(e.nodeFor(inst, startX, startY, nil, 0))
	e.instances[id] = inst
	e.queue = append(e.queue, id)
	e.logger.Debug("search queued",
		slog.Int("id", id),
		slog.Any("start", inst.start),
		slog.Any("end", inst.end))
	return id, nil
}

// CancelPath drops a search, including a completion already waiting to be
// delivered. It reports whether anything was cancelled.
func (e *Engine) CancelPath(id int) bool {
	found := false
	if _, ok := e.instances[id]; ok {
		delete(e.instances, id)
		found = true
	}
	kept := e.tasks[:0]
	for _, t := range e.tasks {
		if t.id == id {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	e.tasks = kept
	for i := range e.running {
		if e.running[i].id == id && e.running[i].callback != nil {
			e.running[i].callback = nil
			found = true
		}
	}
	if found {
		e.stats.Cancelled++
		e.logger.Debug("search cancelled", slog.Int("id", id))
	}
	return found
}

// Calculate delivers deferred completions, then expands up to the
// iteration budget of nodes from the head of the queue.
func (e *Engine) Calculate() {
	e.runTasks()
	if len(e.queue) == 0 || e.grid == nil || e.acceptable == nil {
		return
	}

	for i := 0; i < e.iterations; i++ {
		if len(e.queue) == 0 {
			return
		}
		if e.completion == ImmediateCompletion {
			i = 0
		}

		id := e.queue[0]
		inst, ok := e.instances[id]
		if !ok {
			// Cancelled while queued.
			e.queue = e.queue[1:]
			continue
		}

		if inst.open.Len() == 0 {
			e.stats.Failed++
			e.finish(inst, Result{})
			continue
		}

		node := inst.open.pop()
		if node.X == inst.end.X && node.Y == inst.end.Y {
			e.stats.Completed++
			e.finish(inst, Result{Path: node.path(), Found: true})
			continue
		}

		e.stats.Expansions++
		e.expand(inst, node)
	}
}

func (e *Engine) finish(inst *searchInstance, res Result) {
	delete(e.instances, inst.id)
	e.queue = e.queue[1:]
	e.logger.Debug("search finished",
		slog.Int("id", inst.id),
		slog.Bool("found", res.Found),
		slog.Int("length", len(res.Path)))
	e.deliver(inst.id, inst.callback, res)
}

func (e *Engine) deliver(id int, cb Callback, res Result) {
	if cb == nil {
		return
	}
	res.ID = id
	if e.completion == ImmediateCompletion {
		cb(res)
		return
	}
	e.tasks = append(e.tasks, completionTask{id: id, callback: cb, result: res})
}

func (e *Engine) runTasks() {
	if len(e.tasks) == 0 {
		return
	}
	e.running = e.tasks
	e.tasks = nil
	for i := range e.running {
		// Read through the slice: an earlier callback may have cancelled it.
		t := e.running[i]
		if t.callback == nil {
			continue
		}
		// Delivered: cancelling it from its own callback is a no-op.
		e.running[i].callback = nil
		t.callback(t.result)
	}
	e.running = nil
}

func (e *Engine) expand(inst *searchInstance, node *Node) {
	rows := len(e.grid)
	cols := len(e.grid[0])
	x, y := node.X, node.Y

	if y > 0 {
		e.checkAdjacent(inst, node, 0, -1, e.tileCost(x, y-1))
	}
	if x < cols-1 {
		e.checkAdjacent(inst, node, 1, 0, e.tileCost(x+1, y))
	}
	if y < rows-1 {
		e.checkAdjacent(inst, node, 0, 1, e.tileCost(x, y+1))
	}
	if x > 0 {
		e.checkAdjacent(inst, node, -1, 0, e.tileCost(x-1, y))
	}
	if !e.diagonals {
		return
	}

	if x > 0 && y > 0 &&
		(e.cornerCutting || e.walkable(x, y-1, node) && e.walkable(x-1, y, node)) {
		e.checkAdjacent(inst, node, -1, -1, diagonalStep*e.tileCost(x-1, y-1))
	}
	if x < cols-1 && y < rows-1 &&
		(e.cornerCutting || e.walkable(x, y+1, node) && e.walkable(x+1, y, node)) {
		e.checkAdjacent(inst, node, 1, 1, diagonalStep*e.tileCost(x+1, y+1))
	}
	if x < cols-1 && y > 0 &&
		(e.cornerCutting || e.walkable(x, y-1, node) && e.walkable(x+1, y, node)) {
		e.checkAdjacent(inst, node, 1, -1, diagonalStep*e.tileCost(x+1, y-1))
	}
	if x > 0 && y < rows-1 &&
		(e.cornerCutting || e.walkable(x, y+1, node) && e.walkable(x-1, y, node)) {
		e.checkAdjacent(inst, node, -1, 1, diagonalStep*e.tileCost(x-1, y+1))
	}
}

func (e *Engine) checkAdjacent(inst *searchInstance, from *Node, dx, dy int, cost float64) {
	x, y := from.X+dx, from.Y+dy
	if _, avoided := e.avoid[Cell{X: x, Y: y}]; avoided {
		return
	}
	if !e.walkable(x, y, from) {
		return
	}

	node := e.nodeFor(inst, x, y, from, cost)
	if !node.opened {
		inst.open.push(node)
		return
	}
	if next := from.CostSoFar + cost; next < node.CostSoFar {
		node.CostSoFar = next
		node.Parent = from
		inst.open.update(node)
	}
}

// nodeFor returns the instance's node for (x, y), creating it on first use.
func (e *Engine) nodeFor(inst *searchInstance, x, y int, parent *Node, cost float64) *Node {
	c := Cell{X: x, Y: y}
	if n, ok := inst.nodes[c]; ok {
		return n
	}
	n := &Node{X: x, Y: y, Parent: parent, Heuristic: e.distance(x, y, inst.end.X, inst.end.Y), index: -1}
	if parent != nil {
		n.CostSoFar = parent.CostSoFar + cost
	}
	inst.nodes[c] = n
	return n
}

func (e *Engine) walkable(x, y int, from *Node) bool {
	if allowed, ok := e.directional[Cell{X: x, Y: y}]; ok {
		if !slices.Contains(allowed, directionBetween(from.X-x, from.Y-y)) {
			return false
		}
	}
	return e.isAcceptable(e.grid[y][x])
}

func (e *Engine) isAcceptable(v float64) bool {
	_, ok := e.acceptable[v]
	return ok
}

func (e *Engine) tileCost(x, y int) float64 {
	if c, ok := e.pointCosts[Cell{X: x, Y: y}]; ok && c != 0 {
		return c
	}
	return e.costs[e.grid[y][x]]
}

func (e *Engine) distance(x1, y1, x2, y2 int) float64 {
	if e.diagonals {
		return octile(x1, y1, x2, y2)
	}
	return manhattan(x1, y1, x2, y2)
}

func (e *Engine) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && y < len(e.grid) && x < len(e.grid[0])
}
