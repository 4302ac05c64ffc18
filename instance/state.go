package instance

import (
	"fmt"
	"log"
	"maps"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"cyberia-pathway/config"
	"cyberia-pathway/pathfinding"

	"github.com/google/uuid"
)

// Tile is a single cell of a map. Occupants are kept in arrival order.
type Tile struct {
	cell      pathfinding.Cell
	Glyph     string
	dense     bool
	weight    *float64
	occupants []*Object
}

func (t *Tile) Cell() pathfinding.Cell { return t.cell }

func (t *Tile) IsDense() bool { return t.dense }

func (t *Tile) Weight() (float64, bool) {
	if t.weight == nil {
		return 0, false
	}
	return *t.weight, true
}

func (t *Tile) Occupants() []pathfinding.Occupant {
	out := make([]pathfinding.Occupant, len(t.occupants))
	for i, o := range t.occupants {
		out[i] = o
	}
	return out
}

func (t *Tile) remove(o *Object) {
	t.occupants = slices.DeleteFunc(t.occupants, func(x *Object) bool { return x == o })
}

// Map is a grid of tiles loaded from a map definition.
type Map struct {
	ID     string
	Cols   int
	Rows   int
	Spawns []pathfinding.Cell
	Source string // file the map was loaded from, if any

	tiles []*Tile // row-major
}

func (m *Map) tile(x, y int) *Tile {
	if x < 0 || y < 0 || x >= m.Cols || y >= m.Rows {
		return nil
	}
	return m.tiles[y*m.Cols+x]
}

// World holds every map and object of the instance. It implements
// pathfinding.World. World methods do not lock: callers hold Mu.
type World struct {
	Mu sync.Mutex

	tileW, tileH float64
	maps         map[string]*Map
	objects      map[string]*Object
	rng          *rand.Rand
}

// NewWorld returns an empty world with square tiles of the given size.
func NewWorld(tileSize float64) *World {
	if tileSize <= 0 {
		tileSize = config.DefaultTileSize
	}
	return &World{
		tileW:   tileSize,
		tileH:   tileSize,
		maps:    make(map[string]*Map),
		objects: make(map[string]*Object),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (w *World) MapExists(mapID string) bool {
	_, ok := w.maps[mapID]
	return ok
}

func (w *World) MapSize(mapID string) (int, int, error) {
	m, ok := w.maps[mapID]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", pathfinding.ErrUnknownMap, mapID)
	}
	return m.Cols, m.Rows, nil
}

func (w *World) TileSize() (float64, float64) { return w.tileW, w.tileH }

func (w *World) TileAt(x, y float64, mapID string) pathfinding.Tile {
	t := w.tileAt(x, y, mapID)
	if t == nil {
		return nil
	}
	return t
}

func (w *World) tileAt(x, y float64, mapID string) *Tile {
	m, ok := w.maps[mapID]
	if !ok {
		return nil
	}
	cx, cy := w.WorldToCell(x, y)
	return m.tile(cx, cy)
}

func (w *World) AllTiles(mapID string) ([]pathfinding.Tile, error) {
	m, ok := w.maps[mapID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pathfinding.ErrUnknownMap, mapID)
	}
	out := make([]pathfinding.Tile, len(m.tiles))
	for i, t := range m.tiles {
		out[i] = t
	}
	return out, nil
}

// WorldToCell converts world coordinates to tile indices.
func (w *World) WorldToCell(x, y float64) (int, int) {
	return int(math.Floor(x / w.tileW)), int(math.Floor(y / w.tileH))
}

// CellToWorld converts tile indices to the world coordinates of the tile center.
func (w *World) CellToWorld(c pathfinding.Cell) pathfinding.Point {
	return pathfinding.CellCenter(c, w.tileW, w.tileH)
}

// Map returns a loaded map.
func (w *World) Map(mapID string) (*Map, bool) {
	m, ok := w.maps[mapID]
	return m, ok
}

// MapIDs lists loaded maps in name order.
func (w *World) MapIDs() []string {
	return slices.Sorted(maps.Keys(w.maps))
}

// RemoveMap unloads a map and every object standing on it.
func (w *World) RemoveMap(mapID string) bool {
	if _, ok := w.maps[mapID]; !ok {
		return false
	}
	for id, o := range w.objects {
		if o.Map == mapID {
			delete(w.objects, id)
			o.world = nil
		}
	}
	delete(w.maps, mapID)
	log.Printf("Map removed: %s", mapID)
	return true
}

// SpawnAgent places a new agent on a spawn point of the map, or on a random
// free tile when every spawn point is taken.
func (w *World) SpawnAgent(mapID string) (*Object, error) {
	c, err := w.spawnCell(mapID)
	if err != nil {
		return nil, err
	}
	return w.SpawnAgentAt(mapID, c)
}

// Relocate moves an object to a free spawn location of another map.
func (w *World) Relocate(o *Object, mapID string) error {
	c, err := w.spawnCell(mapID)
	if err != nil {
		return err
	}
	center := w.CellToWorld(c)
	w.place(o, mapID, center.X-o.Width/2, center.Y-o.Height/2)
	return nil
}

func (w *World) spawnCell(mapID string) (pathfinding.Cell, error) {
	m, ok := w.maps[mapID]
	if !ok {
		return pathfinding.Cell{}, fmt.Errorf("%w: %q", pathfinding.ErrUnknownMap, mapID)
	}
	for _, c := range m.Spawns {
		if t := m.tile(c.X, c.Y); t != nil && w.tileFree(t) {
			return c, nil
		}
	}
	return w.RandomAvailableCell(mapID)
}

// SpawnAgentAt places a new agent centered on a tile.
func (w *World) SpawnAgentAt(mapID string, c pathfinding.Cell) (*Object, error) {
	m, ok := w.maps[mapID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pathfinding.ErrUnknownMap, mapID)
	}
	if m.tile(c.X, c.Y) == nil {
		return nil, fmt.Errorf("%w: (%d,%d) on %s", pathfinding.ErrOutOfBounds, c.X, c.Y, mapID)
	}
	center := w.CellToWorld(c)
	size := math.Min(config.AgentSize, math.Min(w.tileW, w.tileH))
	agent := &Object{
		ObjID:      uuid.New().String(),
		Kind:       KindAgent,
		Width:      size,
		Height:     size,
		Color:      config.AgentColor,
		IsObstacle: true,
	}
	w.add(agent, mapID, center.X-size/2, center.Y-size/2)
	return agent, nil
}

// AddObstacle adds a dense obstacle covering r. A non-nil weight makes it
// traversable at that extra cost.
func (w *World) AddObstacle(mapID string, r pathfinding.Rect, weight *float64) (*Object, error) {
	if _, ok := w.maps[mapID]; !ok {
		return nil, fmt.Errorf("%w: %q", pathfinding.ErrUnknownMap, mapID)
	}
	obs := &Object{
		ObjID:      uuid.New().String(),
		Kind:       KindObstacle,
		Width:      r.MaxX - r.MinX,
		Height:     r.MaxY - r.MinY,
		Color:      config.ObstacleColor,
		IsObstacle: true,
		PathWeight: weight,
	}
	w.add(obs, mapID, r.MinX, r.MinY)
	return obs, nil
}

func (w *World) add(o *Object, mapID string, x, y float64) {
	if _, exists := w.objects[o.ObjID]; exists {
		log.Printf("WARNING: Object with ID %s already exists, cannot add.", o.ObjID)
		return
	}
	o.world = w
	w.objects[o.ObjID] = o
	w.place(o, mapID, x, y)
}

// RemoveObject removes an object by ID.
func (w *World) RemoveObject(id string) bool {
	o, ok := w.objects[id]
	if !ok {
		return false
	}
	w.unregister(o)
	delete(w.objects, id)
	o.world = nil
	return true
}

func (w *World) Object(id string) (*Object, bool) {
	o, ok := w.objects[id]
	return o, ok
}

// Objects lists objects of a kind (all kinds when empty) ordered by ID.
func (w *World) Objects(kind string) []*Object {
	var out []*Object
	for _, id := range slices.Sorted(maps.Keys(w.objects)) {
		if o := w.objects[id]; kind == "" || o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

// RandomAvailableCell picks a tile that is neither dense nor occupied by a
// dense object.
func (w *World) RandomAvailableCell(mapID string) (pathfinding.Cell, error) {
	m, ok := w.maps[mapID]
	if !ok {
		return pathfinding.Cell{}, fmt.Errorf("%w: %q", pathfinding.ErrUnknownMap, mapID)
	}
	var available []pathfinding.Cell
	for _, t := range m.tiles {
		if w.tileFree(t) {
			available = append(available, t.cell)
		}
	}
	if len(available) == 0 {
		return pathfinding.Cell{}, fmt.Errorf("no available positions found on map %s", mapID)
	}
	return available[w.rng.Intn(len(available))], nil
}

func (w *World) tileFree(t *Tile) bool {
	return !pathfinding.Blocked(t, pathfinding.IgnoreList{}, nil)
}

// place moves o to (x, y) on mapID and refreshes its tile registration.
func (w *World) place(o *Object, mapID string, x, y float64) {
	w.unregister(o)
	o.Map = mapID
	o.X, o.Y = x, y
	m, ok := w.maps[mapID]
	if !ok {
		return
	}
	for _, t := range w.tilesIn(m, o.Bounds()) {
		t.occupants = append(t.occupants, o)
	}
}

func (w *World) unregister(o *Object) {
	m, ok := w.maps[o.Map]
	if !ok {
		return
	}
	for _, t := range w.tilesIn(m, o.Bounds()) {
		t.remove(o)
	}
}

// tilesIn returns the tiles a box overlaps. The max edges are exclusive.
func (w *World) tilesIn(m *Map, r pathfinding.Rect) []*Tile {
	minX, minY := w.WorldToCell(r.MinX, r.MinY)
	maxX := int(math.Ceil(r.MaxX/w.tileW)) - 1
	maxY := int(math.Ceil(r.MaxY/w.tileH)) - 1
	minX, minY = max(minX, 0), max(minY, 0)
	maxX, maxY = min(maxX, m.Cols-1), min(maxY, m.Rows-1)

	var out []*Tile
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			out = append(out, m.tile(x, y))
		}
	}
	return out
}

// free reports whether o could stand with its top-left corner at (x, y).
func (w *World) free(o *Object, x, y float64) bool {
	m, ok := w.maps[o.Map]
	if !ok {
		return false
	}
	box := pathfinding.Rect{MinX: x, MinY: y, MaxX: x + o.Width, MaxY: y + o.Height}
	if box.MinX < 0 || box.MinY < 0 ||
		box.MaxX > float64(m.Cols)*w.tileW || box.MaxY > float64(m.Rows)*w.tileH {
		return false
	}
	for _, t := range w.tilesIn(m, box) {
		if t.dense {
			return false
		}
		for _, other := range t.occupants {
			if other == o || !other.IsObstacle || other.PathWeight != nil {
				continue
			}
			if checkAABBCollision(box, other.Bounds()) {
				return false
			}
		}
	}
	return true
}

// checkAABBCollision checks for overlap between two axis-aligned boxes.
func checkAABBCollision(a, b pathfinding.Rect) bool {
	return a.MinX < b.MaxX && a.MaxX > b.MinX && a.MinY < b.MaxY && a.MaxY > b.MinY
}
