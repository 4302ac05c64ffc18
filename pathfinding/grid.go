package pathfinding

import (
	"fmt"
	"sync"
)

const (
	// Passable is the cost of an open tile with no explicit weight.
	Passable = 0.0
	// NoTravel marks a tile the search may never step onto. Legal costs are
	// never negative, so the sentinel cannot collide with one.
	NoTravel = -1.0
)

// IgnoreList is a per-request set of tiles and occupants treated as
// non-blocking for that request only.
type IgnoreList struct {
	tiles     map[Cell]struct{}
	occupants map[string]struct{}
}

// NewIgnoreList builds a list holding the given occupant IDs.
func NewIgnoreList(occupantIDs ...string) IgnoreList {
	var l IgnoreList
	for _, id := range occupantIDs {
		l.AddOccupant(id)
	}
	return l
}

func (l *IgnoreList) AddTile(c Cell) {
	if l.tiles == nil {
		l.tiles = make(map[Cell]struct{})
	}
	l.tiles[c] = struct{}{}
}

func (l *IgnoreList) AddOccupant(id string) {
	if l.occupants == nil {
		l.occupants = make(map[string]struct{})
	}
	l.occupants[id] = struct{}{}
}

func (l IgnoreList) HasTile(c Cell) bool {
	_, ok := l.tiles[c]
	return ok
}

func (l IgnoreList) HasOccupant(id string) bool {
	_, ok := l.occupants[id]
	return ok
}

// Clone returns an independent copy so a request can extend it safely.
func (l IgnoreList) Clone() IgnoreList {
	var c IgnoreList
	for t := range l.tiles {
		c.AddTile(t)
	}
	for id := range l.occupants {
		c.AddOccupant(id)
	}
	return c
}

// GridInfo is the output of a grid build.
type GridInfo struct {
	Grid     [][]float64 // Grid[y][x]
	Accepted []float64   // costs the search may step onto, Passable first
	Weights  []float64   // non-default costs, used to program the cost table
}

type cachedMap struct {
	tiles      []Tile
	cols, rows int
}

// TileCache memoizes each map's row-major tile layout.
// Entries stay valid until Invalidate is called for the map.
type TileCache struct {
	mu      sync.RWMutex
	entries map[string]*cachedMap
}

func NewTileCache() *TileCache {
	return &TileCache{entries: make(map[string]*cachedMap)}
}

// Invalidate drops the cached layout of one map. Call it when the host
// changes the map's geometry.
func (c *TileCache) Invalidate(mapID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, mapID)
}

func (c *TileCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cachedMap)
}

// Len reports how many maps are cached.
func (c *TileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TileCache) load(world World, mapID string) (*cachedMap, error) {
	c.mu.RLock()
	m, ok := c.entries[mapID]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	if !world.MapExists(mapID) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMap, mapID)
	}
	cols, rows, err := world.MapSize(mapID)
	if err != nil {
		return nil, fmt.Errorf("map size %q: %w", mapID, err)
	}
	tiles, err := world.AllTiles(mapID)
	if err != nil {
		return nil, fmt.Errorf("tiles of %q: %w", mapID, err)
	}
	if len(tiles) != cols*rows {
		return nil, fmt.Errorf("map %q: %d tiles for a %dx%d map", mapID, len(tiles), cols, rows)
	}

	m = &cachedMap{tiles: append([]Tile(nil), tiles...), cols: cols, rows: rows}
	c.mu.Lock()
	c.entries[mapID] = m
	c.mu.Unlock()
	return m, nil
}

// GridBuilder converts host tile and occupant state into a cost grid.
type GridBuilder struct {
	world World
	cache *TileCache
}

func NewGridBuilder(world World, cache *TileCache) *GridBuilder {
	if cache == nil {
		cache = NewTileCache()
	}
	return &GridBuilder{world: world, cache: cache}
}

func (b *GridBuilder) Cache() *TileCache { return b.cache }

// Build produces a fresh grid for mapID. Tiles in ignore are passable,
// dense tiles and tiles holding a dense, non-ignored, unweighted occupant
// are NoTravel, and every other tile costs its own weight plus the weights
// of its occupants.
func (b *GridBuilder) Build(mapID string, ignore IgnoreList) (GridInfo, error) {
	m, err := b.cache.load(b.world, mapID)
	if err != nil {
		return GridInfo{}, err
	}

	info := GridInfo{
		Grid:     make([][]float64, m.rows),
		Accepted: []float64{Passable},
	}
	seen := map[float64]bool{Passable: true}

	for y := 0; y < m.rows; y++ {
		row := make([]float64, m.cols)
		for x := 0; x < m.cols; x++ {
			cost := tileCost(m.tiles[y*m.cols+x], ignore)
			row[x] = cost
			if cost != NoTravel && !seen[cost] {
				seen[cost] = true
				info.Accepted = append(info.Accepted, cost)
				info.Weights = append(info.Weights, cost)
			}
		}
		info.Grid[y] = row
	}
	return info, nil
}

func tileCost(tile Tile, ignore IgnoreList) float64 {
	if ignore.HasTile(tile.Cell()) {
		return Passable
	}
	if tile.IsDense() {
		return NoTravel
	}

	cost := Passable
	if w, ok := tile.Weight(); ok && w >= 0 {
		cost = w
	}
	for _, occ := range tile.Occupants() {
		w, weighted := occ.Weight()
		if weighted && w < 0 {
			weighted = false
		}
		if occ.IsDense() && !ignore.HasOccupant(occ.ID()) && !weighted {
			return NoTravel
		}
		if weighted {
			cost += w
		}
	}
	return cost
}

// OccupantFilter narrows which dense occupants count as blocking.
type OccupantFilter func(Occupant) bool

// Blocked reports whether a tile physically blocks a request: the tile
// itself is dense and not ignored, or it holds a dense, non-ignored
// occupant accepted by filter (nil accepts all).
func Blocked(tile Tile, ignore IgnoreList, filter OccupantFilter) bool {
	if tile == nil {
		return false
	}
	if tile.IsDense() && !ignore.HasTile(tile.Cell()) {
		return true
	}
	for _, occ := range tile.Occupants() {
		if !occ.IsDense() || ignore.HasOccupant(occ.ID()) {
			continue
		}
		if filter == nil || filter(occ) {
			return true
		}
	}
	return false
}
