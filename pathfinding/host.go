package pathfinding

import "math"

// Cell is a 0-based (column, row) grid coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Point is a world-space position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned box in world space.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Center returns the midpoint of the box.
func (r Rect) Center() Point {
	return Point{X: (r.MinX + r.MaxX) / 2, Y: (r.MinY + r.MaxY) / 2}
}

// Occupant is anything standing on a tile that may block or weigh traversal.
type Occupant interface {
	ID() string
	IsDense() bool
	// Weight reports an explicit pathway weight. ok is false when unset.
	Weight() (weight float64, ok bool)
	Bounds() Rect
}

// Tile is a single cell of a host map.
type Tile interface {
	Cell() Cell
	IsDense() bool
	Weight() (weight float64, ok bool)
	Occupants() []Occupant
}

// World is the host map API the grid builder and controller read from.
type World interface {
	MapExists(mapID string) bool
	MapSize(mapID string) (cols, rows int, err error)
	TileSize() (w, h float64)
	// TileAt returns nil when the position is outside the map.
	TileAt(x, y float64, mapID string) Tile
	// AllTiles returns every tile of the map in row-major order.
	AllTiles(mapID string) ([]Tile, error)
}

// Agent is a host entity that can be driven along a path.
// The center of Bounds is the agent's position, and SetPosition places
// that center.
type Agent interface {
	ID() string
	MapID() string
	Bounds() Rect
	SetPosition(x, y float64, mapID string)
	StepRelative(dx, dy float64)
	Stop()
}

// CellCenter converts a grid cell to the world position of its center.
func CellCenter(c Cell, tileW, tileH float64) Point {
	return Point{
		X: float64(c.X)*tileW + tileW/2,
		Y: float64(c.Y)*tileH + tileH/2,
	}
}

func distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func roundPoint(p Point) Point {
	return Point{X: math.Round(p.X), Y: math.Round(p.Y)}
}
