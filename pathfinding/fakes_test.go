package pathfinding

import (
	"math"
	"time"
)

const testTile = 32.0

type fakeOccupant struct {
	id     string
	dense  bool
	weight *float64
	bounds Rect
}

func (o *fakeOccupant) ID() string    { return o.id }
func (o *fakeOccupant) IsDense() bool { return o.dense }
func (o *fakeOccupant) Bounds() Rect  { return o.bounds }

func (o *fakeOccupant) Weight() (float64, bool) {
	if o.weight == nil {
		return 0, false
	}
	return *o.weight, true
}

type fakeTile struct {
	cell      Cell
	dense     bool
	weight    *float64
	occupants []Occupant
}

func (t *fakeTile) Cell() Cell { return t.cell }
func (t *fakeTile) IsDense() bool { return t.dense }
func (t *fakeTile) Occupants() []Occupant { return t.occupants }
func (t *fakeTile) Weight() (float64, bool) {
	if t.weight == nil {
		return 0, false
	}
	return *t.weight, true
}

type fakeWorld struct {
	mapID      string
	cols, rows int
	tiles      []*fakeTile
	allCalls   int
}

func newFakeWorld(cols, rows int) *fakeWorld {
	w := &fakeWorld{mapID: "test", cols: cols, rows: rows}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			w.tiles = append(w.tiles, &fakeTile{cell: Cell{X: x, Y: y}})
		}
	}
	return w
}

func (w *fakeWorld) tile(x, y int) *fakeTile { return w.tiles[y*w.cols+x] }

func (w *fakeWorld) wall(x, y int) { w.tile(x, y).dense = true }

// block places a dense occupant covering the whole tile.
func (w *fakeWorld) block(x, y int, id string) *fakeOccupant {
	occ := &fakeOccupant{id: id, dense: true, bounds: tileRect(x, y)}
	t := w.tile(x, y)
	t.occupants = append(t.occupants, occ)
	return occ
}

func (w *fakeWorld) MapExists(mapID string) bool { return mapID == w.mapID }

func (w *fakeWorld) MapSize(mapID string) (int, int, error) {
	if mapID != w.mapID {
		return 0, 0, ErrUnknownMap
	}
	return w.cols, w.rows, nil
}

func (w *fakeWorld) TileSize() (float64, float64) { return testTile, testTile }

func (w *fakeWorld) TileAt(x, y float64, mapID string) Tile {
	if mapID != w.mapID {
		return nil
	}
	cx := int(math.Floor(x / testTile))
	cy := int(math.Floor(y / testTile))
	if cx < 0 || cy < 0 || cx >= w.cols || cy >= w.rows {
		return nil
	}
	return w.tile(cx, cy)
}

func (w *fakeWorld) AllTiles(mapID string) ([]Tile, error) {
	if mapID != w.mapID {
		return nil, ErrUnknownMap
	}
	w.allCalls++
	out := make([]Tile, len(w.tiles))
	for i, t := range w.tiles {
		out[i] = t
	}
	return out, nil
}

func tileRect(x, y int) Rect {
	return Rect{
		MinX: float64(x) * testTile,
		MinY: float64(y) * testTile,
		MaxX: float64(x+1) * testTile,
		MaxY: float64(y+1) * testTile,
	}
}

type fakeAgent struct {
	id        string
	mapID     string
	pos       Point
	half      float64
	pinned    bool
	panicky   bool
	steps     int
	teleports int
	stops     int
}

func newFakeAgent(id string, at Cell) *fakeAgent {
	return &fakeAgent{
		id:    id,
		mapID: "test",
		pos:   CellCenter(at, testTile, testTile),
		half:  8,
	}
}

func (a *fakeAgent) ID() string    { return a.id }
func (a *fakeAgent) MapID() string { return a.mapID }

func (a *fakeAgent) Bounds() Rect {
	return Rect{MinX: a.pos.X - a.half, MinY: a.pos.Y - a.half, MaxX: a.pos.X + a.half, MaxY: a.pos.Y + a.half}
}

func (a *fakeAgent) SetPosition(x, y float64, _ string) {
	a.teleports++
	if a.pinned {
		return
	}
	a.pos = Point{X: x, Y: y}
}

func (a *fakeAgent) StepRelative(dx, dy float64) {
	if a.panicky {
		panic("step failed")
	}
	a.steps++
	if a.pinned {
		return
	}
	a.pos.X += dx
	a.pos.Y += dy
}

func (a *fakeAgent) Stop() { a.stops++ }

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func weight(v float64) *float64 { return &v }

// grid returns a cols x rows grid of Passable cells.
func grid(cols, rows int) [][]float64 {
	g := make([][]float64, rows)
	for y := range g {
		g[y] = make([]float64, cols)
	}
	return g
}
