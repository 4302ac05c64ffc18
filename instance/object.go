package instance

import (
	"cyberia-pathway/config"
	"cyberia-pathway/pathfinding"
)

// Object kinds
const (
	KindAgent    = "agent"
	KindObstacle = "obstacle"
)

// Object represents any entity standing on a map: agents and obstacles.
// Position fields are the top-left corner in world pixels.
type Object struct {
	ObjID      string       `json:"obj_id"`
	Kind       string       `json:"kind"`
	Map        string       `json:"map_id"`
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	Width      float64      `json:"width"`
	Height     float64      `json:"height"`
	Color      config.Color `json:"color"`
	IsObstacle bool         `json:"is_obstacle"` // True if the object blocks movement
	PathWeight *float64     `json:"path_weight,omitempty"`
	Moving     bool         `json:"moving"`

	world   *World
	fromMap bool // placed by the map file, replaced when it reloads
}

func (o *Object) ID() string { return o.ObjID }

func (o *Object) IsDense() bool { return o.IsObstacle }

func (o *Object) Weight() (float64, bool) {
	if o.PathWeight == nil {
		return 0, false
	}
	return *o.PathWeight, true
}

func (o *Object) Bounds() pathfinding.Rect {
	return pathfinding.Rect{MinX: o.X, MinY: o.Y, MaxX: o.X + o.Width, MaxY: o.Y + o.Height}
}

// Center returns the object's position as seen by the pathfinder.
func (o *Object) Center() pathfinding.Point {
	return o.Bounds().Center()
}

func (o *Object) MapID() string { return o.Map }

// SetPosition teleports the object so its center lands on (x, y). The
// object counts as moving when the teleport changed its position.
func (o *Object) SetPosition(x, y float64, mapID string) {
	nx, ny := x-o.Width/2, y-o.Height/2
	o.Moving = nx != o.X || ny != o.Y || mapID != o.Map
	if o.world == nil {
		o.X, o.Y = nx, ny
		return
	}
	o.world.place(o, mapID, nx, ny)
}

// StepRelative moves the object by (dx, dy), resolving each axis against
// dense tiles, dense occupants and the map edge. A blocked axis is dropped
// so the object slides along walls.
func (o *Object) StepRelative(dx, dy float64) {
	o.Moving = dx != 0 || dy != 0
	if o.world == nil {
		o.X += dx
		o.Y += dy
		return
	}
	x, y := o.X, o.Y
	if dx != 0 && o.world.free(o, x+dx, y) {
		x += dx
	}
	if dy != 0 && o.world.free(o, x, y+dy) {
		y += dy
	}
	if x != o.X || y != o.Y {
		o.world.place(o, o.Map, x, y)
	}
}

func (o *Object) Stop() { o.Moving = false }
