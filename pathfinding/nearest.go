package pathfinding

import "math"

// MaxNearestRing bounds how far, in half-tile steps, the resolver probes
// along each cardinal ray.
const MaxNearestRing = 6

// Sides marks compass sides as blocked.
type Sides struct {
	Left, Right, Up, Down bool
}

// All reports whether every side is blocked.
func (s Sides) All() bool {
	return s.Left && s.Right && s.Up && s.Down
}

// Merge returns the union of both sets.
func (s Sides) Merge(o Sides) Sides {
	return Sides{
		Left:  s.Left || o.Left,
		Right: s.Right || o.Right,
		Up:    s.Up || o.Up,
		Down:  s.Down || o.Down,
	}
}

// BlockingSides derives which sides an obstacle centered at obstacle blocks
// for a route from start to end. An obstacle lying between the two along an
// axis blocks the side facing the destination.
func BlockingSides(obstacle, start, end Point) Sides {
	return Sides{
		Left:  end.X <= obstacle.X && start.X >= obstacle.X,
		Right: end.X >= obstacle.X && start.X <= obstacle.X,
		Up:    end.Y <= obstacle.Y && start.Y >= obstacle.Y,
		Down:  end.Y >= obstacle.Y && start.Y <= obstacle.Y,
	}
}

// Resolver finds a usable substitute for a blocked start or end tile.
type Resolver struct {
	World  World
	MapID  string
	Ignore IgnoreList
	// AgentBounds is used for the perpendicular clearance check when
	// resolving a start tile.
	AgentBounds Rect
	// MaxRing defaults to MaxNearestRing when zero.
	MaxRing int
}

type ray struct {
	dx, dy float64
	side   *bool
	// horizontal rays check clearance on the Y axis, vertical ones on X.
	horizontal bool
}

// Nearest probes the four cardinal rays from originPos in half-tile steps
// and returns the unblocked tile closest to origin, plus the updated set of
// blocked sides. A ray blocked at its first step is abandoned and marked
// blocked; rays already blocked are skipped. When nothing qualifies the
// origin is returned unchanged.
func (r *Resolver) Nearest(origin Cell, originPos Point, blocked Sides, isStart bool) (Cell, Sides) {
	maxRing := r.MaxRing
	if maxRing <= 0 {
		maxRing = MaxNearestRing
	}
	tw, th := r.World.TileSize()

	rays := []ray{
		{dx: -tw / 2, side: &blocked.Left, horizontal: true},
		{dx: tw / 2, side: &blocked.Right, horizontal: true},
		{dy: -th / 2, side: &blocked.Up},
		{dy: th / 2, side: &blocked.Down},
	}
	rings := make([]int, len(rays))

	var candidates []Cell
	seen := make(map[Cell]bool)

	for i := 1; i <= maxRing; i++ {
		for k, rr := range rays {
			tile := r.World.TileAt(originPos.X+rr.dx*float64(i), originPos.Y+rr.dy*float64(i), r.MapID)
			if tile == nil {
				continue
			}
			c := tile.Cell()
			if c == origin {
				continue
			}
			rings[k]++
			if *rr.side {
				continue
			}
			if r.blocks(tile, rr.horizontal, isStart) {
				if rings[k] <= 1 {
					*rr.side = true
				}
				continue
			}
			if !seen[c] {
				seen[c] = true
				candidates = append(candidates, c)
			}
		}
	}

	best := origin
	bestDist := math.Inf(1)
	for _, c := range candidates {
		d := cellDistance(origin, c)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, blocked
}

func (r *Resolver) blocks(tile Tile, horizontal, isStart bool) bool {
	var filter OccupantFilter
	if isStart {
		a := r.AgentBounds
		filter = func(o Occupant) bool {
			b := o.Bounds()
			if horizontal {
				return b.MinY <= a.MaxY && b.MaxY >= a.MinY
			}
			return b.MinX <= a.MaxX && b.MaxX >= a.MinX
		}
	}
	return Blocked(tile, r.Ignore, filter)
}

func cellDistance(a, b Cell) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
