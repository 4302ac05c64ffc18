package pathfinding

import "errors"

// Usage errors. They are returned synchronously by the call that triggered
// them and never reach the tick machinery.
var (
	ErrNoGrid            = errors.New("pathfinding: no grid set")
	ErrNoAcceptableTiles = errors.New("pathfinding: no acceptable tiles set")
	ErrOutOfBounds       = errors.New("pathfinding: point outside the grid")
	ErrUnknownMap        = errors.New("pathfinding: unknown map")
	ErrNoAgent           = errors.New("pathfinding: nil agent")
	ErrNoMap             = errors.New("pathfinding: agent has no map")
)
