package pathfinding

import (
	"fmt"
	"math"
)

// EventKind tags a path lifecycle outcome.
type EventKind int

const (
	PathFound EventKind = iota + 1
	PathNotFound
	PathComplete
	PathStuck
)

func (k EventKind) String() string {
	switch k {
	case PathFound:
		return "path_found"
	case PathNotFound:
		return "path_not_found"
	case PathComplete:
		return "path_complete"
	case PathStuck:
		return "path_stuck"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(b []byte) error {
	for c := PathFound; c <= PathStuck; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// Event is delivered to an EventHandler when a request changes phase.
type Event struct {
	Kind    EventKind `json:"kind"`
	AgentID string    `json:"agent_id"`
	PathID  int       `json:"path_id"`
	// Path holds the remaining cells to visit on PathFound.
	Path []Cell `json:"path,omitempty"`
	// Reversed is the full path back to the origin, origin included.
	Reversed []Cell `json:"reversed,omitempty"`
	// Blocker is the blocked tile that caused a PathNotFound, when known.
	Blocker *Cell `json:"blocker,omitempty"`
}

type EventHandler func(Event)

// Mode selects how the controller moves an agent.
type Mode int

const (
	// ModeCollision moves with Agent.StepRelative so the host can resolve
	// collisions.
	ModeCollision Mode = iota
	// ModePosition teleports the agent with Agent.SetPosition.
	ModePosition
)

func (m Mode) String() string {
	if m == ModePosition {
		return "position"
	}
	return "collision"
}

// ParseMode accepts "collision" and "position".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "collision":
		return ModeCollision, nil
	case "position":
		return ModePosition, nil
	}
	return ModeCollision, fmt.Errorf("unknown movement mode %q", s)
}

// State is the stored phase of an agent's path request.
type State int

const (
	Idle State = iota
	Searching
	Following
)

func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case Following:
		return "following"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for c := Idle; c <= Following; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	for i, name := range directionNames {
		if name == string(b) {
			*d = Direction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown direction %q", b)
}

// facing converts a movement vector (y down) into one of eight compass
// directions.
func facing(dx, dy float64) Direction {
	if dx == 0 && dy == 0 {
		return None
	}
	angle := math.Atan2(dy, dx)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	return Direction((int(math.Round(angle/(math.Pi/4))) + 2) % 8)
}
