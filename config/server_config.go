package config

import "time"

// Navigation defaults
const (
	DefaultTickInterval             = 16 * time.Millisecond
	DefaultIterationsPerCalculation = 1000
	DefaultAgentSpeed               = 120.0
	DefaultMaxStuckTicks            = 100
	DefaultMinArrivalDistance       = 2.0
)

// World dimensions and object sizes
const (
	DefaultTileSize = 32.0
	// AgentSize is the side of an agent's square bounding box in pixels.
	AgentSize = 20.0
)

// DefaultMapID is used when a request names no map.
const DefaultMapID = "map_alpha"

// Color represents a simplified RGBA representation. Clients interpret
// these values for rendering.
type Color struct {
	R, G, B, A uint8
}

// Predefined Colors
var (
	AgentColor    = Color{0, 121, 241, 255}
	ObstacleColor = Color{R: 255, G: 165, B: 0, A: 255}
)
