package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr                 string
	GRPCAddr                 string
	MapsDir                  string
	TickInterval             time.Duration
	IterationsPerCalculation int
	SearchSync               bool
	AgentSpeed               float64
	MaxStuckTicks            int
	MinArrivalDistance       float64
	TileSize                 float64
	WatchMaps                bool
	CORSOrigins              []string
	StaticDir                string
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) Config {
	if err := godotenv.Load(files...); err != nil {
		log.Printf("No .env file loaded (%v), using process environment", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	cfg := Config{
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:                 getEnv("GRPC_ADDR", ":9090"),
		MapsDir:                  getEnv("MAPS_DIR", "./maps"),
		TickInterval:             parseDuration(getEnv("TICK_INTERVAL", "16ms"), DefaultTickInterval),
		IterationsPerCalculation: parseInt(getEnv("ITERATIONS_PER_CALCULATION", "1000"), DefaultIterationsPerCalculation),
		SearchSync:               parseBool(getEnv("SEARCH_SYNC", "false"), false),
		AgentSpeed:               parseFloat(getEnv("AGENT_SPEED", "120"), DefaultAgentSpeed),
		MaxStuckTicks:            parseInt(getEnv("MAX_STUCK_TICKS", "100"), DefaultMaxStuckTicks),
		MinArrivalDistance:       parseFloat(getEnv("MIN_ARRIVAL_DISTANCE", "2"), DefaultMinArrivalDistance),
		TileSize:                 parseFloat(getEnv("TILE_SIZE", "32"), DefaultTileSize),
		WatchMaps:                parseBool(getEnv("WATCH_MAPS", "true"), true),
		CORSOrigins:              parseList(getEnv("CORS_ORIGINS", "*")),
		StaticDir:                os.Getenv("STATIC_DIR"),
		ReadTimeout:              parseDuration(getEnv("READ_TIMEOUT", "15s"), 15*time.Second),
		WriteTimeout:             parseDuration(getEnv("WRITE_TIMEOUT", "15s"), 15*time.Second),
	}
	if cfg.TickInterval <= 0 {
		log.Printf("WARNING: TICK_INTERVAL must be positive, using %s", DefaultTickInterval)
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.TileSize <= 0 {
		log.Printf("WARNING: TILE_SIZE must be positive, using %.0f", DefaultTileSize)
		cfg.TileSize = DefaultTileSize
	}
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func parseInt(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseFloat(s string, def float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func parseBool(s string, def bool) bool {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
