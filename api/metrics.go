package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"cyberia-pathway/server"

	"github.com/go-chi/chi/v5"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

// NavigationMetrics summarizes path requests and their outcomes.
type NavigationMetrics struct {
	Requests    uint64  `json:"requests"`
	Found       uint64  `json:"found"`
	NotFound    uint64  `json:"not_found"`
	Completed   uint64  `json:"completed"`
	Stuck       uint64  `json:"stuck"`
	Cancelled   uint64  `json:"cancelled"`
	Recovered   uint64  `json:"recovered"`
	Active      int     `json:"active"`
	Tracked     int     `json:"tracked"`
	Expansions  uint64  `json:"expansions"`
	SuccessRate float64 `json:"success_rate"`
	StuckRate   float64 `json:"stuck_rate"`
}

// WorldMetrics counts what the world holds.
type WorldMetrics struct {
	Maps       []string `json:"maps"`
	CachedMaps int      `json:"cached_maps"`
	Agents     int      `json:"agents"`
	Obstacles  int      `json:"obstacles"`
}

// WorkloadMetrics tracks the current navigation workload
type WorkloadMetrics struct {
	LoadPercentage float64 `json:"load_percentage"`
	MaxActive      int     `json:"max_active"`
	CurrentLoad    string  `json:"current_load"` // "low", "medium", "high", "critical"
}

// MetricsResponse is the complete metrics response structure
type MetricsResponse struct {
	Timestamp         time.Time         `json:"timestamp"`
	Health            HealthStatus      `json:"health"`
	HealthDescription string            `json:"health_description"`
	Navigation        NavigationMetrics `json:"navigation"`
	World             WorldMetrics      `json:"world"`
	Workload          WorkloadMetrics   `json:"workload"`
	Ticks             uint64            `json:"ticks"`
	Clients           int               `json:"clients"`
	ServerUptime      int64             `json:"server_uptime_sec"`
}

// MetricsHandler manages metrics collection and reporting
type MetricsHandler struct {
	nav Navigator
	mu  sync.Mutex

	maxActive int
	// Health thresholds on the share of finished paths that got stuck.
	warningStuckRate  float64
	criticalStuckRate float64
	// lastTicks detects a stalled tick loop between two scrapes.
	lastTicks uint64
	lastCheck time.Time
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(nav Navigator) *MetricsHandler {
	return &MetricsHandler{
		nav:               nav,
		maxActive:         2000,
		warningStuckRate:  0.10,
		criticalStuckRate: 0.50,
	}
}

// Routes registers metrics routes
func (h *MetricsHandler) Routes(r chi.Router) {
	r.Get("/metrics", h.GetMetrics)
	r.Get("/metrics/health", h.GetHealth)
	r.Get("/metrics/navigation", h.GetNavigation)
	r.Get("/metrics/workload", h.GetWorkload)
}

// GetMetrics returns complete metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.collectMetrics())
}

// GetHealth returns only health status
func (h *MetricsHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	metrics := h.collectMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp":   metrics.Timestamp,
		"health":      metrics.Health,
		"description": metrics.HealthDescription,
		"uptime_sec":  metrics.ServerUptime,
	})
}

// GetNavigation returns only navigation metrics
func (h *MetricsHandler) GetNavigation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.collectMetrics().Navigation)
}

// GetWorkload returns only workload metrics
func (h *MetricsHandler) GetWorkload(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.collectMetrics().Workload)
}

// collectMetrics gathers all metrics from the server
func (h *MetricsHandler) collectMetrics() *MetricsResponse {
	stats := h.nav.Stats()
	nav := navigationMetrics(stats)
	workload := h.calculateWorkloadMetrics(nav)

	h.mu.Lock()
	stalled := !h.lastCheck.IsZero() && stats.Ticks == h.lastTicks && time.Since(h.lastCheck) > time.Second
	h.lastTicks = stats.Ticks
	h.lastCheck = time.Now()
	h.mu.Unlock()

	health, desc := h.determineHealth(nav, workload, stalled)
	return &MetricsResponse{
		Timestamp:         time.Now(),
		Health:            health,
		HealthDescription: desc,
		Navigation:        nav,
		World: WorldMetrics{
			Maps:       stats.Maps,
			CachedMaps: stats.CachedMaps,
			Agents:     stats.Agents,
			Obstacles:  stats.Obstacles,
		},
		Workload:     workload,
		Ticks:        stats.Ticks,
		Clients:      stats.Clients,
		ServerUptime: stats.UptimeSec,
	}
}

func navigationMetrics(stats server.Stats) NavigationMetrics {
	n := stats.Navigation
	m := NavigationMetrics{
		Requests:   n.Requests,
		Found:      n.Found,
		NotFound:   n.NotFound,
		Completed:  n.Completed,
		Stuck:      n.Stuck,
		Cancelled:  n.Cancelled,
		Recovered:  n.Recovered,
		Active:     n.Active,
		Tracked:    n.Tracked,
		Expansions: n.Expansions,
	}
	if searched := n.Found + n.NotFound; searched > 0 {
		m.SuccessRate = float64(n.Found) / float64(searched)
	}
	if finished := n.Completed + n.Stuck; finished > 0 {
		m.StuckRate = float64(n.Stuck) / float64(finished)
	}
	return m
}

// calculateWorkloadMetrics rates the number of agents currently navigating
func (h *MetricsHandler) calculateWorkloadMetrics(nav NavigationMetrics) WorkloadMetrics {
	workload := WorkloadMetrics{
		MaxActive:      h.maxActive,
		LoadPercentage: float64(nav.Active) / float64(h.maxActive) * 100,
	}
	switch {
	case workload.LoadPercentage < 40:
		workload.CurrentLoad = "low"
	case workload.LoadPercentage < 70:
		workload.CurrentLoad = "medium"
	case workload.LoadPercentage < 90:
		workload.CurrentLoad = "high"
	default:
		workload.CurrentLoad = "critical"
	}
	return workload
}

// determineHealth determines overall health based on metrics
func (h *MetricsHandler) determineHealth(nav NavigationMetrics, workload WorkloadMetrics, stalled bool) (HealthStatus, string) {
	if stalled {
		return HealthCritical, "Tick loop is not advancing - agents are frozen"
	}
	if workload.CurrentLoad == "critical" {
		return HealthCritical, "Navigation workload at critical levels (>90%)"
	}
	if nav.StuckRate >= h.criticalStuckRate {
		return HealthDegraded, fmt.Sprintf("%.0f%% of finished paths ended stuck", nav.StuckRate*100)
	}
	if workload.CurrentLoad == "high" {
		return HealthWarning, "Navigation workload is high (70-90%) - monitor tick duration"
	}
	if nav.StuckRate >= h.warningStuckRate {
		return HealthWarning, fmt.Sprintf("%.0f%% of finished paths ended stuck", nav.StuckRate*100)
	}
	if nav.Active > 0 {
		agentStr := "agent"
		if nav.Active > 1 {
			agentStr = "agents"
		}
		return HealthHealthy, fmt.Sprintf("All systems operational - %d %s navigating", nav.Active, agentStr)
	}
	return HealthHealthy, "Server ready and operational - no agents navigating"
}
