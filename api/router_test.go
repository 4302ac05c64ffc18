package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cyberia-pathway/config"
	"cyberia-pathway/pathfinding"
	"cyberia-pathway/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNavigator struct {
	agents      map[string]server.AgentView
	moves       map[string]server.MoveRequest
	stopped     []string
	invalidated []string
	stats       server.Stats
}

func newFakeNavigator() *fakeNavigator {
	return &fakeNavigator{
		agents: map[string]server.AgentView{
			"a1": {ID: "a1", MapID: "plaza", Position: pathfinding.Point{X: 16, Y: 16}},
		},
		moves: make(map[string]server.MoveRequest),
	}
}

func (f *fakeNavigator) Agents() []server.AgentView {
	var out []server.AgentView
	for _, a := range f.agents {
		out = append(out, a)
	}
	return out
}

func (f *fakeNavigator) Agent(id string) (server.AgentView, error) {
	a, ok := f.agents[id]
	if !ok {
		return server.AgentView{}, fmt.Errorf("%w: %s", server.ErrAgentNotFound, id)
	}
	return a, nil
}

func (f *fakeNavigator) SpawnAgent(mapID string) (server.AgentView, error) {
	if mapID != "" && mapID != "plaza" {
		return server.AgentView{}, fmt.Errorf("%w: %q", pathfinding.ErrUnknownMap, mapID)
	}
	a := server.AgentView{ID: fmt.Sprintf("a%d", len(f.agents)+1), MapID: "plaza"}
	f.agents[a.ID] = a
	return a, nil
}

func (f *fakeNavigator) RemoveAgent(id string) error {
	if _, err := f.Agent(id); err != nil {
		return err
	}
	delete(f.agents, id)
	return nil
}

func (f *fakeNavigator) Move(id string, req server.MoveRequest) (int, error) {
	if _, err := f.Agent(id); err != nil {
		return 0, err
	}
	if req.X > 1000 {
		return 0, fmt.Errorf("%w: (%.0f,%.0f)", pathfinding.ErrOutOfBounds, req.X, req.Y)
	}
	f.moves[id] = req
	return 7, nil
}

func (f *fakeNavigator) Stop(id string) error {
	if _, err := f.Agent(id); err != nil {
		return err
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeNavigator) InvalidateMap(mapID string) error {
	if mapID != "plaza" {
		return fmt.Errorf("%w: %q", pathfinding.ErrUnknownMap, mapID)
	}
	f.invalidated = append(f.invalidated, mapID)
	return nil
}

func (f *fakeNavigator) Stats() server.Stats { return f.stats }

func newTestRouter(nav Navigator) http.Handler {
	return NewAPIRouter(config.Config{CORSOrigins: []string{"http://game.test"}}, nav)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(newFakeNavigator()), http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAgentRoutes(t *testing.T) {
	nav := newFakeNavigator()
	h := newTestRouter(nav)

	rec := do(t, h, http.MethodGet, "/v1/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]server.AgentView](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/v1/agents/a1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plaza", decode[server.AgentView](t, rec).MapID)

	rec = do(t, h, http.MethodGet, "/v1/agents/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[apiError](t, rec).Error, "agent not found")

	rec = do(t, h, http.MethodPost, "/v1/agents", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	spawned := decode[server.AgentView](t, rec)
	assert.Equal(t, "a2", spawned.ID)

	rec = do(t, h, http.MethodPost, "/v1/agents", `{"map_id":"nowhere"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/v1/agents/a2", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, nav.agents, "a2")
}

func TestMoveAndStop(t *testing.T) {
	nav := newFakeNavigator()
	h := newTestRouter(nav)

	rec := do(t, h, http.MethodPost, "/v1/agents/a1/move", `{"x":100,"y":40,"diagonal":true,"corner_cutting":false,"mode":"position"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(7), body["path_id"])
	req := nav.moves["a1"]
	assert.Equal(t, 100.0, req.X)
	assert.True(t, req.Diagonal)
	require.NotNil(t, req.CornerCutting)
	assert.False(t, *req.CornerCutting)
	assert.Equal(t, "position", req.Mode)

	rec = do(t, h, http.MethodPost, "/v1/agents/a1/move", `{"x":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/agents/a1/move", `{"x":5000,"y":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/agents/ghost/move", `{"x":1,"y":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/agents/a1/stop", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"a1"}, nav.stopped)
}

func TestInvalidateMap(t *testing.T) {
	nav := newFakeNavigator()
	h := newTestRouter(nav)

	rec := do(t, h, http.MethodPost, "/v1/maps/plaza/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"plaza"}, nav.invalidated)

	rec = do(t, h, http.MethodPost, "/v1/maps/nowhere/invalidate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	nav := newFakeNavigator()
	nav.stats = server.Stats{
		Navigation: pathfinding.ControllerStats{Requests: 10, Found: 8, NotFound: 2, Completed: 6, Stuck: 2, Active: 3},
		Ticks:      120,
		Clients:    2,
		Maps:       []string{"plaza"},
		Agents:     4,
	}
	h := newTestRouter(nav)

	rec := do(t, h, http.MethodGet, "/v1/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[MetricsResponse](t, rec)
	assert.InDelta(t, 0.8, m.Navigation.SuccessRate, 1e-9)
	assert.InDelta(t, 0.25, m.Navigation.StuckRate, 1e-9)
	assert.Equal(t, HealthWarning, m.Health, "a quarter of finished paths got stuck")
	assert.Equal(t, "low", m.Workload.CurrentLoad)
	assert.Equal(t, 4, m.World.Agents)
	assert.Equal(t, uint64(120), m.Ticks)

	nav.stats.Navigation.Stuck = 0
	rec = do(t, h, http.MethodGet, "/v1/metrics/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, string(HealthHealthy), health["health"])
	assert.Contains(t, health["description"], "3 agents navigating")

	rec = do(t, h, http.MethodGet, "/v1/metrics/workload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2000, decode[WorkloadMetrics](t, rec).MaxActive)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(newFakeNavigator())
	req := httptest.NewRequest(http.MethodOptions, "/v1/agents", nil)
	req.Header.Set("Origin", "http://game.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://game.test", rec.Header().Get("Access-Control-Allow-Origin"))
}
