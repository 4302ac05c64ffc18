package pathfinding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func (r *recorder) handle(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) count(k EventKind) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

func newTestController(w World, clock *fakeClock, opts ...ControllerOption) *Controller {
	opts = append([]ControllerOption{WithClock(clock.Now), WithTickRate(16 * time.Millisecond)}, opts...)
	return NewController(w, opts...)
}

// run ticks the controller until cond holds or the tick budget is spent.
func run(c *Controller, clock *fakeClock, ticks int, cond func() bool) {
	for i := 0; i < ticks; i++ {
		if cond != nil && cond() {
			return
		}
		clock.Advance(16 * time.Millisecond)
		c.Update()
	}
}

func TestControllerFollowsPathToDestination(t *testing.T) {
	w := newFakeWorld(5, 5)
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})
	rec := &recorder{}

	id, err := c.To(agent, Cell{4, 0}, Options{PixelsPerSecond: 320, OnEvent: rec.handle})
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, Searching, c.State("a1"))
	assert.Empty(t, rec.events, "no event fires inside To")

	run(c, clock, 500, func() bool { return rec.count(PathComplete) > 0 })

	require.Equal(t, []EventKind{PathFound, PathComplete}, rec.kinds())
	found := rec.events[0]
	assert.Equal(t, id, found.PathID)
	assert.Equal(t, "a1", found.AgentID)
	assert.Equal(t, []Cell{{1, 0}, {2, 0}, {3, 0}, {4, 0}}, found.Path)
	assert.Equal(t, []Cell{{4, 0}, {3, 0}, {2, 0}, {1, 0}, {0, 0}}, found.Reversed)
	assert.Equal(t, id, rec.events[1].PathID)

	target := CellCenter(Cell{4, 0}, testTile, testTile)
	assert.InDelta(t, target.X, agent.pos.X, DefaultMinDistance)
	assert.InDelta(t, target.Y, agent.pos.Y, DefaultMinDistance)
	assert.Equal(t, Idle, c.State("a1"))
	assert.Zero(t, c.Active())
	assert.Positive(t, agent.steps)
	assert.Zero(t, agent.teleports)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Requests)
	assert.Equal(t, uint64(1), stats.Found)
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Positive(t, stats.Expansions)
}

func TestControllerPositionMode(t *testing.T) {
	w := newFakeWorld(4, 4)
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})
	rec := &recorder{}

	_, err := c.To(agent, Cell{0, 3}, Options{Mode: ModePosition, PixelsPerSecond: 400, OnEvent: rec.handle})
	require.NoError(t, err)

	run(c, clock, 500, func() bool { return rec.count(PathComplete) > 0 })
	assert.Equal(t, 1, rec.count(PathComplete))
	assert.Positive(t, agent.teleports)
	assert.Zero(t, agent.steps)
}

func TestControllerStuckFiresOnce(t *testing.T) {
	w := newFakeWorld(5, 5)
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})
	agent.pinned = true
	rec := &recorder{}

	_, err := c.To(agent, Cell{4, 4}, Options{MaxStuck: 5, OnEvent: rec.handle})
	require.NoError(t, err)

	run(c, clock, 100, nil)

	assert.Equal(t, 1, rec.count(PathStuck))
	assert.Zero(t, rec.count(PathComplete))
	assert.Equal(t, Idle, c.State("a1"))
	assert.Equal(t, 1, agent.stops)
	assert.Equal(t, uint64(1), c.Stats().Stuck)
}

func TestControllerEndIsIdempotent(t *testing.T) {
	w := newFakeWorld(5, 5)
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})
	rec := &recorder{}

	assert.NotPanics(t, func() { c.End(agent) })
	assert.Zero(t, agent.stops)

	_, err := c.To(agent, Cell{4, 4}, Options{OnEvent: rec.handle})
	require.NoError(t, err)
	c.End(agent)
	assert.NotPanics(t, func() { c.End(agent) })
	assert.Equal(t, 1, agent.stops)
	assert.Equal(t, Idle, c.State("a1"))

	run(c, clock, 50, nil)
	assert.Empty(t, rec.events, "an ended search must never call back")
	assert.Equal(t, uint64(1), c.Stats().Cancelled)
}

func TestControllerNewRequestSupersedesOld(t *testing.T) {
	w := newFakeWorld(6, 6)
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})
	first := &recorder{}
	second := &recorder{}

	_, err := c.To(agent, Cell{5, 5}, Options{OnEvent: first.handle})
	require.NoError(t, err)
	id, err := c.To(agent, Cell{0, 5}, Options{PixelsPerSecond: 400, OnEvent: second.handle})
	require.NoError(t, err)

	run(c, clock, 500, func() bool { return second.count(PathComplete) > 0 })

	assert.Empty(t, first.events)
	require.Equal(t, []EventKind{PathFound, PathComplete}, second.kinds())
	for _, ev := range second.events {
		assert.Equal(t, id, ev.PathID)
	}
}

func TestControllerBlockedDestination(t *testing.T) {
	w := newFakeWorld(5, 5)
	w.block(4, 0, "rock")
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})
	rec := &recorder{}

	id, err := c.To(agent, Cell{4, 0}, Options{OnEvent: rec.handle})
	require.NoError(t, err)
	assert.Zero(t, id)
	require.Equal(t, []EventKind{PathNotFound}, rec.kinds())
	require.NotNil(t, rec.events[0].Blocker)
	assert.Equal(t, Cell{4, 0}, *rec.events[0].Blocker)
	assert.Equal(t, Idle, c.State("a1"))
}

func TestControllerNearestSubstitutesBlockedDestination(t *testing.T) {
	w := newFakeWorld(5, 5)
	w.block(4, 2, "rock")
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 2})
	rec := &recorder{}

	_, err := c.To(agent, Cell{4, 2}, Options{Nearest: true, PixelsPerSecond: 400, OnEvent: rec.handle})
	require.NoError(t, err)

	run(c, clock, 500, func() bool { return rec.count(PathComplete) > 0 })
	require.Equal(t, []EventKind{PathFound, PathComplete}, rec.kinds())
	path := rec.events[0].Path
	require.NotEmpty(t, path)
	last := path[len(path)-1]
	assert.NotEqual(t, Cell{4, 2}, last)
	assert.InDelta(t, 1.0, cellDistance(Cell{4, 2}, last), 1e-9)
}

func TestControllerUnreachableDestination(t *testing.T) {
	w := newFakeWorld(5, 5)
	for y := 0; y < 5; y++ {
		w.wall(2, y)
	}
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})
	rec := &recorder{}

	_, err := c.To(agent, Cell{4, 4}, Options{OnEvent: rec.handle})
	require.NoError(t, err)

	run(c, clock, 20, nil)
	require.Equal(t, []EventKind{PathNotFound}, rec.kinds())
	assert.Nil(t, rec.events[0].Blocker)
	assert.Equal(t, Idle, c.State("a1"))
}

func TestControllerBlockedStartWithoutNearest(t *testing.T) {
	w := newFakeWorld(5, 5)
	w.block(0, 0, "crate")
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})
	rec := &recorder{}

	_, err := c.To(agent, Cell{3, 3}, Options{OnEvent: rec.handle})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{PathNotFound}, rec.kinds())

	// Listing the occupant lets the agent leave.
	rec.events = nil
	_, err = c.To(agent, Cell{3, 3}, Options{Ignore: NewIgnoreList("crate"), OnEvent: rec.handle})
	require.NoError(t, err)
	assert.Equal(t, Searching, c.State("a1"))
}

func TestControllerBlockedStartFullyEnclosed(t *testing.T) {
	w := newFakeWorld(3, 3)
	w.block(1, 1, "crate")
	for _, p := range []Cell{{0, 1}, {2, 1}, {1, 0}, {1, 2}} {
		w.wall(p.X, p.Y)
	}
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{1, 1})
	rec := &recorder{}

	id, err := c.To(agent, Cell{0, 0}, Options{Nearest: true, OnEvent: rec.handle})
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Equal(t, []EventKind{PathNotFound}, rec.kinds())
}

func TestControllerStartEqualsDestination(t *testing.T) {
	w := newFakeWorld(3, 3)
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{1, 1})
	rec := &recorder{}

	id, err := c.To(agent, Cell{1, 1}, Options{OnEvent: rec.handle})
	require.NoError(t, err)
	run(c, clock, 3, nil)

	require.Equal(t, []EventKind{PathNotFound}, rec.kinds())
	assert.Equal(t, id, rec.events[0].PathID)
	assert.Nil(t, rec.events[0].Blocker)
	assert.Equal(t, Idle, c.State("a1"))
	assert.Equal(t, uint64(1), c.Stats().NotFound)
	assert.Zero(t, c.Stats().Found)
	assert.Zero(t, c.agents["a1"].engine.Stats().Cancelled)
}

func TestControllerStartEqualsDestinationImmediate(t *testing.T) {
	w := newFakeWorld(3, 3)
	clock := newFakeClock()
	c := newTestController(w, clock, WithEngineFactory(func() *Engine {
		return NewEngine(WithCompletion(ImmediateCompletion))
	}))
	agent := newFakeAgent("a1", Cell{1, 1})
	rec := &recorder{}

	_, err := c.To(agent, Cell{1, 1}, Options{OnEvent: rec.handle})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{PathNotFound}, rec.kinds())
	assert.Equal(t, Idle, c.State("a1"))
}

func TestControllerImmediateCompletion(t *testing.T) {
	w := newFakeWorld(4, 4)
	clock := newFakeClock()
	c := newTestController(w, clock, WithEngineFactory(func() *Engine {
		return NewEngine(WithCompletion(ImmediateCompletion))
	}))
	agent := newFakeAgent("a1", Cell{0, 0})
	rec := &recorder{}

	id, err := c.To(agent, Cell{3, 0}, Options{OnEvent: rec.handle})
	require.NoError(t, err)
	assert.Equal(t, Searching, c.State("a1"))

	c.Update()
	require.Equal(t, []EventKind{PathFound}, rec.kinds())
	assert.Equal(t, id, rec.events[0].PathID)
	assert.Equal(t, Following, c.State("a1"))
	assert.Len(t, c.Path("a1"), 2, "the first node is already being walked to")
}

func TestControllerUsageErrors(t *testing.T) {
	w := newFakeWorld(3, 3)
	c := newTestController(w, newFakeClock())

	_, err := c.To(nil, Cell{1, 1}, Options{})
	assert.ErrorIs(t, err, ErrNoAgent)

	agent := newFakeAgent("a1", Cell{0, 0})
	agent.mapID = ""
	_, err = c.To(agent, Cell{1, 1}, Options{})
	assert.ErrorIs(t, err, ErrNoMap)

	agent.mapID = "elsewhere"
	_, err = c.To(agent, Cell{1, 1}, Options{})
	assert.ErrorIs(t, err, ErrUnknownMap)

	agent.mapID = "test"
	_, err = c.To(agent, Cell{3, 1}, Options{})
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Zero(t, c.Active())
}

func TestControllerClampsDeltaAfterStall(t *testing.T) {
	w := newFakeWorld(20, 1)
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})

	_, err := c.To(agent, Cell{19, 0}, Options{PixelsPerSecond: 1000})
	require.NoError(t, err)
	run(c, clock, 2, nil)
	require.Equal(t, Following, c.State("a1"))

	before := agent.pos
	clock.Advance(10 * time.Second)
	c.Update()
	moved := distance(before, agent.pos)
	assert.Positive(t, moved)
	assert.LessOrEqual(t, moved, 1000*(4*16*time.Millisecond).Seconds()+1e-9)
}

func TestControllerRecoversFromAgentPanic(t *testing.T) {
	w := newFakeWorld(5, 5)
	clock := newFakeClock()
	c := newTestController(w, clock)
	bad := newFakeAgent("bad", Cell{0, 0})
	bad.panicky = true
	good := newFakeAgent("good", Cell{0, 4})
	rec := &recorder{}

	_, err := c.To(bad, Cell{4, 0}, Options{})
	require.NoError(t, err)
	_, err = c.To(good, Cell{4, 4}, Options{PixelsPerSecond: 400, OnEvent: rec.handle})
	require.NoError(t, err)

	run(c, clock, 500, func() bool { return rec.count(PathComplete) > 0 })

	assert.Equal(t, 1, rec.count(PathComplete))
	assert.Equal(t, Idle, c.State("bad"))
	assert.Equal(t, uint64(1), c.Stats().Recovered)
}

func TestControllerForget(t *testing.T) {
	w := newFakeWorld(5, 5)
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})
	rec := &recorder{}

	_, err := c.To(agent, Cell{4, 4}, Options{OnEvent: rec.handle})
	require.NoError(t, err)
	c.Forget("a1")

	run(c, clock, 50, nil)
	assert.Empty(t, rec.events)
	_, ok := c.Snapshot("a1")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Tracked)
}

func TestControllerSnapshot(t *testing.T) {
	w := newFakeWorld(6, 1)
	clock := newFakeClock()
	c := newTestController(w, clock)
	agent := newFakeAgent("a1", Cell{0, 0})

	_, err := c.To(agent, Cell{5, 0}, Options{})
	require.NoError(t, err)
	run(c, clock, 3, nil)

	snap, ok := c.Snapshot("a1")
	require.True(t, ok)
	assert.Equal(t, "a1", snap.AgentID)
	assert.Equal(t, Following, snap.State)
	assert.Equal(t, Right, snap.Facing)
	require.NotNil(t, snap.Target)
	assert.Equal(t, CellCenter(Cell{1, 0}, testTile, testTile), *snap.Target)
	assert.Len(t, snap.Remaining, 4)
	assert.Len(t, c.Snapshots(), 1)
}

func TestFacing(t *testing.T) {
	assert.Equal(t, Right, facing(1, 0))
	assert.Equal(t, Down, facing(0, 1))
	assert.Equal(t, Up, facing(0, -1))
	assert.Equal(t, Left, facing(-1, 0))
	assert.Equal(t, UpRight, facing(1, -1))
	assert.Equal(t, DownLeft, facing(-1, 1))
	assert.Equal(t, None, facing(0, 0))
}
