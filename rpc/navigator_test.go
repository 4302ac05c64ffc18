package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"cyberia-pathway/pathfinding"
	"cyberia-pathway/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type stubNavigator struct {
	mu      sync.Mutex
	moves   map[string]server.MoveRequest
	stopped []string
}

func (s *stubNavigator) Agent(id string) (server.AgentView, error) {
	if id != "a1" {
		return server.AgentView{}, fmt.Errorf("%w: %s", server.ErrAgentNotFound, id)
	}
	return server.AgentView{
		ID:       "a1",
		MapID:    "plaza",
		Position: pathfinding.Point{X: 48, Y: 16},
		Width:    24,
		Height:   24,
		Navigation: pathfinding.Snapshot{
			AgentID:   "a1",
			State:     pathfinding.Following,
			Facing:    pathfinding.Right,
			Remaining: []pathfinding.Cell{{X: 2, Y: 0}, {X: 3, Y: 0}},
		},
	}, nil
}

func (s *stubNavigator) Move(id string, req server.MoveRequest) (int, error) {
	if _, err := s.Agent(id); err != nil {
		return 0, err
	}
	if _, err := pathfinding.ParseMode(req.Mode); err != nil {
		return 0, fmt.Errorf("%w: %v", server.ErrInvalidRequest, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves[id] = req
	return 3, nil
}

func (s *stubNavigator) Stop(id string) error {
	if _, err := s.Agent(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, id)
	return nil
}

func newTestClient(t *testing.T, nav Navigator) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor))
	RegisterNavigatorServer(srv, NewService(nav))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestMoveAgent(t *testing.T) {
	nav := &stubNavigator{moves: make(map[string]server.MoveRequest)}
	c := newTestClient(t, nav)
	ctx := context.Background()

	noCut := false
	pathID, err := c.MoveAgent(ctx, "a1", server.MoveRequest{X: 120, Y: 40, Diagonal: true, CornerCutting: &noCut, Nearest: true})
	require.NoError(t, err)
	assert.Equal(t, 3, pathID)

	req := nav.moves["a1"]
	assert.Equal(t, 120.0, req.X)
	assert.Equal(t, 40.0, req.Y)
	assert.True(t, req.Diagonal)
	assert.True(t, req.Nearest)
	require.NotNil(t, req.CornerCutting)
	assert.False(t, *req.CornerCutting)

	_, err = c.MoveAgent(ctx, "ghost", server.MoveRequest{X: 1, Y: 1})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.MoveAgent(ctx, "a1", server.MoveRequest{Mode: "teleport"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.MoveAgent(ctx, "", server.MoveRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStopAgent(t *testing.T) {
	nav := &stubNavigator{moves: make(map[string]server.MoveRequest)}
	c := newTestClient(t, nav)

	require.NoError(t, c.StopAgent(context.Background(), "a1"))
	assert.Equal(t, []string{"a1"}, nav.stopped)

	err := c.StopAgent(context.Background(), "ghost")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGetAgent(t *testing.T) {
	nav := &stubNavigator{moves: make(map[string]server.MoveRequest)}
	c := newTestClient(t, nav)

	view, err := c.GetAgent(context.Background(), "a1")
	require.NoError(t, err)
	want, _ := nav.Agent("a1")
	assert.Equal(t, want, view)

	_, err = c.GetAgent(context.Background(), "ghost")
	assert.Equal(t, codes.NotFound, status.Code(err))
}
