package rpc

import (
	"context"

	"cyberia-pathway/server"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the Navigator service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// MoveAgent returns the path ID of the started request.
func (c *Client) MoveAgent(ctx context.Context, agentID string, req server.MoveRequest, opts ...grpc.CallOption) (int, error) {
	in, err := encodeStruct(req)
	if err != nil {
		return 0, err
	}
	in.Fields["agent_id"] = structpb.NewStringValue(agentID)
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, moveAgentMethod, in, out, opts...); err != nil {
		return 0, err
	}
	return int(out.GetFields()["path_id"].GetNumberValue()), nil
}

func (c *Client) StopAgent(ctx context.Context, agentID string, opts ...grpc.CallOption) error {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"agent_id": structpb.NewStringValue(agentID),
	}}
	return c.cc.Invoke(ctx, stopAgentMethod, in, new(structpb.Struct), opts...)
}

func (c *Client) GetAgent(ctx context.Context, agentID string, opts ...grpc.CallOption) (server.AgentView, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"agent_id": structpb.NewStringValue(agentID),
	}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getAgentMethod, in, out, opts...); err != nil {
		return server.AgentView{}, err
	}
	var view server.AgentView
	if err := decodeStruct(out, &view); err != nil {
		return server.AgentView{}, err
	}
	return view, nil
}
