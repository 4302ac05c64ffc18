// Package rpc exposes agent navigation over gRPC. Messages are
// google.protobuf.Struct values, so no generated code is needed.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"cyberia-pathway/pathfinding"
	"cyberia-pathway/server"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "pathway.v1.Navigator"

const (
	moveAgentMethod = "/" + ServiceName + "/MoveAgent"
	stopAgentMethod = "/" + ServiceName + "/StopAgent"
	getAgentMethod  = "/" + ServiceName + "/GetAgent"
)

// NavigatorServer is the server API for the Navigator service.
type NavigatorServer interface {
	MoveAgent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopAgent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAgent(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(NavigatorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(NavigatorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(NavigatorServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Navigator_ServiceDesc is the grpc.ServiceDesc for the Navigator service.
var Navigator_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NavigatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "MoveAgent",
			Handler:    unaryHandler(moveAgentMethod, NavigatorServer.MoveAgent),
		},
		{
			MethodName: "StopAgent",
			Handler:    unaryHandler(stopAgentMethod, NavigatorServer.StopAgent),
		},
		{
			MethodName: "GetAgent",
			Handler:    unaryHandler(getAgentMethod, NavigatorServer.GetAgent),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pathway/v1/navigator.proto",
}

func RegisterNavigatorServer(s grpc.ServiceRegistrar, srv NavigatorServer) {
	s.RegisterService(&Navigator_ServiceDesc, srv)
}

// Navigator is the part of the server the service drives.
type Navigator interface {
	Agent(id string) (server.AgentView, error)
	Move(agentID string, req server.MoveRequest) (int, error)
	Stop(agentID string) error
}

// Service implements NavigatorServer on top of a Navigator.
type Service struct {
	nav Navigator
}

func NewService(nav Navigator) *Service {
	return &Service{nav: nav}
}

// MoveAgent expects {agent_id, x, y} plus the optional diagonal,
// corner_cutting, nearest and mode fields of a move request.
func (s *Service) MoveAgent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := agentID(in)
	if err != nil {
		return nil, err
	}
	var req server.MoveRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode move request: %v", err)
	}
	pathID, err := s.nav.Move(id, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"agent_id": id, "path_id": pathID})
}

func (s *Service) StopAgent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := agentID(in)
	if err != nil {
		return nil, err
	}
	if err := s.nav.Stop(id); err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"agent_id": id, "stopped": true})
}

func (s *Service) GetAgent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := agentID(in)
	if err != nil {
		return nil, err
	}
	view, err := s.nav.Agent(id)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := encodeStruct(view)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode agent: %v", err)
	}
	return out, nil
}

func agentID(in *structpb.Struct) (string, error) {
	id := in.GetFields()["agent_id"].GetStringValue()
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "agent_id is required")
	}
	return id, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, server.ErrAgentNotFound), errors.Is(err, pathfinding.ErrUnknownMap):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, server.ErrInvalidRequest), errors.Is(err, pathfinding.ErrOutOfBounds):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// encodeStruct converts a JSON-tagged value into a Struct.
func encodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// decodeStruct fills a JSON-tagged value from a Struct.
func decodeStruct(in *structpb.Struct, v any) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// LoggingInterceptor logs every unary call with its status and duration.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	log.Printf("gRPC %s %s (%s)", info.FullMethod, status.Code(err), time.Since(start))
	return resp, err
}
