// Package turnguardv1 defines the turnguard.v1.TurnService gRPC contract.
// Messages travel as google.protobuf.Struct; the typed Go views below are
// converted with Encode and Decode.
package turnguardv1

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "turnguard.v1.TurnService"

const (
	TurnService_StartSession_FullMethodName = "/turnguard.v1.TurnService/StartSession"
	TurnService_RunTurn_FullMethodName      = "/turnguard.v1.TurnService/RunTurn"
	TurnService_EndSession_FullMethodName   = "/turnguard.v1.TurnService/EndSession"
	TurnService_Allowed_FullMethodName      = "/turnguard.v1.TurnService/Allowed"
	TurnService_CheckGuards_FullMethodName  = "/turnguard.v1.TurnService/CheckGuards"
)

// TurnServiceServer is the server API for TurnService.
type TurnServiceServer interface {
	StartSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunTurn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Allowed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckGuards(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterTurnServiceServer attaches srv to s.
func RegisterTurnServiceServer(s grpc.ServiceRegistrar, srv TurnServiceServer) {
	s.RegisterService(&TurnService_ServiceDesc, srv)
}

func unaryHandler(method string, call func(TurnServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TurnServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TurnServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TurnService_ServiceDesc is the grpc.ServiceDesc for TurnService.
var TurnService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TurnServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartSession",
			Handler:    unaryHandler(TurnService_StartSession_FullMethodName, TurnServiceServer.StartSession),
		},
		{
			MethodName: "RunTurn",
			Handler:    unaryHandler(TurnService_RunTurn_FullMethodName, TurnServiceServer.RunTurn),
		},
		{
			MethodName: "EndSession",
			Handler:    unaryHandler(TurnService_EndSession_FullMethodName, TurnServiceServer.EndSession),
		},
		{
			MethodName: "Allowed",
			Handler:    unaryHandler(TurnService_Allowed_FullMethodName, TurnServiceServer.Allowed),
		},
		{
			MethodName: "CheckGuards",
			Handler:    unaryHandler(TurnService_CheckGuards_FullMethodName, TurnServiceServer.CheckGuards),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "turnguard/v1/turnguard.proto",
}

// TurnServiceClient is the client API for TurnService.
type TurnServiceClient interface {
	StartSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	RunTurn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	EndSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Allowed(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CheckGuards(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type turnServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTurnServiceClient wraps a connection.
func NewTurnServiceClient(cc grpc.ClientConnInterface) TurnServiceClient {
	return &turnServiceClient{cc}
}

func (c *turnServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *turnServiceClient) StartSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, TurnService_StartSession_FullMethodName, in, opts)
}

func (c *turnServiceClient) RunTurn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, TurnService_RunTurn_FullMethodName, in, opts)
}

func (c *turnServiceClient) EndSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, TurnService_EndSession_FullMethodName, in, opts)
}

func (c *turnServiceClient) Allowed(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, TurnService_Allowed_FullMethodName, in, opts)
}

func (c *turnServiceClient) CheckGuards(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, TurnService_CheckGuards_FullMethodName, in, opts)
}

// Encode converts a JSON-tagged Go value into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from a Struct. A nil Struct decodes as empty.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
