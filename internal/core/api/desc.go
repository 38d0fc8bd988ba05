package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rulematch.v1.MatchAPI"

// Full method names.
const (
	MethodValidateRule = "/" + ServiceName + "/ValidateRule"
	MethodPutRule      = "/" + ServiceName + "/PutRule"
	MethodGetRule      = "/" + ServiceName + "/GetRule"
	MethodListRules    = "/" + ServiceName + "/ListRules"
	MethodDeleteRule   = "/" + ServiceName + "/DeleteRule"
	MethodEvaluate     = "/" + ServiceName + "/Evaluate"
	MethodMatch        = "/" + ServiceName + "/Match"
	MethodMatchStream  = "/" + ServiceName + "/MatchStream"
)

// MatchAPIServer is the server side of rulematch.v1.MatchAPI.
// Every message is a google.protobuf.Struct; field names are documented on
// each handler.
type MatchAPIServer interface {
	ValidateRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PutRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Match(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MatchStream(MatchStreamServer) error
}

// MatchStreamServer is the server side of the client-streaming MatchStream call.
type MatchStreamServer = grpc.ClientStreamingServer[structpb.Struct, structpb.Struct]

// MatchStreamClient is the client side of MatchStream.
type MatchStreamClient = grpc.ClientStreamingClient[structpb.Struct, structpb.Struct]

// RegisterMatchAPIServer registers srv on s.
func RegisterMatchAPIServer(s grpc.ServiceRegistrar, srv MatchAPIServer) {
	s.RegisterService(&MatchAPIServiceDesc, srv)
}

type unaryMethod func(MatchAPIServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a server method to grpc's handler signature,
// running it through the interceptor chain when one is installed.
func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MatchAPIServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MatchAPIServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func matchStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(MatchAPIServer).MatchStream(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// MatchAPIServiceDesc describes rulematch.v1.MatchAPI without generated code.
var MatchAPIServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ValidateRule", Handler: unaryHandler(MethodValidateRule, MatchAPIServer.ValidateRule)},
		{MethodName: "PutRule", Handler: unaryHandler(MethodPutRule, MatchAPIServer.PutRule)},
		{MethodName: "GetRule", Handler: unaryHandler(MethodGetRule, MatchAPIServer.GetRule)},
		{MethodName: "ListRules", Handler: unaryHandler(MethodListRules, MatchAPIServer.ListRules)},
		{MethodName: "DeleteRule", Handler: unaryHandler(MethodDeleteRule, MatchAPIServer.DeleteRule)},
		{MethodName: "Evaluate", Handler: unaryHandler(MethodEvaluate, MatchAPIServer.Evaluate)},
		{MethodName: "Match", Handler: unaryHandler(MethodMatch, MatchAPIServer.Match)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "MatchStream",
			Handler:       matchStreamHandler,
			ClientStreams: true,
		},
	},
	Metadata: "rulematch/v1/match_api.proto",
}

// MatchAPIClient calls rulematch.v1.MatchAPI.
type MatchAPIClient struct {
	cc grpc.ClientConnInterface
}

// NewMatchAPIClient wraps a connection.
func NewMatchAPIClient(cc grpc.ClientConnInterface) *MatchAPIClient {
	return &MatchAPIClient{cc: cc}
}

func (c *MatchAPIClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MatchAPIClient) ValidateRule(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodValidateRule, in, opts...)
}

func (c *MatchAPIClient) PutRule(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodPutRule, in, opts...)
}

func (c *MatchAPIClient) GetRule(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetRule, in, opts...)
}

func (c *MatchAPIClient) ListRules(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListRules, in, opts...)
}

func (c *MatchAPIClient) DeleteRule(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDeleteRule, in, opts...)
}

func (c *MatchAPIClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodEvaluate, in, opts...)
}

func (c *MatchAPIClient) Match(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodMatch, in, opts...)
}

// MatchStream opens a client stream. Send the {rule_id} header first, then
// one {record} message per record, then CloseAndRecv.
func (c *MatchAPIClient) MatchStream(ctx context.Context, opts ...grpc.CallOption) (MatchStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &MatchAPIServiceDesc.Streams[0], MethodMatchStream, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}, nil
}
