package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "segmentkeeper.rules.v1.RuleService"

// Full method names, as seen by interceptors.
const (
	MethodEvaluate        = "/" + ServiceName + "/Evaluate"
	MethodEvaluateSegment = "/" + ServiceName + "/EvaluateSegment"
	MethodListRules       = "/" + ServiceName + "/ListRules"
)

// RuleServiceServer is the server API for the rule service.
type RuleServiceServer interface {
	// Evaluate {rule_instance_id, anonymous_user_id} -> {matched, rule_key, rule_instance_id}
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// EvaluateSegment {user_segment_id, anonymous_user_id} -> {matched, rule_count}
	EvaluateSegment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListRules {locale} -> {rules: [...]}
	ListRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRuleServiceServer registers srv on s.
func RegisterRuleServiceServer(s grpc.ServiceRegistrar, srv RuleServiceServer) {
	s.RegisterService(&RuleServiceDesc, srv)
}

func unaryHandler(method string, call func(RuleServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RuleServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(RuleServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RuleServiceDesc describes the rule service for grpc.Server.
var RuleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RuleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Evaluate",
			Handler:    unaryHandler(MethodEvaluate, RuleServiceServer.Evaluate),
		},
		{
			MethodName: "EvaluateSegment",
			Handler:    unaryHandler(MethodEvaluateSegment, RuleServiceServer.EvaluateSegment),
		},
		{
			MethodName: "ListRules",
			Handler:    unaryHandler(MethodListRules, RuleServiceServer.ListRules),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "segmentkeeper/rules/v1/rules.proto",
}

// RuleServiceClient is the client API for the rule service.
type RuleServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRuleServiceClient creates a client over cc.
func NewRuleServiceClient(cc grpc.ClientConnInterface) *RuleServiceClient {
	return &RuleServiceClient{cc: cc}
}

func (c *RuleServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RuleServiceClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodEvaluate, in, opts...)
}

func (c *RuleServiceClient) EvaluateSegment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodEvaluateSegment, in, opts...)
}

func (c *RuleServiceClient) ListRules(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListRules, in, opts...)
}
