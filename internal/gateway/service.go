// Package gateway exposes one petanque session over gRPC so that several
// local tools can drive the same proof.
package gateway

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "petanque.gateway.v1.Gateway"

const (
	methodInit      = "Init"
	methodStart     = "Start"
	methodRunTactic = "RunTactic"
	methodGoals     = "Goals"
	methodPremises  = "Premises"
	methodBacktrack = "Backtrack"
	methodReset     = "Reset"
	methodHistory   = "History"
	methodStatus    = "Status"
	methodShutdown  = "Shutdown"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// Service is the server side of the gateway. Messages are protobuf
// well-known types so the service needs no generated code.
type Service interface {
	Init(ctx context.Context, root *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	Start(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RunTactic(ctx context.Context, tactic *wrapperspb.StringValue) (*structpb.Struct, error)
	Goals(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error)
	Premises(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error)
	Backtrack(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error)
	Reset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error)
	History(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error)
	Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error)
	Shutdown(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error)
}

// ServiceDesc describes the gateway for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodInit, newStringValue, Service.Init),
		unary(methodStart, newStruct, Service.Start),
		unary(methodRunTactic, newStringValue, Service.RunTactic),
		unary(methodGoals, newEmpty, Service.Goals),
		unary(methodPremises, newEmpty, Service.Premises),
		unary(methodBacktrack, newEmpty, Service.Backtrack),
		unary(methodReset, newEmpty, Service.Reset),
		unary(methodHistory, newEmpty, Service.History),
		unary(methodStatus, newEmpty, Service.Status),
		unary(methodShutdown, newEmpty, Service.Shutdown),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "petanque/gateway/v1/gateway.proto",
}

// Register adds svc to s.
func Register(s grpc.ServiceRegistrar, svc Service) {
	s.RegisterService(&ServiceDesc, svc)
}

func newStringValue() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newStruct() *structpb.Struct             { return &structpb.Struct{} }
func newEmpty() *emptypb.Empty                { return &emptypb.Empty{} }

func unary[Req proto.Message, Resp proto.Message](
	name string,
	newReq func() Req,
	call func(Service, context.Context, Req) (Resp, error),
) grpc.MethodDesc {
	handler := func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}

		svc := srv.(Service)
		if interceptor == nil {
			return call(svc, ctx, req)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
			return call(svc, ctx, req.(Req))
		})
	}

	return grpc.MethodDesc{MethodName: name, Handler: handler}
}
