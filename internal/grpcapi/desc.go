package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "scheduler.v1.Scheduler"

// SchedulerServer описывает контракт scheduler.v1.Scheduler. Сообщения передаются как google.protobuf.Struct,
// поэтому сгенерированный код не нужен.
type SchedulerServer interface {
	FindSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateHold(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmOffer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectOffer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExpireSweepTick(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SchedulerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SchedulerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(SchedulerServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulerServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("FindSlots", SchedulerServer.FindSlots),
		handler("CreateHold", SchedulerServer.CreateHold),
		handler("ConfirmOffer", SchedulerServer.ConfirmOffer),
		handler("RejectOffer", SchedulerServer.RejectOffer),
		handler("ExpireSweepTick", SchedulerServer.ExpireSweepTick),
	},
	Metadata: "scheduler/v1/scheduler.proto",
}

func RegisterSchedulerServer(s grpc.ServiceRegistrar, srv SchedulerServer) {
	s.RegisterService(&serviceDesc, srv)
}
