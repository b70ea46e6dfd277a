package rpc

import (
	"context"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/util"
	"go.opencensus.io/plugin/ocgrpc"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "strand.v1.ThreadControl"

// ThreadService is what the rpc surface drives. engine.Control implements it.
type ThreadService interface {
	GetThread(activityID int, domainID string) (*model.ActivityThread, error)
	Pause(activityID int, domainID string) error
	Continue(activityID int, domainID string) error
	Kill(activityID int, domainID string) error
	Repair(activityID int, domainID string, args model.RepairArgs) error
	PostEvent(eventType string, sender string, attributes map[string]any) (string, error)
}

type GrpcConfig struct {
	Threads ThreadService
}

type grpcServer struct {
	*GrpcConfig
}

type threadControlServer interface {
	GetThread(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Pause(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Continue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Kill(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Repair(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	PostEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var _ threadControlServer = (*grpcServer)(nil)

func NewGrpcServer(config *GrpcConfig) (*grpc.Server, error) {
	log := logger.Named("server")
	zapOpts := []grpc_zap.Option{
		grpc_zap.WithDurationField(
			func(duration time.Duration) zapcore.Field {
				return zap.Int64(
					"grpc.time_ns",
					duration.Nanoseconds(),
				)
			},
		),
	}
	trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	err := view.Register(ocgrpc.DefaultServerViews...)
	if err != nil {
		return nil, err
	}
	grpcOpts := make([]grpc.ServerOption, 0)
	grpcOpts = append(grpcOpts,
		grpc.StreamInterceptor(
			grpc_middleware.ChainStreamServer(
				grpc_ctxtags.StreamServerInterceptor(),
				grpc_zap.StreamServerInterceptor(log, zapOpts...),
			)), grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_ctxtags.UnaryServerInterceptor(),
			grpc_zap.UnaryServerInterceptor(log, zapOpts...),
		)),
		grpc.StatsHandler(&ocgrpc.ServerHandler{}),
	)

	gsrv := grpc.NewServer(grpcOpts...)
	srv := &grpcServer{
		GrpcConfig: config,
	}
	gsrv.RegisterService(&serviceDesc, srv)
	return gsrv, nil
}

func unaryHandler(method string, call func(srv threadControlServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(threadControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + method,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(threadControlServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*threadControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("GetThread", threadControlServer.GetThread),
		unaryHandler("Pause", threadControlServer.Pause),
		unaryHandler("Continue", threadControlServer.Continue),
		unaryHandler("Kill", threadControlServer.Kill),
		unaryHandler("Repair", threadControlServer.Repair),
		unaryHandler("PostEvent", threadControlServer.PostEvent),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "strand/v1/thread_control",
}

func threadKey(req *structpb.Struct) (int, string, error) {
	fields := util.ConvertFromProto(req)
	id := model.ToInt(fields["activity_id"], 0)
	domainID, _ := fields["domain_id"].(string)
	if id <= 0 || len(domainID) == 0 {
		return 0, "", InvalidRequestError{Message: "activity_id and domain_id are required"}
	}
	return id, domainID, nil
}

func accepted() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"queued": true})
}

func (srv *grpcServer) GetThread(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, domainID, err := threadKey(req)
	if err != nil {
		return nil, err
	}
	thread, err := srv.Threads.GetThread(id, domainID)
	if err != nil {
		return nil, toRPCError(err)
	}
	view := thread.ToMap()
	view["context"] = thread.Context
	view["in_repair"] = thread.InRepair()
	res, err := util.StructFromAny(view)
	if err != nil {
		return nil, toRPCError(err)
	}
	return res, nil
}

func (srv *grpcServer) Pause(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return srv.command(req, srv.Threads.Pause)
}

func (srv *grpcServer) Continue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return srv.command(req, srv.Threads.Continue)
}

func (srv *grpcServer) Kill(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return srv.command(req, srv.Threads.Kill)
}

func (srv *grpcServer) Repair(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	args, err := model.RepairArgsFromMap(util.ConvertFromProto(req))
	if err != nil {
		return nil, InvalidRequestError{Message: err.Error()}
	}
	return srv.command(req, func(activityID int, domainID string) error {
		return srv.Threads.Repair(activityID, domainID, args)
	})
}

func (srv *grpcServer) PostEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := util.ConvertFromProto(req)
	eventType, _ := fields["type"].(string)
	if len(eventType) == 0 {
		return nil, InvalidRequestError{Message: "type is required"}
	}
	sender, _ := fields["sender"].(string)
	attrs, _ := fields["attr"].(map[string]any)
	id, err := srv.Threads.PostEvent(eventType, sender, attrs)
	if err != nil {
		return nil, toRPCError(err)
	}
	return structpb.NewStruct(map[string]any{"id": id})
}

func (srv *grpcServer) command(req *structpb.Struct, cmd func(activityID int, domainID string) error) (*structpb.Struct, error) {
	id, domainID, err := threadKey(req)
	if err != nil {
		return nil, err
	}
	if err := cmd(id, domainID); err != nil {
		return nil, toRPCError(err)
	}
	return accepted()
}
