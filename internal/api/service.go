package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/buessow/glumagic/internal/engine"
	"github.com/buessow/glumagic/internal/models"
)

const featureServiceName = "glumagic.v1.FeatureService"

// FeatureAPI is the domain service exposed over gRPC and HTTP.
type FeatureAPI interface {
	BuildVector(ctx context.Context, req models.VectorRequest) (models.VectorResult, error)
	BuildMatrix(ctx context.Context, req models.MatrixRequest) (*engine.FeatureMatrix, error)
}

// FeatureServiceServer is the gRPC surface of the feature service. Messages
// are google.protobuf.Struct values.
type FeatureServiceServer interface {
	BuildFeatureVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	BuildTrainingMatrix(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// featureServer adapts FeatureAPI to FeatureServiceServer.
type featureServer struct {
	svc FeatureAPI
}

func (s *featureServer) BuildFeatureVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	domainReq, err := FromProtoVectorRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.svc.BuildVector(ctx, domainReq)
	if err != nil {
		return nil, StatusFromError(err)
	}
	return ToProtoVectorResult(res), nil
}

func (s *featureServer) BuildTrainingMatrix(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	domainReq, err := FromProtoMatrixRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	m, err := s.svc.BuildMatrix(ctx, domainReq)
	if err != nil {
		return nil, StatusFromError(err)
	}
	return ToProtoMatrix(m), nil
}

// RegisterFeatureServiceServer registers srv on s.
func RegisterFeatureServiceServer(s grpc.ServiceRegistrar, srv FeatureServiceServer) {
	s.RegisterService(&featureServiceDesc, srv)
}

var featureServiceDesc = grpc.ServiceDesc{
	ServiceName: featureServiceName,
	HandlerType: (*FeatureServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BuildFeatureVector", Handler: buildFeatureVectorHandler},
		{MethodName: "BuildTrainingMatrix", Handler: buildTrainingMatrixHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "glumagic/v1/feature_service.proto",
}

func buildFeatureVectorHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeatureServiceServer).BuildFeatureVector(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + featureServiceName + "/BuildFeatureVector"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FeatureServiceServer).BuildFeatureVector(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func buildTrainingMatrixHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeatureServiceServer).BuildTrainingMatrix(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + featureServiceName + "/BuildTrainingMatrix"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FeatureServiceServer).BuildTrainingMatrix(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
