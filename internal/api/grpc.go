package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"quantlab/internal/store"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "quantlab.v1.Research"

// gRPC method names.
const (
	MethodRunBacktest    = "RunBacktest"
	MethodGridSearch     = "GridSearch"
	MethodWalkForward    = "WalkForward"
	MethodRunBatch       = "RunBatch"
	MethodListStrategies = "ListStrategies"
	MethodListRuns       = "ListRuns"
	MethodGetRun         = "GetRun"
)

// FullMethod returns the invoke path of a method, e.g.
// "/quantlab.v1.Research/RunBacktest".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ResearchServer is the server API of the Research service. Every message is
// a google.protobuf.Struct holding the JSON form of the matching request or
// response type.
type ResearchServer interface {
	RunBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GridSearch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WalkForward(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStrategies(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ResearchServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ResearchServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ResearchServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ResearchServiceDesc describes the Research service for grpc.Server.
var ResearchServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResearchServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodRunBacktest, ResearchServer.RunBacktest),
		unaryHandler(MethodGridSearch, ResearchServer.GridSearch),
		unaryHandler(MethodWalkForward, ResearchServer.WalkForward),
		unaryHandler(MethodRunBatch, ResearchServer.RunBatch),
		unaryHandler(MethodListStrategies, ResearchServer.ListStrategies),
		unaryHandler(MethodListRuns, ResearchServer.ListRuns),
		unaryHandler(MethodGetRun, ResearchServer.GetRun),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quantlab/v1/research.proto",
}

// RegisterResearchServer registers srv on gs.
func RegisterResearchServer(gs grpc.ServiceRegistrar, srv ResearchServer) {
	gs.RegisterService(&ResearchServiceDesc, srv)
}

// ---------------------------------------------------------------------------
// Struct codec
// ---------------------------------------------------------------------------

// EncodeStruct converts v to a Struct through its JSON form.
func EncodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// DecodeStruct fills v from s through its JSON form. A nil s leaves v
// untouched.
func DecodeStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: decoding %T: %v", ErrInvalidRequest, v, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Compile-time interface check.
var _ ResearchServer = (*GRPCServer)(nil)

// GRPCServer adapts a Service to the Research gRPC service.
type GRPCServer struct {
	svc *Service
}

// NewGRPCServer creates a GRPCServer backed by svc.
func NewGRPCServer(svc *Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

// RegisterGRPC registers the server on the given gRPC server instance.
func (g *GRPCServer) RegisterGRPC(gs *grpc.Server) {
	RegisterResearchServer(gs, g)
}

// serve decodes the request, calls fn and encodes its response.
func serve[Req, Resp any](ctx context.Context, in *structpb.Struct, fn func(context.Context, Req) (Resp, error)) (*structpb.Struct, error) {
	var req Req
	if err := DecodeStruct(in, &req); err != nil {
		return nil, grpcError(err)
	}
	resp, err := fn(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := EncodeStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (g *GRPCServer) RunBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, in, g.svc.Backtest)
}

func (g *GRPCServer) GridSearch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, in, g.svc.GridSearch)
}

func (g *GRPCServer) WalkForward(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, in, g.svc.WalkForward)
}

func (g *GRPCServer) RunBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, in, g.svc.Batch)
}

// StrategiesResponse lists registered strategies.
type StrategiesResponse struct {
	Strategies []StrategyInfo `json:"strategies"`
}

func (g *GRPCServer) ListStrategies(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, in, func(context.Context, struct{}) (StrategiesResponse, error) {
		return StrategiesResponse{Strategies: g.svc.Strategies()}, nil
	})
}

// RunsRequest limits a run listing.
type RunsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// RunsResponse lists saved runs, newest first.
type RunsResponse struct {
	Runs []store.Run `json:"runs"`
}

func (g *GRPCServer) ListRuns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, in, func(ctx context.Context, req RunsRequest) (RunsResponse, error) {
		runs, err := g.svc.Runs(ctx, req.Limit)
		return RunsResponse{Runs: runs}, err
	})
}

// RunRequest selects a saved run.
type RunRequest struct {
	ID string `json:"id"`
}

func (g *GRPCServer) GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, in, func(ctx context.Context, req RunRequest) (*store.Run, error) {
		if req.ID == "" {
			return nil, fmt.Errorf("%w: id is required", ErrInvalidRequest)
		}
		return g.svc.Run(ctx, req.ID)
	})
}
