package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/procedures"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"
)

// PlatformServer serves the named procedures over gRPC.
type PlatformServer struct {
	registry *procedures.Registry
	logger   *zap.Logger
	srv      *grpc.Server
}

func NewPlatformServer(registry *procedures.Registry, logger *zap.Logger) *PlatformServer {
	s := &PlatformServer{registry: registry, logger: logger}
	s.srv = grpc.NewServer(grpc.UnaryInterceptor(s.logUnary))
	RegisterProceduresServer(s.srv, s)
	reflection.Register(s.srv)
	return s
}

// Start listens on addr and serves until Stop.
func (s *PlatformServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.logger.Info("Platform service started", zap.String("address", addr), zap.Strings("procedures", s.registry.Names()))
	return s.Serve(lis)
}

func (s *PlatformServer) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

func (s *PlatformServer) Stop() {
	s.srv.GracefulStop()
}

func (s *PlatformServer) Call(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	name, args := decodeRequest(req)
	if name == "" {
		return nil, ToStatus(errs.Invalid("procedure is required"))
	}
	result, err := s.registry.Invoke(ctx, name, args)
	if err != nil {
		return nil, ToStatus(err)
	}
	v, err := encodeResult(result)
	if err != nil {
		s.logger.Error("Failed to encode procedure result", zap.String("procedure", name), zap.Error(err))
		return nil, ToStatus(&errs.Error{Code: errs.EInternal, Op: "grpc.Call", Err: err})
	}
	return v, nil
}

func (s *PlatformServer) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	fields := []zap.Field{zap.String("method", info.FullMethod), zap.Duration("latency", time.Since(start))}
	if r, ok := req.(*structpb.Struct); ok {
		name, _ := decodeRequest(r)
		fields = append(fields, zap.String("procedure", name))
	}
	if err != nil {
		s.logger.Info("RPC failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("RPC", fields...)
	}
	return resp, err
}
