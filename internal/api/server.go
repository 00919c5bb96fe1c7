package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/buessow/glumagic/internal/config"
)

// Server hosts the feature service, gRPC health and reflection on one
// listener.
type Server struct {
	cfg      config.ServerConfig
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
}

// NewServer listens on cfg.Address and registers svc. Extra options are
// applied after the Prometheus interceptors.
func NewServer(cfg config.ServerConfig, svc FeatureAPI, opts ...grpc.ServerOption) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("feature service not configured")
	}
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}

	s := &Server{
		cfg:      cfg,
		grpc:     grpc.NewServer(serverOptions(opts)...),
		health:   health.NewServer(),
		listener: lis,
	}
	RegisterFeatureServiceServer(s.grpc, &featureServer{svc: svc})
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	grpc_prometheus.Register(s.grpc)

	for _, name := range []string{"", featureServiceName} {
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	return s, nil
}

func serverOptions(extra []grpc.ServerOption) []grpc.ServerOption {
	grpc_prometheus.EnableHandlingTimeHistogram()
	return append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}, extra...)
}

// Start blocks serving requests. It returns nil once the server was shut
// down.
func (s *Server) Start() error {
	if s.grpc == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown reports NOT_SERVING to health probes, then drains in-flight
// calls until ctx ends and stops hard after that.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpc == nil {
		return
	}
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.grpc.GracefulStop()
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.grpc.Stop()
		<-drained
	}
}

// Address is the address the listener is bound to.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout bounds Shutdown in the serve command.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
