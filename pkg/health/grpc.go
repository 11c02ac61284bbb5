package health

import (
	"fmt"
	"net"

	"companion-chat/backend/pkg/logger"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall "" entry
const ServiceName = "companion-chat"

// GRPCServer exposes the checker through the standard grpc.health.v1 protocol
type GRPCServer struct {
	server *grpc.Server
	health *grpchealth.Server
	log    *logger.Logger
}

// NewGRPCServer wires a gRPC health server that mirrors the checker
func NewGRPCServer(checker *Checker, log *logger.Logger) *GRPCServer {
	hs := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	g := &GRPCServer{server: srv, health: hs, log: log}
	g.set(checker.IsSystemHealthy())
	checker.OnChange(g.set)
	return g
}

func (g *GRPCServer) set(healthy bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Serve listens on addr and blocks until Stop
func (g *GRPCServer) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return g.ServeListener(lis)
}

// ServeListener serves on an existing listener
func (g *GRPCServer) ServeListener(lis net.Listener) error {
	g.log.Info("gRPC health server listening", "addr", lis.Addr().String())
	return g.server.Serve(lis)
}

// Stop drains in-flight RPCs and marks every service as not serving
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
