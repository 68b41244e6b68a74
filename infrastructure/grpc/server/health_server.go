package server

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RelayService is the name under which the relay reports its own health,
// next to the overall "" service.
const RelayService = "study.relay.v1.Relay"

// HealthServer exposes the standard gRPC health protocol so that
// orchestrators can probe the relay without speaking HTTP.
type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger, opts ...grpc.ServerOption) *HealthServer {
	s := &HealthServer{
		log:    log,
		server: grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.SetServing(false)
	return s
}

func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RelayService, status)
	s.log.Debug("Health status changed", "status", status.String())
}

func (s *HealthServer) Serve(l net.Listener) error {
	s.log.Info("Starting gRPC health server", "address", l.Addr().String())
	for serviceName := range s.server.GetServiceInfo() {
		s.log.Debug("gRPC exposed services", "name", serviceName)
	}
	return s.server.Serve(l)
}

// GracefulStop reports NOT_SERVING to watchers before draining the server.
func (s *HealthServer) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
