package server

import (
	"context"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServer(t *testing.T) {
	req := require.New(t)
	s := NewHealthServer(slog.New(slog.DiscardHandler))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	conn, err := grpc.NewClient(ln.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)
	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		req.NoError(err)
		return resp.GetStatus()
	}

	// Given the relay is still booting
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, check(""))

	// When it is ready
	s.SetServing(true)

	// Then both services report serving
	req.Equal(healthpb.HealthCheckResponse_SERVING, check(""))
	req.Equal(healthpb.HealthCheckResponse_SERVING, check(RelayService))

	s.GracefulStop()
	req.NoError(<-errCh)
}
