package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// healthServer exposes grpc.health.v1.Health for orchestrators that probe over gRPC.
type healthServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

func newHealthServer(host string, port int) (*healthServer, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(1<<20),
		grpc.ConnectionTimeout(30*time.Second),
	)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &healthServer{server: s, health: hs, listener: ln}, nil
}

func (h *healthServer) addr() string { return h.listener.Addr().String() }

func (h *healthServer) serve() error {
	if err := h.server.Serve(h.listener); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// stop marks the service NOT_SERVING and stops gracefully, forcing after timeout.
func (h *healthServer) stop(timeout time.Duration) {
	h.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		h.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		h.server.Stop()
		<-stopped
	}
}
