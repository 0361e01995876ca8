package grpcapi

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"ai-chat-transcript-service/internal/observability/metrics"
)

func dial(t *testing.T, s *Server) grpc_health_v1.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.GracefulStop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return grpc_health_v1.NewHealthClient(conn)
}

func check(t *testing.T, c grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	return resp.GetStatus()
}

func TestServer_HealthFollowsServing(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := NewServer(m)
	c := dial(t, s)

	if got := check(t, c, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING before start, got %v", got)
	}

	s.SetServing(true)
	if got := check(t, c, ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", got)
	}
	if got := check(t, c, ""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected overall SERVING, got %v", got)
	}

	s.SetServing(false)
	if got := check(t, c, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING after stop, got %v", got)
	}

	method := "/grpc.health.v1.Health/Check"
	if got := testutil.ToFloat64(m.GRPCRequests.WithLabelValues(method, "OK")); got != 4 {
		t.Errorf("expected 4 recorded health checks, got %v", got)
	}
}
