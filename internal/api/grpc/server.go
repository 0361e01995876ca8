// Package grpcapi serves the standard gRPC health and reflection services.
// Health follows the session transport: SERVING while it is subscribed.
package grpcapi

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-chat-transcript-service/internal/observability"
	"ai-chat-transcript-service/internal/observability/metrics"
)

// ServiceName is the health service name reported for the transcript service.
const ServiceName = "ai.chat.transcript.TranscriptService"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewServer(m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	return &Server{grpc: g, health: hs}
}

// SetServing updates the reported health of the service.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve blocks serving lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop reports NOT_SERVING and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
