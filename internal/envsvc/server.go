package envsvc

import (
	"github.com/signalsfoundry/supplychain-env/internal/logging"
	"github.com/signalsfoundry/supplychain-env/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// NewGRPCServer builds a gRPC server with the env service registered and
// the standard interceptor chain: request id, tracing, metrics, error
// mapping. collector may be nil.
func NewGRPCServer(session *Session, log logging.Logger, collector *observability.EnvCollector, opts ...grpc.ServerOption) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(session.EpisodeID),
	}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
	}
	interceptors = append(interceptors, ErrorUnaryServerInterceptor(log))

	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}
	serverOpts = append(serverOpts, opts...)

	server := grpc.NewServer(serverOpts...)
	RegisterEnvServiceServer(server, NewService(session, log))
	return server
}
