package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/mitchelldurbincs/dungeonsync/internal/config"
)

// sessionService is the health service name orchestrators probe.
const sessionService = "dungeonsync.Session"

// adminServer is the gRPC listener carrying health checks and reflection.
// A nil *adminServer is valid and does nothing.
type adminServer struct {
	server *grpc.Server
	health *health.Server
	lis    net.Listener
	logger zerolog.Logger
}

func newAdminServer(cfg config.GRPCConfig, logger zerolog.Logger) (*adminServer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	logger = logger.With().Str("component", "AdminServer").Logger()

	lis, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}

	i := interceptors{logger: logger}
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(i.logging, i.recovery),
		grpc.ChainStreamInterceptor(i.streamLogging, i.streamRecovery),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(sessionService, grpc_health_v1.HealthCheckResponse_SERVING)

	if cfg.EnableReflection {
		reflection.Register(server)
		logger.Info().Msg("gRPC reflection enabled")
	}
	return &adminServer{server: server, health: healthServer, lis: lis, logger: logger}, nil
}

func (a *adminServer) serve() error {
	if a == nil {
		return nil
	}
	a.logger.Info().Str("address", a.lis.Addr().String()).Msg("gRPC admin server listening")
	return a.server.Serve(a.lis)
}

func (a *adminServer) setServing(s grpc_health_v1.HealthCheckResponse_ServingStatus) {
	if a == nil {
		return
	}
	a.health.SetServingStatus("", s)
	a.health.SetServingStatus(sessionService, s)
}

func (a *adminServer) stop() {
	if a == nil {
		return
	}
	a.logger.Info().Msg("Gracefully stopping gRPC server")
	a.health.Shutdown()
	a.server.GracefulStop()
}

type interceptors struct {
	logger zerolog.Logger
}

// logging logs all unary RPC calls
func (i interceptors) logging(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := codes.OK
	if err != nil {
		if st, ok := status.FromError(err); ok {
			code = st.Code()
		}
	}
	i.logger.Debug().
		Str("method", info.FullMethod).
		Str("code", code.String()).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("gRPC call")
	return resp, err
}

// recovery catches panics and returns proper gRPC errors
func (i interceptors) recovery(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error().
				Str("method", info.FullMethod).
				Interface("panic", r).
				Msg("Recovered from panic in gRPC handler")
			err = status.Errorf(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

// streamLogging logs all streaming RPC calls, such as health watches
func (i interceptors) streamLogging(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)

	code := codes.OK
	if err != nil {
		if st, ok := status.FromError(err); ok {
			code = st.Code()
		}
	}
	i.logger.Debug().
		Str("method", info.FullMethod).
		Str("code", code.String()).
		Dur("duration", time.Since(start)).
		Bool("is_client_stream", info.IsClientStream).
		Bool("is_server_stream", info.IsServerStream).
		Err(err).
		Msg("gRPC stream")
	return err
}

// streamRecovery catches panics in streaming handlers
func (i interceptors) streamRecovery(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error().
				Str("method", info.FullMethod).
				Interface("panic", r).
				Msg("Recovered from panic in gRPC stream handler")
			err = status.Errorf(codes.Internal, "internal server error")
		}
	}()
	return handler(srv, ss)
}
