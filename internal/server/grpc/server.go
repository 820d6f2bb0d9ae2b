package grpc

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/canteen/internal/config"
)

// ServiceName is the health-checked service name for the canteen API.
const ServiceName = "canteen.Orders"

// Module exposes the gRPC server and lifecycle hooks to Fx.
var Module = fx.Module("grpc_server",
	fx.Provide(health.NewServer, NewServer),
	fx.Invoke(Run),
)

// NewServer builds a gRPC server with call logging, the standard health
// service and reflection.
func NewServer(logger *zap.Logger, hs *health.Server) *grpc.Server {
	calls := callLogger{logger: logger.Named("grpc")}
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(calls.unary),
		grpc.ChainStreamInterceptor(calls.stream),
	)
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return server
}

type callLogger struct {
	logger *zap.Logger
}

func (c callLogger) unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	c.log(info.FullMethod, start, err)
	return resp, err
}

func (c callLogger) stream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	c.log(info.FullMethod, start, err)
	return err
}

// log writes one line per call; successful health probes go to debug.
func (c callLogger) log(method string, start time.Time, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("code", status.Code(err).String()),
		zap.Duration("duration", time.Since(start)),
	}
	switch {
	case err != nil:
		c.logger.Warn("grpc call failed", append(fields, zap.Error(err))...)
	case strings.HasPrefix(method, "/grpc.health.v1.Health/"):
		c.logger.Debug("grpc call finished", fields...)
	default:
		c.logger.Info("grpc call finished", fields...)
	}
}

// Run binds the gRPC server to the configured host/port and manages lifecycle.
// Health flips to SERVING once the listener is up and back on shutdown.
func Run(lc fx.Lifecycle, cfg config.Config, server *grpc.Server, hs *health.Server, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	var listener net.Listener

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen grpc: %w", err)
			}
			listener = ln
			hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
			logger.Info("starting gRPC server", zap.String("addr", addr))
			go func() {
				if err := server.Serve(listener); err != nil {
					logger.Fatal("grpc server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping gRPC server")
			hs.Shutdown()
			stopped := make(chan struct{})
			go func() {
				server.GracefulStop()
				close(stopped)
			}()

			select {
			case <-ctx.Done():
				server.Stop()
				return ctx.Err()
			case <-stopped:
				if listener != nil {
					_ = listener.Close()
				}
				return nil
			}
		},
	})
}
