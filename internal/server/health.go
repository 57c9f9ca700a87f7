package server

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/arrivals-intake/constants"
)

// ServiceName is the gRPC health service name for the intake worker.
const ServiceName = "arrivals.intake"

// HealthReporter maps scheduler run states onto gRPC health statuses.
type HealthReporter struct {
	hs     *health.Server
	logger *zap.Logger
}

func NewHealthReporter(logger *zap.Logger) *HealthReporter {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{hs: hs, logger: logger}
}

// OnState is meant for intake.WithStateListener.
func (r *HealthReporter) OnState(state constants.RunState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == constants.RunStateRunning {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.hs.SetServingStatus("", status)
	r.hs.SetServingStatus(ServiceName, status)
	r.logger.Info("health status changed", zap.String("run_state", string(state)), zap.String("status", status.String()))
}

// Server returns the underlying health server.
func (r *HealthReporter) Server() *health.Server { return r.hs }

// Shutdown marks every service NOT_SERVING.
func (r *HealthReporter) Shutdown() { r.hs.Shutdown() }

// NewGRPCServer registers health and reflection on a fresh gRPC server.
func NewGRPCServer(r *HealthReporter) *grpc.Server {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, r.hs)
	// Reflection for grpcurl
	reflection.Register(s)
	return s
}
