package health

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServeGRPC serves grpc.health.v1 on lis until ctx is done. The overall
// service ("") and one service per connection name are refreshed every
// interval; degraded pools still report SERVING.
func ServeGRPC(ctx context.Context, lis net.Listener, r *Reporter, interval time.Duration) error {
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	known := make(map[string]bool)
	refresh := func() {
		sum := r.CheckAll(ctx)
		hs.SetServingStatus("", servingStatus(sum.Status))
		seen := make(map[string]bool, len(sum.Connections))
		for _, rep := range sum.Connections {
			seen[rep.Connection] = true
			known[rep.Connection] = true
			hs.SetServingStatus(rep.Connection, servingStatus(rep.Status))
		}
		for name := range known {
			if !seen[name] {
				hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
				delete(known, name)
			}
		}
	}
	refresh()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				refresh()
			case <-ctx.Done():
				hs.Shutdown()
				srv.GracefulStop()
				return
			}
		}
	}()

	slog.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func servingStatus(s Status) healthpb.HealthCheckResponse_ServingStatus {
	if s == Unhealthy {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
