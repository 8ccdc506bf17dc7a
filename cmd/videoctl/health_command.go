package main

import (
	"fmt"
	"time"

	"tiered_video_service/pkg/database"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newHealthCommand() *cobra.Command {
	var (
		addr    string
		service string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the transcode worker gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := database.CreateGRPCClient(cmd.Context(), addr, timeout)
			if err != nil {
				return err
			}
			defer conn.Close()

			resp, err := healthpb.NewHealthClient(conn).Check(cmd.Context(), &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				return fmt.Errorf("health check %s: %w", addr, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Address", "Service", "Status"},
				[][]string{{addr, service, resp.GetStatus().String()}},
			))
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s is %s", service, resp.GetStatus())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:50061", "Worker health address")
	cmd.Flags().StringVar(&service, "service", "transcode_worker", "Health service name")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "Connect timeout")
	return cmd
}
