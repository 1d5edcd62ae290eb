package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/alfredjeanlab/crossing/internal/client"
	"github.com/alfredjeanlab/crossing/internal/server"
	"github.com/alfredjeanlab/crossing/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:               "status",
	Short:             "Check scheduler health over gRPC",
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("grpc-addr")
		hc, err := client.NewHealthClient(addr)
		if err != nil {
			return err
		}
		defer hc.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := hc.Check(ctx, server.HealthService)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			data, err := protojson.MarshalOptions{Multiline: true, EmitUnpopulated: true}.Marshal(resp)
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
		} else {
			fmt.Printf("Health: %s\n", ui.RenderStatus(resp.GetStatus().String()))
		}

		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("unhealthy: %s", resp.GetStatus())
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("grpc-addr", envOrDefault("CROSSING_GRPC_ADDR", "localhost:9090"), "scheduler gRPC address")
}
