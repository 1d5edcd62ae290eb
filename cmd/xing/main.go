package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/crossing/internal/client"
	"github.com/alfredjeanlab/crossing/internal/events"
)

var (
	natsURL    string
	prefix     string
	jsonOutput bool

	schedClient client.SchedulerClient
)

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var rootCmd = &cobra.Command{
	Use:           "xing <command>",
	Short:         "Intersection reservation scheduler and agent CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.NewNATSClient(natsURL, prefix)
		if err != nil {
			return fmt.Errorf("failed to connect to scheduler: %w", err)
		}
		schedClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if schedClient != nil {
			schedClient.Close()
		}
	},
}

// noClient replaces the root pre-run for commands that do not talk to the
// scheduler over NATS.
func noClient(cmd *cobra.Command, args []string) error { return nil }

func init() {
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", envOrDefault("CROSSING_NATS_URL", "nats://127.0.0.1:4222"), "NATS server URL")
	rootCmd.PersistentFlags().StringVar(&prefix, "prefix", envOrDefault("CROSSING_SUBJECT_PREFIX", events.DefaultPrefix), "NATS subject prefix")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "agent", Title: "Agent:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Agent
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(reserveCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(rosterCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}
