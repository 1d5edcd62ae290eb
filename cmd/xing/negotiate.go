package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/crossing/internal/model"
)

var connectCmd = &cobra.Command{
	Use:     "connect <agent-id> <arrival>",
	Short:   "Open a session for an agent arriving at the zone",
	Long:    "Open a session. <arrival> is an RFC 3339 time or an offset from now such as +30s.",
	GroupID: "agent",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		arrival, err := parseWhen(args[1], time.Now())
		if err != nil {
			return err
		}
		resp, err := schedClient.Connect(context.Background(), args[0], arrival)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Printf("Session:     %s\n", resp.SessionID)
		fmt.Printf("Transit:     %gs\n", resp.TransitTime)
		fmt.Printf("Reserve by:  %s\n", resp.LatestReserveTime)
		return nil
	},
}

var notifyCmd = &cobra.Command{
	Use:     "notify <session-id> <arrival>",
	Short:   "Update the announced arrival time of a session",
	GroupID: "agent",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		arrival, err := parseWhen(args[1], time.Now())
		if err != nil {
			return err
		}
		resp, err := schedClient.Notify(context.Background(), args[0], arrival)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Printf("Reserve by:  %s\n", resp.LatestReserveTime)
		return nil
	},
}

var reserveCmd = &cobra.Command{
	Use:     "reserve <session-id> <entry> <exit>",
	Short:   "Request a crossing window",
	GroupID: "agent",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, _ := cmd.Flags().GetString("time-ref")
		earliest, _ := cmd.Flags().GetFloat64("earliest")
		latest, _ := cmd.Flags().GetFloat64("latest")

		timeRef, err := parseWhen(ref, time.Now())
		if err != nil {
			return err
		}
		resp, err := schedClient.Reserve(context.Background(), &model.ReserveRequest{
			SessionID:     args[0],
			Entry:         args[1],
			Exit:          args[2],
			TimeRef:       model.FormatTime(timeRef),
			EarliestEntry: earliest,
			LatestEntry:   latest,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		printReservation(resp)
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:     "state <agent-id>",
	Short:   "Publish one vehicle state sample",
	GroupID: "agent",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, _ := cmd.Flags().GetFloat64("x")
		y, _ := cmd.Flags().GetFloat64("y")
		heading, _ := cmd.Flags().GetFloat64("heading")
		speed, _ := cmd.Flags().GetFloat64("speed")
		return schedClient.PublishState(context.Background(), &model.VehicleState{
			AgentID: args[0],
			X:       x,
			Y:       y,
			Heading: heading,
			Speed:   speed,
			Stamp:   time.Now(),
		})
	},
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "List active sessions",
	GroupID: "agent",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, _ := cmd.Flags().GetString("agent")
		sessions, err := schedClient.Sessions(context.Background(), agent)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(sessions)
		}
		printSessionsTable(sessions)
		return nil
	},
}

var rosterCmd = &cobra.Command{
	Use:     "roster",
	Short:   "List vehicles reporting state",
	GroupID: "agent",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		maxIdle, _ := cmd.Flags().GetDuration("max-idle")
		vehicles, err := schedClient.Roster(context.Background(), maxIdle)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(vehicles)
		}
		printRosterTable(vehicles)
		return nil
	},
}

func init() {
	reserveCmd.Flags().String("time-ref", "+0s", "reference time of the window (RFC 3339 or offset from now)")
	reserveCmd.Flags().Float64("earliest", 0, "earliest entry, seconds after time-ref")
	reserveCmd.Flags().Float64("latest", 2, "latest entry, seconds after time-ref")

	stateCmd.Flags().Float64("x", 0, "position x (m)")
	stateCmd.Flags().Float64("y", 0, "position y (m)")
	stateCmd.Flags().Float64("heading", 0, "heading (rad)")
	stateCmd.Flags().Float64("speed", 0, "speed (m/s)")

	sessionsCmd.Flags().String("agent", "", "only list sessions of this agent")

	rosterCmd.Flags().Duration("max-idle", 0, "hide vehicles silent for longer than this (0 = show all)")
}
