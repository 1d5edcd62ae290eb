package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/crossing/internal/journal"
	"github.com/alfredjeanlab/crossing/internal/journal/postgres"
)

var historyCmd = &cobra.Command{
	Use:               "history",
	Short:             "Show journaled reservations and evictions",
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, _ := cmd.Flags().GetString("agent")
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")

		j, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer j.Close()

		records, err := j.List(context.Background(), journal.Filter{
			AgentID: agent,
			Kind:    journal.Kind(kind),
			Limit:   limit,
		})
		if err != nil {
			return fmt.Errorf("listing journal: %w", err)
		}
		if jsonOutput {
			return printJSON(records)
		}
		printHistoryTable(records)
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journal records older than a cutoff",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		if age <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		j, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer j.Close()

		n, err := j.Prune(context.Background(), time.Now().Add(-age))
		if err != nil {
			return fmt.Errorf("pruning journal: %w", err)
		}
		fmt.Printf("Pruned %d records\n", n)
		return nil
	},
}

func openJournal(cmd *cobra.Command) (*postgres.Journal, error) {
	url, _ := cmd.Flags().GetString("database-url")
	if url == "" {
		return nil, fmt.Errorf("no journal database: set --database-url or CROSSING_DATABASE_URL")
	}
	return postgres.New(url)
}

func printHistoryTable(records []*journal.Record) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED\tKIND\tSESSION\tAGENT\tROUTE\tDETAIL")
	for _, r := range records {
		route, detail := "-", r.Reason
		if r.Entry != "" {
			route = r.Entry + "->" + r.Exit
		}
		if r.Kind == journal.KindReserved && r.EarliestEntry != nil && r.LatestEntry != nil {
			detail = fmt.Sprintf("entry +[%.1f, %.1f]s", *r.EarliestEntry, *r.LatestEntry)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			r.Kind,
			r.SessionID,
			r.AgentID,
			route,
			detail,
		)
	}
	w.Flush()
}

func init() {
	historyCmd.PersistentFlags().String("database-url", os.Getenv("CROSSING_DATABASE_URL"), "journal PostgreSQL URL")
	historyCmd.Flags().String("agent", "", "only show records of this agent")
	historyCmd.Flags().String("kind", "", "only show records of this kind (reserved, evicted)")
	historyCmd.Flags().Int("limit", 50, "maximum number of records")
	historyPruneCmd.Flags().Duration("older-than", 7*24*time.Hour, "prune records recorded before now minus this age")

	historyCmd.AddCommand(historyPruneCmd)
}
