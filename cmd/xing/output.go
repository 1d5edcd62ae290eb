package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/crossing/internal/model"
	"github.com/alfredjeanlab/crossing/internal/ui"
)

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// renderError prefixes remote failures with their wire code.
func renderError(err error) string {
	var remote *model.RemoteError
	if errors.As(err, &remote) {
		return ui.RenderFail("Error ["+remote.Code+"]:") + " " + remote.Reason
	}
	return ui.RenderFail("Error:") + " " + err.Error()
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04:05.000")
}

func printSessionsTable(sessions []*model.Session) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAGENT\tPHASE\tARRIVAL\tRESERVE BY\tROUTE\tWINDOW")
	for _, s := range sessions {
		route, window := "-", "-"
		if r := s.Reservation; r != nil {
			route = r.Entry + "->" + r.Exit
			window = fmt.Sprintf("%s +[%.1f, %.1f]s", formatClock(r.TimeRef), r.EarliestEntry, r.LatestEntry)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(s.ID, ui.Width()/4),
			s.AgentID,
			ui.RenderPhase(s.Phase().String()),
			formatClock(s.ArrivalTime),
			formatClock(s.LatestReserveTime),
			route,
			window,
		)
	}
	w.Flush()
	fmt.Printf("\n%d sessions\n", len(sessions))
}

func printRosterTable(vehicles []model.VehiclePresence) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tSTATE\tPOSITION\tSPEED\tIDLE\tSAMPLES")
	for _, v := range vehicles {
		state := ui.RenderOK("live")
		if v.Lost {
			state = ui.RenderFail("lost")
		}
		fmt.Fprintf(w, "%s\t%s\t(%.1f, %.1f)\t%.1f m/s\t%.1fs\t%d\n",
			v.AgentID, state, v.X, v.Y, v.Speed, v.IdleSecs, v.Samples)
	}
	w.Flush()
}

func printReservation(r *model.ReserveResponse) {
	fmt.Printf("Time Ref:    %s\n", r.TimeRef)
	fmt.Printf("Entry:       [%.3f, %.3f]s\n", r.EarliestEntry, r.LatestEntry)
	fmt.Printf("Exit:        [%.3f, %.3f]s\n", r.EarliestExit, r.LatestExit)
}

func truncate(s string, n int) string {
	if n < 8 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// parseWhen accepts an RFC 3339 timestamp or a duration offset from now
// ("+30s", "45s").
func parseWhen(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(strings.TrimPrefix(s, "+"))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or an offset like +30s", s)
	}
	return now.Add(d), nil
}
