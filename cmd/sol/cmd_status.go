package main

import (
	"fmt"
	"text/tabwriter"

	"sol/pkg/outbox"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the "sol status" subcommand.
func newStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and outbox state",
		Long:  "Displays daemon liveness, transmission counts by status, and the most\nrecent transmissions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			status, pid, err := DaemonStatus(paths.PIDPath)
			if err != nil {
				return err
			}
			switch status {
			case StatusRunning:
				fmt.Fprintf(out, "daemon: running (PID %d)\n", pid)
			case StatusStale:
				fmt.Fprintf(out, "daemon: stale PID file (PID %d dead)\n", pid)
			case StatusStopped:
				fmt.Fprintln(out, "daemon: stopped")
			}

			store, db, err := openStore(cmd.Context(), paths)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // best-effort close on read-only path

			counts, err := store.CountsByStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			fmt.Fprintf(out, "outbox: %d queued, %d sending, %d pending, %d succeeded, %d failed\n",
				counts[outbox.StatusQueued], counts[outbox.StatusSending], counts[outbox.StatusPending],
				counts[outbox.StatusSucceeded], counts[outbox.StatusFailed])

			recent, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			if len(recent) == 0 {
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tCORRELATION\tCREATED\tLAST ERROR")
			for _, tm := range recent {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					tm.ID, tm.Status, orDash(tm.CorrelationID), tm.CreatedAt, orDash(tm.LastError))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent transmissions to show")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
