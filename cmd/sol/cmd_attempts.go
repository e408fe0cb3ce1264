package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newAttemptsCmd creates the "sol attempts" subcommand.
func newAttemptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attempts <transmission-id>",
		Short: "Show the delivery ledger for a transmission",
		Long:  "Prints every delivery attempt recorded for the transmission, oldest\nfirst. The ledger is append-only; it survives retries and requeues.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			store, db, err := openStore(cmd.Context(), paths)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // best-effort close on read-only path

			tm, err := store.Transmission(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("attempts: %w", err)
			}
			attempts, err := store.Attempts(cmd.Context(), tm.ID)
			if err != nil {
				return fmt.Errorf("attempts: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s", tm.ID, tm.Status)
			if tm.LastError != "" {
				fmt.Fprintf(out, " (%s)", tm.LastError)
			}
			fmt.Fprintln(out)

			if len(attempts) == 0 {
				fmt.Fprintln(out, "no attempts recorded")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tAT\tSOURCE\tCODE\tOUTCOME\tERROR")
			for i, a := range attempts {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
					i+1, a.CreatedAt, a.Source, a.StatusCode, a.Outcome, orDash(a.Error))
			}
			return w.Flush()
		},
	}
}
