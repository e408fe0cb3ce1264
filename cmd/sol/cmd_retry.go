package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRetryCmd creates the "sol retry" subcommand.
func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Requeue all failed transmissions",
		Long: "Moves every failed transmission back to queued and repairs packets\n" +
			"recorded under a failure kind. Attempt history is preserved; the\ndaemon retries on its next pass.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			store, db, err := openStore(cmd.Context(), paths)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // best-effort close after one write

			n, err := store.RequeueFailed(cmd.Context())
			if err != nil {
				return fmt.Errorf("retry: %w", err)
			}

			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to retry")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d failed transmission(s)\n", n)
			return nil
		},
	}
}
