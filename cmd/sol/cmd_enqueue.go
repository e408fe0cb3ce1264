package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"sol/pkg/outbox"

	"github.com/spf13/cobra"
)

// newEnqueueCmd creates the "sol enqueue" subcommand.
func newEnqueueCmd() *cobra.Command {
	var thread string
	var kind string
	var messageIDs []string

	cmd := &cobra.Command{
		Use:   "enqueue <text>",
		Short: "Queue an outbound transmission",
		Long: "Creates a packet from the given text and enqueues it for delivery.\n" +
			"Returns immediately; the daemon picks the transmission up on its next\npass (the db write itself wakes it).",
		Args: cobra.MinimumNArgs(1),
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

			body, err := json.Marshal(map[string]string{"text": strings.Join(args, " ")})
			if err != nil {
				return fmt.Errorf("encode body: %w", err)
			}

			tm, err := store.Enqueue(cmd.Context(), outbox.EnqueueParams{
				Kind:       kind,
				ThreadID:   thread,
				MessageIDs: messageIDs,
				Body:       string(body),
			})
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queued %s (thread=%s, kind=%s)\n", tm.ID, thread, kind)
			return nil
		},
	}

	cmd.Flags().StringVar(&thread, "thread", "default", "conversation thread id")
	cmd.Flags().StringVar(&kind, "kind", outbox.KindChat, "packet kind")
	cmd.Flags().StringSliceVar(&messageIDs, "message-id", nil, "local message ids covered by this packet")
	return cmd
}
