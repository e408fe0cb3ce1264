package main

import (
	"fmt"

	"sol/internal/version"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root sol command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sol",
		Short:         "Sol outbound delivery engine",
		Long:          "sol queues outbound transmissions durably and delivers them over\nunreliable networks with retries, idempotent sends, and push-assisted polling.",
		Version:       fmt.Sprintf("sol %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newDaemonCmd(),
		newStopCmd(),
		newEnqueueCmd(),
		newRetryCmd(),
		newStatusCmd(),
		newAttemptsCmd(),
	)

	return cmd
}
