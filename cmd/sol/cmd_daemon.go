package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"sol/pkg/delivery"
	"sol/pkg/push"
	"sol/pkg/sched"
	"sol/pkg/transport"

	"github.com/spf13/cobra"
)

// newDaemonCmd creates the "sol daemon" subcommand.
func newDaemonCmd() *cobra.Command {
	var pushStdin bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the delivery daemon",
		Long: "Runs the outbound delivery loop in the foreground: recovers interrupted\n" +
			"sends, then sweeps the outbox on every trigger until SIGTERM/SIGINT.\n" +
			"With --push-stdin, line-delimited JSON push events on stdin shortcut\n" +
			"the poll for resolved transmissions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			cfg, err := LoadConfig(paths)
			if err != nil {
				return err
			}
			var pushFeed io.Reader
			if pushStdin {
				pushFeed = cmd.InOrStdin()
			}
			return runDaemon(cmd.Context(), paths, cfg, pushFeed, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&pushStdin, "push-stdin", false, "read push events as line-delimited JSON from stdin")
	return cmd
}

// runDaemon wires the store, transport, engine, and coordinator together and
// blocks until ctx is cancelled or a termination signal arrives.
func runDaemon(ctx context.Context, paths *Paths, cfg FileConfig, pushFeed io.Reader, out io.Writer) error {
	if cfg.BaseURL == "" {
		return errors.New("no base_url configured: set it in config.yaml or SOL_BASE_URL")
	}

	store, db, err := openStore(ctx, paths)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // best-effort close on shutdown

	ctx, cleanup := SetupSignalHandler(ctx, paths.PIDPath)
	defer cleanup()
	if err := WritePIDFile(paths.PIDPath, os.Getpid()); err != nil {
		return err
	}

	// Anything stuck in "sending" is a previous run that died mid-call; the
	// idempotency key makes the replay safe.
	recovered, err := store.RecoverSending(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted sends: %w", err)
	}
	if recovered > 0 {
		fmt.Fprintf(out, "requeued %d interrupted transmission(s)\n", recovered)
	}

	engineCfg, err := cfg.DeliveryConfig()
	if err != nil {
		return err
	}
	tick, err := cfg.Tick()
	if err != nil {
		return err
	}

	tr := transport.New(transport.Config{
		BaseURL: cfg.BaseURL,
		Decorate: func(r *http.Request) {
			if cfg.AuthToken != "" {
				r.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
			}
		},
	})
	engine := delivery.New(store, tr, engineCfg)
	ser := delivery.NewSerializer()
	coord := sched.New(sched.Config{
		TickInterval: tick,
		DBPath:       paths.DBPath,
	}, engine, ser)

	if pushFeed != nil {
		bridge := push.NewBridge(coord)
		go func() {
			if err := bridge.Listen(ctx, pushFeed); err != nil && ctx.Err() == nil {
				fmt.Fprintf(out, "push feed closed: %v\n", err)
			}
		}()
	}

	fmt.Fprintf(out, "sol daemon running (db %s, PID %d)\n", paths.DBPath, os.Getpid())
	if err := coord.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(out, "sol daemon stopped")
	return nil
}
