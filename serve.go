package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/promptdrive/promptdrive/internal/bridge"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local websocket bridge for UI clients",
		Long: "Serves the sync engine over a loopback websocket so UI clients " +
			"can authenticate, sync, and observe library changes. Runs until " +
			"interrupted.",
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (overrides listen_addr from the config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	addr, _ := cmd.Flags().GetString("listen")
	if addr == "" {
		addr = cfg.ListenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer eng.Close() //nolint:errcheck // read-mostly teardown

	srv := bridge.NewServer(eng.sync, eng.auth, eng.store, logger)

	statusf("Bridge listening on %s (Ctrl-C to stop).\n", addr)

	if err := srv.Serve(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
