package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/promptdrive/promptdrive/internal/library"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Write the library to a JSON mirror file",
		Long: "Writes the full library as a JSON snapshot, in the same format " +
			"as the Drive file. The path defaults to mirror_path from the config.",
		Args: cobra.MaximumNArgs(1),
		RunE: runExport,
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [path]",
		Short: "Import edits to the JSON mirror into the library",
		Long: "Watches the mirror file and imports it into the library whenever " +
			"it changes, until interrupted. The path defaults to mirror_path " +
			"from the config.",
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}
}

// mirrorPath resolves the mirror file path from the argument or config.
func mirrorPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	if cfg.MirrorPath != "" {
		return cfg.MirrorPath, nil
	}

	return "", errors.New("no mirror path: pass one as an argument or set mirror_path in the config")
}

func runExport(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	path, err := mirrorPath(args)
	if err != nil {
		return err
	}

	return withStore(ctx, func(store *library.Store) error {
		if err := store.ExportMirror(ctx, path); err != nil {
			return fmt.Errorf("exporting mirror: %w", err)
		}

		count, err := store.Len(ctx)
		if err != nil {
			return fmt.Errorf("counting prompts: %w", err)
		}

		statusf("Exported %d prompts to %s.\n", count, path)

		return nil
	})
}

func runWatch(_ *cobra.Command, args []string) error {
	path, err := mirrorPath(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(ctx, func(store *library.Store) error {
		statusf("Watching %s (Ctrl-C to stop).\n", path)

		if err := store.WatchMirror(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watching mirror: %w", err)
		}

		return nil
	})
}
