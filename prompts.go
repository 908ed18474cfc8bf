package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promptdrive/promptdrive/internal/library"
	"github.com/promptdrive/promptdrive/internal/prompt"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <key> [body]",
		Short: "Add or update a prompt",
		Long: "Stores a prompt under the given key. The body comes from the " +
			"second argument, or from stdin when omitted.",
		Args: cobra.RangeArgs(1, 2),
		RunE: runAdd,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a prompt",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List prompts in the local library",
		RunE:    runList,
	}

	cmd.Flags().BoolP("long", "l", false, "show full prompt bodies")

	return cmd
}

// withStore opens the local library for a command that needs nothing else.
func withStore(ctx context.Context, fn func(*library.Store) error) error {
	logger := buildLogger()

	store, err := library.Open(ctx, cfg.LibraryPath, logger)
	if err != nil {
		return fmt.Errorf("opening library: %w", err)
	}
	defer store.Close() //nolint:errcheck // read-mostly teardown

	return fn(store)
}

func runAdd(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	key, err := prompt.CleanKey(args[0])
	if err != nil {
		return fmt.Errorf("invalid key %q: %w", args[0], err)
	}

	var body string

	if len(args) == 2 {
		body = args[1]
	} else {
		raw, readErr := io.ReadAll(os.Stdin)
		if readErr != nil {
			return fmt.Errorf("reading prompt body from stdin: %w", readErr)
		}

		body = strings.TrimRight(string(raw), "\n")
	}

	if body == "" {
		return fmt.Errorf("prompt body is empty")
	}

	return withStore(ctx, func(store *library.Store) error {
		if err := store.Put(ctx, key, body); err != nil {
			return fmt.Errorf("saving prompt: %w", err)
		}

		statusf("Saved %q.\n", key)

		return nil
	})
}

func runRm(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	key := prompt.CleanKeyOrSame(args[0])

	return withStore(ctx, func(store *library.Store) error {
		if _, found, err := store.Get(ctx, key); err != nil {
			return fmt.Errorf("reading prompt: %w", err)
		} else if !found {
			return fmt.Errorf("no prompt named %q", key)
		}

		if err := store.Delete(ctx, key); err != nil {
			return fmt.Errorf("deleting prompt: %w", err)
		}

		statusf("Deleted %q.\n", key)

		return nil
	})
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	long, _ := cmd.Flags().GetBool("long")

	return withStore(ctx, func(store *library.Store) error {
		lib, err := store.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("reading library: %w", err)
		}

		if flagJSON {
			return printJSON(lib)
		}

		keys := make([]string, 0, len(lib))
		for key := range lib {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		if long {
			for i, key := range keys {
				if i > 0 {
					fmt.Println()
				}

				fmt.Printf("%s:\n%s\n", key, lib[key])
			}

			return nil
		}

		rows := make([][]string, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, []string{key, truncate(lib[key], 60)})
		}

		printTable(os.Stdout, []string{"KEY", "PROMPT"}, rows)

		return nil
	})
}
