package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptdrive/promptdrive/internal/conflict"
	"github.com/promptdrive/promptdrive/internal/prompt"
	"github.com/promptdrive/promptdrive/internal/syncer"
)

// Push resolution flags. The per-key forms may be repeated; the --all-* forms
// apply one choice to every conflicted entry.
var (
	flagKeepLocal  []string
	flagKeepRemote []string
	flagKeepBoth   []string
	flagAllLocal   bool
	flagAllRemote  bool
	flagAllBoth    bool
)

// Pull mode flags.
var (
	flagPullMerge   bool
	flagPullReplace bool
)

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload the local prompt library to Google Drive",
		Long: "Uploads the local library with conflict detection. Entries that " +
			"exist remotely with different content block the upload until each is " +
			"resolved with --keep-local, --keep-remote, or --keep-both.",
		RunE: runPush,
	}

	cmd.Flags().StringArrayVar(&flagKeepLocal, "keep-local", nil, "resolve the named conflict with the local version (repeatable)")
	cmd.Flags().StringArrayVar(&flagKeepRemote, "keep-remote", nil, "resolve the named conflict with the remote version (repeatable)")
	cmd.Flags().StringArrayVar(&flagKeepBoth, "keep-both", nil, "resolve the named conflict by keeping both versions (repeatable)")
	cmd.Flags().BoolVar(&flagAllLocal, "all-local", false, "resolve every conflict with the local version")
	cmd.Flags().BoolVar(&flagAllRemote, "all-remote", false, "resolve every conflict with the remote version")
	cmd.Flags().BoolVar(&flagAllBoth, "all-both", false, "resolve every conflict by keeping both versions")

	return cmd
}

func newPullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the prompt library from Google Drive",
		Long: "Downloads the remote library. By default remote entries are merged " +
			"over local ones; --replace discards local entries missing remotely.",
		RunE: runPull,
	}

	cmd.Flags().BoolVar(&flagPullMerge, "merge", false, "merge remote entries into the local library (default)")
	cmd.Flags().BoolVar(&flagPullReplace, "replace", false, "replace the local library with the remote snapshot")

	return cmd
}

// outcomeErr converts a structured failure into a command error.
func outcomeErr(f *syncer.Failure) error {
	return fmt.Errorf("%s (%s)", f.Message, f.Code)
}

func runPush(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := context.Background()

	if err := validatePushFlags(); err != nil {
		return err
	}

	eng, err := newEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer eng.Close() //nolint:errcheck // read-mostly teardown

	local, err := eng.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("reading library: %w", err)
	}

	outcome := eng.sync.Upload(ctx, local)

	if outcome.Error != nil {
		return outcomeErr(outcome.Error)
	}

	if outcome.HasConflicts {
		return resolvePush(ctx, eng, &outcome)
	}

	return reportPush(&outcome)
}

// validatePushFlags rejects contradictory resolution flags up front.
func validatePushFlags() error {
	all := 0

	for _, b := range []bool{flagAllLocal, flagAllRemote, flagAllBoth} {
		if b {
			all++
		}
	}

	if all > 1 {
		return errors.New("at most one of --all-local, --all-remote, --all-both may be set")
	}

	if all == 1 && (len(flagKeepLocal)+len(flagKeepRemote)+len(flagKeepBoth)) > 0 {
		return errors.New("per-key --keep-* flags cannot be combined with an --all-* flag")
	}

	return nil
}

// resolvePush applies the resolution flags to a conflicted upload and retries
// with the resolved snapshot. Without resolution flags the conflicts are
// listed and the command fails.
func resolvePush(ctx context.Context, eng *engine, outcome *syncer.UploadOutcome) error {
	choices := pushChoices(outcome.Conflicts)

	if len(choices) == 0 {
		if flagJSON {
			if err := printJSON(outcome); err != nil {
				return err
			}
		} else {
			printConflicts(outcome.Conflicts)
		}

		return fmt.Errorf("%d conflicting entries: resolve with --keep-local, --keep-remote, or --keep-both",
			len(outcome.Conflicts.Modified))
	}

	resolved, err := conflict.Resolve(outcome.LocalPrompts, outcome.Conflicts, choices)
	if err != nil {
		return err
	}

	forced := eng.sync.ForceUpload(ctx, resolved)
	if forced.Error != nil {
		return outcomeErr(forced.Error)
	}

	return reportPush(&forced)
}

// pushChoices builds the per-key choice map from the resolution flags.
func pushChoices(set *conflict.Set) map[string]conflict.Choice {
	choices := make(map[string]conflict.Choice)

	switch {
	case flagAllLocal:
		for _, m := range set.Modified {
			choices[m.Key] = conflict.KeepLocal
		}
	case flagAllRemote:
		for _, m := range set.Modified {
			choices[m.Key] = conflict.KeepRemote
		}
	case flagAllBoth:
		for _, m := range set.Modified {
			choices[m.Key] = conflict.KeepBoth
		}
	default:
		for _, key := range flagKeepLocal {
			choices[prompt.CleanKeyOrSame(key)] = conflict.KeepLocal
		}

		for _, key := range flagKeepRemote {
			choices[prompt.CleanKeyOrSame(key)] = conflict.KeepRemote
		}

		for _, key := range flagKeepBoth {
			choices[prompt.CleanKeyOrSame(key)] = conflict.KeepBoth
		}
	}

	return choices
}

func printConflicts(set *conflict.Set) {
	fmt.Fprintf(os.Stderr, "Conflicting entries:\n")

	rows := make([][]string, 0, len(set.Modified))
	for _, m := range set.Modified {
		rows = append(rows, []string{m.Key, truncate(m.Local, 40), truncate(m.Remote, 40)})
	}

	printTable(os.Stderr, []string{"KEY", "LOCAL", "REMOTE"}, rows)

	if len(set.Added) > 0 {
		fmt.Fprintf(os.Stderr, "\n%d remote-only entries will be merged automatically once conflicts are resolved.\n",
			len(set.Added))
	}
}

func reportPush(outcome *syncer.UploadOutcome) error {
	if flagJSON {
		return printJSON(outcome)
	}

	if outcome.AutoMerged {
		statusf("Pushed (remote-only entries merged into the local library).\n")
	} else {
		statusf("Pushed.\n")
	}

	return nil
}

func runPull(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := context.Background()

	if flagPullMerge && flagPullReplace {
		return errors.New("--merge and --replace are mutually exclusive")
	}

	eng, err := newEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer eng.Close() //nolint:errcheck // read-mostly teardown

	outcome := eng.sync.Download(ctx)
	if outcome.Error != nil {
		return outcomeErr(outcome.Error)
	}

	if flagPullReplace {
		if err := eng.store.ReplaceAll(ctx, outcome.Prompts); err != nil {
			return fmt.Errorf("replacing library: %w", err)
		}

		statusf("Pulled %d prompts (replaced local library).\n", len(outcome.Prompts))

		if flagJSON {
			return printJSON(outcome)
		}

		return nil
	}

	// Merge mode: remote wins per key, local-only entries survive.
	local, err := eng.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("reading library: %w", err)
	}

	merged := local.Clone()
	for key, body := range outcome.Prompts {
		merged[key] = body
	}

	if err := eng.store.ReplaceAll(ctx, merged); err != nil {
		return fmt.Errorf("merging library: %w", err)
	}

	statusf("Pulled %d prompts (merged, %d total).\n", len(outcome.Prompts), len(merged))

	if flagJSON {
		return printJSON(outcome)
	}

	return nil
}
