package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptdrive/promptdrive/internal/auth"
	"github.com/promptdrive/promptdrive/internal/config"
	"github.com/promptdrive/promptdrive/internal/drive"
	"github.com/promptdrive/promptdrive/internal/library"
	"github.com/promptdrive/promptdrive/internal/syncer"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// cfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var cfg *config.Config

// httpClientTimeout is the default timeout for HTTP requests.
// Prevents hung connections from blocking CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "promptdrive",
		Short:   "Prompt library with Google Drive sync",
		Long:    "A local AI-prompt library that syncs to a single JSON file on Google Drive.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE loads configuration before every command. A
		// missing config file is fine: everything local works on defaults,
		// and remote commands report not_configured themselves.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newDisconnectCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPushCmd())
	cmd.AddCommand(newPullCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// loadConfig resolves the effective configuration and stores it in cfg for
// use by subcommands. An explicit --config path must exist; the default
// location falls back to defaults when absent.
func loadConfig() error {
	path := flagConfigPath

	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cfg = loaded

		return nil
	}

	loaded, err := config.LoadOrDefault(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg = loaded

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// openBrowser launches the default browser for interactive consent.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}

// newAuthManager wires the auth manager from the loaded config.
func newAuthManager(logger *slog.Logger) *auth.Manager {
	return auth.NewManager(auth.Options{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenPath:    cfg.TokenPath,
		OpenURL:      openBrowser,
		HTTPClient:   defaultHTTPClient(),
		Logger:       logger,
	})
}

// engine bundles the wired collaborators a sync command needs. Close must be
// called when the command finishes.
type engine struct {
	store *library.Store
	auth  *auth.Manager
	sync  *syncer.Syncer
}

func (e *engine) Close() error {
	return e.store.Close()
}

// newEngine opens the local store and wires the full sync stack on top of it.
// The store doubles as the Drive client's file-id cache.
func newEngine(ctx context.Context, logger *slog.Logger) (*engine, error) {
	store, err := library.Open(ctx, cfg.LibraryPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}

	mgr := newAuthManager(logger)

	client := drive.NewClient(mgr, store, drive.Options{
		HTTPClient: defaultHTTPClient(),
		FileName:   cfg.FileName,
		Logger:     logger,
	})

	return &engine{
		store: store,
		auth:  mgr,
		sync:  syncer.New(mgr, client, store, logger),
	}, nil
}
