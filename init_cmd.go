package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/promptdrive/promptdrive/internal/config"
	"github.com/promptdrive/promptdrive/internal/library"
)

// configTemplate is written by init when no config file exists yet.
const configTemplate = `# promptdrive configuration
#
# client_id is a Google OAuth2 installed-app client. Create one at
# https://console.cloud.google.com/apis/credentials and enable the
# Drive API for the project.
client_id = %q

# Uncomment to override defaults:
# file_name = %q
# log_level = "info"
# mirror_path = ""
# listen_addr = %q
`

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the config file and local library",
		RunE:  runInit,
	}

	cmd.Flags().Bool("samples", false, "seed the library with sample prompts")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	logger := buildLogger()
	samples, _ := cmd.Flags().GetBool("samples")

	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigTemplate(path); err != nil {
			return err
		}

		statusf("Wrote %s — set client_id to enable Drive sync.\n", path)
	} else {
		statusf("Config already exists at %s.\n", path)
	}

	store, err := library.Open(ctx, cfg.LibraryPath, logger)
	if err != nil {
		return fmt.Errorf("creating library: %w", err)
	}
	defer store.Close() //nolint:errcheck // read-mostly teardown

	if samples {
		if err := store.SeedSamples(ctx, library.Samples()); err != nil {
			return fmt.Errorf("seeding samples: %w", err)
		}

		count, err := store.Len(ctx)
		if err != nil {
			return fmt.Errorf("counting prompts: %w", err)
		}

		statusf("Library ready at %s (%d prompts).\n", cfg.LibraryPath, count)

		return nil
	}

	statusf("Library ready at %s.\n", cfg.LibraryPath)

	return nil
}

func writeConfigTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	body := fmt.Sprintf(configTemplate,
		"YOUR_CLIENT_ID.apps.googleusercontent.com",
		config.DefaultFileName,
		"127.0.0.1:8391")

	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
