package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptdrive/promptdrive/internal/syncer"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync configuration and remote file state",
		RunE:  runStatus,
	}
}

func runStatus(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := context.Background()

	eng, err := newEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer eng.Close() //nolint:errcheck // read-mostly teardown

	st := eng.sync.Status(ctx)

	count, err := eng.store.Len(ctx)
	if err != nil {
		return fmt.Errorf("counting prompts: %w", err)
	}

	if flagJSON {
		return printJSON(struct {
			syncer.Status

			Prompts int `json:"prompts"`
		}{Status: st, Prompts: count})
	}

	printStatusText(st, count)

	return nil
}

func printStatusText(st syncer.Status, count int) {
	fmt.Printf("Prompts:       %d\n", count)
	fmt.Printf("Configured:    %v\n", st.Configured)

	if !st.Configured {
		fmt.Println("\nSet client_id in the config file to enable Drive sync.")
		return
	}

	fmt.Printf("Authenticated: %v\n", st.Authenticated)

	if st.Account != "" {
		fmt.Printf("Account:       %s\n", st.Account)
	}

	if !st.Authenticated {
		fmt.Println("\nRun 'promptdrive login' to connect.")
		return
	}

	if st.Metadata == nil {
		fmt.Println("Remote file:   not created yet (first push will create it)")
		return
	}

	fmt.Printf("Remote file:   %s\n", st.Metadata.Name)

	if st.FilePath != "" {
		fmt.Printf("Location:      %s\n", st.FilePath)
	}

	if st.Metadata.Size > 0 {
		fmt.Printf("Size:          %s\n", formatSize(st.Metadata.Size))
	}

	if st.Metadata.Modified != "" {
		if t, err := time.Parse(time.RFC3339, st.Metadata.Modified); err == nil {
			fmt.Printf("Modified:      %s\n", formatTime(t))
		}
	}

	if st.Metadata.ViewLink != "" {
		fmt.Printf("View:          %s\n", st.Metadata.ViewLink)
	}
}
